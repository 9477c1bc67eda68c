package sectext

import (
	"errors"
	"fmt"
	"strings"
)

// Term is one parsed or emitted unit: a key and its raw content inside a
// context occurrence. Terms are values; once built they are not changed.
type Term struct {
	Context ContextID
	Key     string // as written in the source, or the canonical key when emitted
	Content string
	Pos     int // position within the context occurrence
	Line    int // 1-based source line; 0 for emitted terms

	// Opens marks an emitted term that starts a new context occurrence.
	// Index is the occurrence's indexer token, if any.
	Opens bool
	Index string
}

// Emitter appends the terms of one context for a record.
type Emitter func(r Record, t *Terms)

// EmitterFor adapts a typed emitter. A record of another type yields no
// terms and an ErrNotApplicable error on the buffer.
func EmitterFor[R Record](fn func(R, *Terms)) Emitter {
	return func(r Record, t *Terms) {
		typed, ok := r.(R)
		if !ok {
			t.fail(fmt.Errorf("emitter for %s got %T: %w", t.schema.ContextName(t.ctx), r, ErrNotApplicable))
			return
		}
		fn(typed, t)
	}
}

// Terms is the buffer an Emitter writes into. It is bound to one context
// at a time.
type Terms struct {
	schema *Schema
	ctx    ContextID
	terms  []Term
	pos    int
	errs   []error
}

func newTerms(s *Schema) *Terms {
	return &Terms{schema: s}
}

func (t *Terms) bind(ctx ContextID) {
	t.ctx = ctx
	t.pos = 0
}

func (t *Terms) fail(err error) {
	t.errs = append(t.errs, err)
}

// lineSafe reports a term part that would not stay on its own line.
func (t *Terms) lineSafe(key, what, s string) bool {
	if !strings.ContainsAny(s, "\r\n") {
		return true
	}
	t.fail(fmt.Errorf("emit %s.%s: %s %q spans lines: %w", t.schema.ContextName(t.ctx), key, what, s, ErrInvalidValue))
	return false
}

func (t *Terms) err() error {
	return errors.Join(t.errs...)
}

// Context returns the context being emitted.
func (t *Terms) Context() ContextID { return t.ctx }

// Len returns the number of terms emitted so far.
func (t *Terms) Len() int { return len(t.terms) }

// Open starts a new occurrence of the current context, with an optional
// indexer token. An index containing whitespace is rejected.
func (t *Terms) Open(index string) {
	if strings.ContainsAny(index, " \t\r\n") {
		t.fail(fmt.Errorf("emit %s: index %q: %w", t.schema.ContextName(t.ctx), index, ErrInvalidValue))
		return
	}
	t.terms = append(t.terms, Term{Context: t.ctx, Opens: true, Index: index})
	t.pos = 0
}

// OpenInner starts an occurrence for an inner record, carrying its index.
func (t *Terms) OpenInner(ir InnerRecord) {
	t.Open(ir.Inner().IndexToken())
}

// Field emits key with v formatted by the descriptor's value type. The key
// must be registered in the current context. An opener descriptor's field
// starts a new occurrence and is written on the opening line.
func (t *Terms) Field(key string, v any) {
	d, ok := t.schema.Lookup(t.ctx, key)
	if !ok {
		t.fail(fmt.Errorf("emit %s.%s: %w", t.schema.ContextName(t.ctx), key, ErrMissingDescriptor))
		return
	}
	if !t.schema.CheckValue(d.Type, v) {
		t.fail(fmt.Errorf("emit %s.%s: %T is not %s: %w",
			t.schema.ContextName(t.ctx), key, v, t.schema.ValueTypeName(d.Type), ErrTypeMismatch))
		return
	}
	content := t.schema.FormatValue(d.Type, v)
	if d.Opens {
		if !t.lineSafe(d.Key, "value", content) {
			return
		}
		t.terms = append(t.terms, Term{Context: t.ctx, Key: d.Key, Content: content, Opens: true})
		t.pos = 0
		return
	}
	t.Raw(d.Key, content)
}

// Raw emits a key and pre-formatted content without descriptor checks.
// Key and content must each fit on one line.
func (t *Terms) Raw(key, content string) {
	if !t.lineSafe(key, "key", key) || !t.lineSafe(key, "value", content) {
		return
	}
	t.terms = append(t.terms, Term{Context: t.ctx, Key: key, Content: content, Pos: t.pos})
	t.pos++
}
