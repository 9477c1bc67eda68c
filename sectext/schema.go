package sectext

import (
	"fmt"
	"strings"
)

// ContextID identifies a registered context by its ordinal. Ordinals are
// assigned in registration order and define the write order.
type ContextID int

// ContextNone is the "no context open" state. It is never written.
const ContextNone ContextID = 0

// RuleKind says whether occurrences of a context build inner records.
type RuleKind uint8

const (
	RuleNone     RuleKind = iota // values go to the top-level record
	RuleSingular                 // one inner record per occurrence, no index
	RuleMultiple                 // one inner record per occurrence, optional index token
)

// String returns the rule name.
func (k RuleKind) String() string {
	switch k {
	case RuleNone:
		return "none"
	case RuleSingular:
		return "singular"
	case RuleMultiple:
		return "multiple"
	default:
		return fmt.Sprintf("RuleKind(%d)", uint8(k))
	}
}

// IndexParser applies an indexer token ("ITEMS 2" -> "2") to a freshly
// created inner record.
type IndexParser func(ir InnerRecord, token string) error

// Rule is the per-context inner record rule.
type Rule struct {
	Kind       RuleKind
	New        func() InnerRecord
	ParseIndex IndexParser // multiple only; nil uses DefaultIndexParser
}

type contextDef struct {
	id      ContextID
	name    string
	rule    Rule
	emitter Emitter
	opener  *Descriptor
}

// Descriptor maps a textual key in one context to a value type and a
// setter. A descriptor without a setter can be matched but never stores.
type Descriptor struct {
	Context ContextID
	Type    ValueType
	Key     string
	Aliases []string
	Opens   bool // a line with this key opens the context
	Setter  *Setter

	schema *Schema
}

// Matches reports whether key names this descriptor, by canonical key
// or alias, ignoring case and surrounding space.
func (d *Descriptor) Matches(key string) bool {
	key = normalizeKey(key)
	if normalizeKey(d.Key) == key {
		return true
	}
	for _, a := range d.Aliases {
		if normalizeKey(a) == key {
			return true
		}
	}
	return false
}

type descKey struct {
	ctx ContextID
	key string
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Schema is the immutable description of a file format. Build one with a
// Builder; after Build it may be shared by any number of readers and
// writers.
type Schema struct {
	name       string
	contexts   []*contextDef // index is the ContextID; [0] is ContextNone
	byName     map[string]ContextID
	types      []Codec
	typeByName map[string]ValueType
	keys       map[descKey]*Descriptor // canonical keys and aliases
	descs      []*Descriptor           // registration order
	openers    []*Descriptor
	embeds     []*Embedding
	pack       *PackConfig
	newRecord  func() Record
	valid      func(Record) bool
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// NewRecord creates an empty top-level record.
func (s *Schema) NewRecord() Record { return s.newRecord() }

// Valid applies the schema's validity predicate. Without a predicate every
// record is valid.
func (s *Schema) Valid(r Record) bool {
	if s.valid == nil {
		return true
	}
	return s.valid(r)
}

// Packing returns the packing configuration, or nil.
func (s *Schema) Packing() *PackConfig { return s.pack }

// ============================================================
// Contexts
// ============================================================

// Contexts returns every registered context in write order, excluding
// ContextNone.
func (s *Schema) Contexts() []ContextID {
	ids := make([]ContextID, 0, len(s.contexts)-1)
	for _, c := range s.contexts[1:] {
		ids = append(ids, c.id)
	}
	return ids
}

// ContextName returns the name of a context ("" for ContextNone or an
// unknown id).
func (s *Schema) ContextName(id ContextID) string {
	if id <= ContextNone || int(id) >= len(s.contexts) {
		return ""
	}
	return s.contexts[id].name
}

// ContextByName looks a context up by its exact name.
func (s *Schema) ContextByName(name string) (ContextID, bool) {
	id, ok := s.byName[name]
	return id, ok
}

// ContextOrdinal returns the stable ordinal of a context.
func (s *Schema) ContextOrdinal(id ContextID) int { return int(id) }

// ContextAt translates an ordinal back to a context.
func (s *Schema) ContextAt(ordinal int) (ContextID, bool) {
	if ordinal <= 0 || ordinal >= len(s.contexts) {
		return ContextNone, false
	}
	return ContextID(ordinal), true
}

// Rule returns the inner record rule of a context.
func (s *Schema) Rule(id ContextID) Rule {
	if c := s.context(id); c != nil {
		return c.rule
	}
	return Rule{}
}

func (s *Schema) context(id ContextID) *contextDef {
	if id <= ContextNone || int(id) >= len(s.contexts) {
		return nil
	}
	return s.contexts[id]
}

// OpeningText returns the text a writer emits to open the context: the
// opener descriptor's key if one is registered, else the context name.
func (s *Schema) OpeningText(id ContextID) string {
	c := s.context(id)
	if c == nil {
		return ""
	}
	if c.opener != nil {
		return c.opener.Key
	}
	return c.name
}

// ============================================================
// Value types
// ============================================================

// ValueTypes returns every registered value type in ordinal order.
func (s *Schema) ValueTypes() []ValueType {
	out := make([]ValueType, len(s.types))
	for i := range s.types {
		out[i] = ValueType(i)
	}
	return out
}

// ValueTypeName returns the name of a value type.
func (s *Schema) ValueTypeName(vt ValueType) string {
	if c, ok := s.codec(vt); ok {
		return c.Name
	}
	return ""
}

// ValueTypeByName looks a value type up by name.
func (s *Schema) ValueTypeByName(name string) (ValueType, bool) {
	vt, ok := s.typeByName[strings.ToLower(name)]
	return vt, ok
}

func (s *Schema) codec(vt ValueType) (Codec, bool) {
	if vt < 0 || int(vt) >= len(s.types) {
		return Codec{}, false
	}
	return s.types[vt], true
}

// Default returns the default value of a value type.
func (s *Schema) Default(vt ValueType) any {
	c, ok := s.codec(vt)
	if !ok {
		return nil
	}
	return c.Default
}

// ParseValue parses raw content as the given value type.
func (s *Schema) ParseValue(vt ValueType, raw string) (any, error) {
	c, ok := s.codec(vt)
	if !ok || c.Parse == nil {
		return nil, fmt.Errorf("value type %d: %w", vt, ErrNotApplicable)
	}
	return c.Parse(raw)
}

// CheckValue reports whether v matches the declared value type.
func (s *Schema) CheckValue(vt ValueType, v any) bool {
	c, ok := s.codec(vt)
	if !ok {
		return false
	}
	if c.Validate == nil {
		return true
	}
	return c.Validate(v)
}

// FormatValue renders v as field content.
func (s *Schema) FormatValue(vt ValueType, v any) string {
	c, ok := s.codec(vt)
	if !ok || c.Format == nil {
		return fmt.Sprint(v)
	}
	return c.Format(v)
}

// ============================================================
// Descriptors
// ============================================================

// Lookup resolves key (canonical or alias) within a context.
func (s *Schema) Lookup(ctx ContextID, key string) (*Descriptor, bool) {
	d, ok := s.keys[descKey{ctx: ctx, key: normalizeKey(key)}]
	return d, ok
}

// Resolve resolves key within ctx; with ContextNone it searches every
// context in write order and returns the first match and its context.
func (s *Schema) Resolve(ctx ContextID, key string) (*Descriptor, ContextID, bool) {
	if ctx != ContextNone {
		d, ok := s.Lookup(ctx, key)
		return d, ctx, ok
	}
	for _, c := range s.contexts[1:] {
		if d, ok := s.Lookup(c.id, key); ok {
			return d, c.id, true
		}
	}
	return nil, ContextNone, false
}

// Has reports whether any context registers key.
func (s *Schema) Has(key string) bool {
	_, _, ok := s.Resolve(ContextNone, key)
	return ok
}

// HasIn reports whether ctx registers key.
func (s *Schema) HasIn(ctx ContextID, key string) bool {
	_, ok := s.Lookup(ctx, key)
	return ok
}

// Descriptors returns the descriptors of a context in registration order.
func (s *Schema) Descriptors(ctx ContextID) []*Descriptor {
	var out []*Descriptor
	for _, d := range s.descs {
		if d.Context == ctx {
			out = append(out, d)
		}
	}
	return out
}

// Applicable reports whether d belongs to this schema. Descriptors from
// another schema are never reinterpreted.
func (s *Schema) Applicable(d *Descriptor) error {
	if d == nil || d.schema != s {
		return fmt.Errorf("descriptor for schema %q: %w", s.name, ErrNotApplicable)
	}
	return nil
}

// ============================================================
// Line classification
// ============================================================

// contextMatch is the result of new-context detection on one line.
type contextMatch struct {
	ctx     ContextID
	opener  *Descriptor // set when an opener descriptor matched
	content string      // opener content after "key:", if any
}

// detectContext decides whether text (already indexer-split and
// corrected) opens a context. Opener descriptors are tried first; the
// fallback accepts colon-free lines that contain a context name, the
// exact name winning over the longest contained one.
func (s *Schema) detectContext(text string) (contextMatch, bool) {
	key, content, hasColon := strings.Cut(text, ":")
	key = strings.TrimSpace(key)
	for _, d := range s.openers {
		if d.Matches(key) {
			return contextMatch{ctx: d.Context, opener: d, content: strings.TrimSpace(content)}, true
		}
	}
	if hasColon {
		return contextMatch{}, false
	}

	if id, ok := s.byName[text]; ok {
		return contextMatch{ctx: id}, true
	}
	best := ContextNone
	for _, c := range s.contexts[1:] {
		if strings.Contains(text, c.name) && (best == ContextNone || len(c.name) > len(s.contexts[best].name)) {
			best = c.id
		}
	}
	if best == ContextNone {
		return contextMatch{}, false
	}
	return contextMatch{ctx: best}, true
}

// embedFor returns the sub-document embedding triggered by text.
func (s *Schema) embedFor(text string) *Embedding {
	for _, e := range s.embeds {
		if strings.EqualFold(text, e.Trigger) {
			return e
		}
	}
	return nil
}
