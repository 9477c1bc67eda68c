package sectext

import (
	"sort"
	"strconv"
	"strings"
)

// Record is the top-level result of parsing one file or one packed entry.
// Application types embed RecordBase to satisfy it:
//
//	type Doc struct {
//		sectext.RecordBase
//		Title string
//	}
type Record interface {
	Base() *RecordBase
}

// RecordBase carries the engine-owned part of a Record.
type RecordBase struct {
	// Index identifies the record within a file or pack window.
	Index int

	// Valid is set after parsing from the schema's validity predicate.
	Valid bool

	inner map[ContextID][]InnerRecord
}

// Base implements Record.
func (b *RecordBase) Base() *RecordBase { return b }

// Attached returns the inner records filed under ctx, in parse order.
func (b *RecordBase) Attached(ctx ContextID) []InnerRecord {
	return b.inner[ctx]
}

// AttachedContexts returns the contexts that hold inner records, in
// ordinal order.
func (b *RecordBase) AttachedContexts() []ContextID {
	ids := make([]ContextID, 0, len(b.inner))
	for id, list := range b.inner {
		if len(list) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Attach files inner records under ctx and makes owner their parent.
// An inner record already owned by another record is skipped.
func (b *RecordBase) Attach(owner Record, ctx ContextID, irs ...InnerRecord) {
	if b.inner == nil {
		b.inner = make(map[ContextID][]InnerRecord)
	}
	for _, ir := range irs {
		ib := ir.Inner()
		if ib.owner != nil && ib.owner != owner {
			continue
		}
		ib.owner = owner
		ib.ctx = ctx
		b.inner[ctx] = append(b.inner[ctx], ir)
	}
}

// AttachedAs returns the inner records under ctx that have type I.
func AttachedAs[I InnerRecord](r Record, ctx ContextID) []I {
	list := r.Base().Attached(ctx)
	out := make([]I, 0, len(list))
	for _, ir := range list {
		if typed, ok := ir.(I); ok {
			out = append(out, typed)
		}
	}
	return out
}

// InnerRecord is a nested record scoped to one context occurrence.
// Application types embed InnerBase to satisfy it.
type InnerRecord interface {
	Inner() *InnerBase
}

// InnerBase carries the engine-owned part of an InnerRecord.
type InnerBase struct {
	// Index is the occurrence index from an indexer line ("ITEMS 2").
	Index int

	// Indexed is true when an index token was applied.
	Indexed bool

	ctx    ContextID
	owner  Record
	closed bool
}

// Inner implements InnerRecord.
func (b *InnerBase) Inner() *InnerBase { return b }

// Context returns the context the record was opened under.
func (b *InnerBase) Context() ContextID { return b.ctx }

// Owner returns the parent record, or nil before attachment.
func (b *InnerBase) Owner() Record { return b.owner }

// Closed reports whether the record stopped accepting values. Closing is
// one-way.
func (b *InnerBase) Closed() bool { return b.closed }

// IndexToken returns the token a writer emits after the context name, or
// "" when the record carries no index.
func (b *InnerBase) IndexToken() string {
	if !b.Indexed {
		return ""
	}
	return strconv.Itoa(b.Index)
}

func (b *InnerBase) close() { b.closed = true }

// DefaultIndexParser reads the token as a decimal integer.
func DefaultIndexParser(ir InnerRecord, token string) error {
	n, err := strconv.Atoi(strings.TrimSpace(token))
	if err != nil {
		return err
	}
	b := ir.Inner()
	b.Index = n
	b.Indexed = true
	return nil
}
