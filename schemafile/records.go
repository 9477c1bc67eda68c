package schemafile

import (
	"time"

	"github.com/Neumenon/sectext/sectext"
)

// Doc is the top-level record of a loaded schema. It keeps the values of
// contexts without an inner record rule, by context name and canonical
// key. Ruled contexts hang off it as Blocks.
type Doc struct {
	sectext.RecordBase
	values map[string]map[string]any
}

// NewDoc returns an empty document.
func NewDoc() *Doc {
	return &Doc{values: make(map[string]map[string]any)}
}

// Context returns the values stored for a context, or nil.
func (d *Doc) Context(name string) map[string]any {
	return d.values[name]
}

// Get returns one value.
func (d *Doc) Get(ctx, key string) (any, bool) {
	v, ok := d.values[ctx][key]
	return v, ok
}

// Set stores one value.
func (d *Doc) Set(ctx, key string, v any) {
	if d.values == nil {
		d.values = make(map[string]map[string]any)
	}
	m := d.values[ctx]
	if m == nil {
		m = make(map[string]any)
		d.values[ctx] = m
	}
	m[key] = v
}

// Block is one occurrence of a ruled context.
type Block struct {
	sectext.InnerBase
	Values map[string]any
}

// NewBlock returns an empty block.
func NewBlock() *Block {
	return &Block{Values: make(map[string]any)}
}

// Set stores one value.
func (b *Block) Set(key string, v any) {
	if b.Values == nil {
		b.Values = make(map[string]any)
	}
	b.Values[key] = v
}

// Blocks returns the occurrences of a ruled context in parse order.
func (s *Schema) Blocks(d *Doc, ctx string) []*Block {
	id, ok := s.ContextByName(ctx)
	if !ok {
		return nil
	}
	return sectext.AttachedAs[*Block](d, id)
}

// Export converts a record into plain maps and slices for encoding:
//
//	{"index": 3, "valid": true, "META": {"title": "..."}, "ITEMS": [{"index": 2, "item": "..."}]}
//
// Durations become their string form. Records of other types export as
// nil.
func (s *Schema) Export(r sectext.Record) map[string]any {
	d, ok := r.(*Doc)
	if !ok {
		return nil
	}
	out := map[string]any{
		"index": d.Index,
		"valid": d.Valid,
	}
	for _, info := range s.contexts[1:] {
		if info.rule == sectext.RuleNone {
			if vals := d.Context(info.name); len(vals) > 0 {
				out[info.name] = exportValues(vals)
			}
			continue
		}
		blocks := sectext.AttachedAs[*Block](d, info.id)
		if len(blocks) == 0 {
			continue
		}
		list := make([]any, 0, len(blocks))
		for _, bl := range blocks {
			m := exportValues(bl.Values)
			if bl.Indexed {
				m["index"] = bl.Index
			}
			list = append(list, m)
		}
		out[info.name] = list
	}
	return out
}

func exportValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if dur, ok := v.(time.Duration); ok {
			v = dur.String()
		}
		out[k] = v
	}
	return out
}
