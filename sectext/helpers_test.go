package sectext

import (
	"strings"
	"testing"
)

type testDoc struct {
	RecordBase
	Title     string
	Count     float64
	Tags      []string
	Published bool
	Notes     string
}

type testMeta struct {
	InnerBase
}

type testItem struct {
	InnerBase
	Name string
	Qty  int
}

type testSchema struct {
	*Schema
	meta  ContextID
	items ContextID
	notes ContextID
}

func newTestSchema(t *testing.T) *testSchema {
	t.Helper()

	b := NewBuilder("test", func() Record { return &testDoc{} })
	meta := b.Context("META")
	items := b.Context("ITEMS")
	notes := b.Context("NOTES")

	mustNoErr(t, b.Singular(meta, func() InnerRecord { return &testMeta{} }))
	mustNoErr(t, b.Multiple(items, func() InnerRecord { return &testItem{} }, nil))

	mustNoErr(t, b.Field(meta, "title", Text, Outer(func(d *testDoc, v string) { d.Title = v }), Aliases("caption")))
	mustNoErr(t, b.Field(meta, "count", Number, Outer(func(d *testDoc, v float64) { d.Count = v })))
	mustNoErr(t, b.Field(meta, "tags", List, Outer(func(d *testDoc, v []string) { d.Tags = v })))
	mustNoErr(t, b.Field(meta, "published", Bool, Outer(func(d *testDoc, v bool) { d.Published = v })))
	mustNoErr(t, b.Field(meta, "legacy", Text, nil))

	mustNoErr(t, b.Field(items, "item", Text, Inner(func(it *testItem, v string) { it.Name = v })))
	mustNoErr(t, b.Field(items, "qty", Integer, InnerCheck(func(it *testItem, v int) bool {
		if v < 0 {
			return false
		}
		it.Qty = v
		return true
	})))

	mustNoErr(t, b.Field(notes, "text", Text, Outer(func(d *testDoc, v string) { d.Notes = v })))
	mustNoErr(t, b.Field(notes, "stray", Text, Inner(func(it *testItem, v string) { it.Name = v })))

	mustNoErr(t, b.Emitter(meta, EmitterFor(func(d *testDoc, t *Terms) {
		if d.Title != "" {
			t.Field("title", d.Title)
		}
		if d.Count != 0 {
			t.Field("count", d.Count)
		}
		if len(d.Tags) > 0 {
			t.Field("tags", d.Tags)
		}
		if d.Published {
			t.Field("published", d.Published)
		}
	})))
	mustNoErr(t, b.Emitter(items, EmitterFor(func(d *testDoc, t *Terms) {
		for _, it := range AttachedAs[*testItem](d, items) {
			t.OpenInner(it)
			t.Field("item", it.Name)
			if it.Qty != 0 {
				t.Field("qty", it.Qty)
			}
		}
	})))
	mustNoErr(t, b.Emitter(notes, EmitterFor(func(d *testDoc, t *Terms) {
		if d.Notes != "" {
			t.Field("text", d.Notes)
		}
	})))

	b.Packing(PackConfig{Spacing: 1})
	b.Validity(func(r Record) bool { return r.(*testDoc).Title != "" })

	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return &testSchema{Schema: s, meta: meta, items: items, notes: notes}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func mustParse(t *testing.T, s *Schema, text string) (*testDoc, *Result) {
	t.Helper()
	res, err := NewReader(s).ParseBytes([]byte(text))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	doc, ok := res.Record.(*testDoc)
	if !ok {
		t.Fatalf("record is %T, want *testDoc", res.Record)
	}
	return doc, res
}

// lines joins test input lines with newlines, adding a final newline.
func lines(ls ...string) string {
	return strings.Join(ls, "\n") + "\n"
}

func (ts *testSchema) newDoc(index int, title string, items ...string) *testDoc {
	d := &testDoc{Title: title}
	d.Index = index
	for i, name := range items {
		it := &testItem{Name: name}
		if i > 0 {
			it.Index = i + 1
			it.Indexed = true
		}
		d.Attach(d, ts.items, it)
	}
	return d
}
