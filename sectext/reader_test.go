package sectext

import (
	"errors"
	"strings"
	"testing"

	"github.com/Neumenon/sectext/stream"
)

// ============================================================
// Basic parsing
// ============================================================

func TestParse_Example(t *testing.T) {
	ts := newTestSchema(t)
	doc, res := mustParse(t, ts.Schema, lines(
		"META",
		"\ttitle: Hello World",
		"\tcount: 5",
		"ITEMS",
		"\titem: apple",
		"ITEMS 2",
		"\titem: banana",
	))

	if len(res.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", res.Diagnostics.Err())
	}
	if !res.Valid || !doc.Valid {
		t.Error("expected a valid record")
	}
	if doc.Title != "Hello World" {
		t.Errorf("Title = %q, want %q", doc.Title, "Hello World")
	}
	if doc.Count != 5 {
		t.Errorf("Count = %v, want 5", doc.Count)
	}

	items := AttachedAs[*testItem](doc, ts.items)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Name != "apple" || items[0].Indexed || items[0].Index != 0 {
		t.Errorf("item 0 = %+v, want apple with default index", items[0])
	}
	if items[1].Name != "banana" || !items[1].Indexed || items[1].Index != 2 {
		t.Errorf("item 1 = %+v, want banana with index 2", items[1])
	}

	if got := len(doc.Attached(ts.meta)); got != 1 {
		t.Errorf("META inner records = %d, want 1", got)
	}
}

func TestParse_InnerRecordsClosedAndOwned(t *testing.T) {
	ts := newTestSchema(t)
	doc, _ := mustParse(t, ts.Schema, lines("META", "\ttitle: x1", "ITEMS", "\titem: a"))

	for _, ctx := range doc.AttachedContexts() {
		for _, ir := range doc.Attached(ctx) {
			ib := ir.Inner()
			if !ib.Closed() {
				t.Errorf("%s inner record still open", ts.ContextName(ctx))
			}
			if ib.Owner() != Record(doc) {
				t.Errorf("%s inner record owner = %v", ts.ContextName(ctx), ib.Owner())
			}
			if ib.Context() != ctx {
				t.Errorf("inner record context = %d, want %d", ib.Context(), ctx)
			}
		}
	}
}

func TestParse_AliasEquivalence(t *testing.T) {
	ts := newTestSchema(t)
	a, _ := mustParse(t, ts.Schema, lines("META", "\ttitle: Same"))
	b, _ := mustParse(t, ts.Schema, lines("META", "\tcaption: Same"))
	c, _ := mustParse(t, ts.Schema, lines("META", "\tCAPTION : Same"))

	if a.Title != b.Title || a.Title != c.Title || a.Title != "Same" {
		t.Errorf("alias parse differs: %q %q %q", a.Title, b.Title, c.Title)
	}
}

func TestParse_UnknownDescriptor(t *testing.T) {
	ts := newTestSchema(t)
	doc, res := mustParse(t, ts.Schema, "META\n\ttitle: Hi\n\tbogus: 1\n\tcount: 5")

	if doc.Title != "Hi" || doc.Count != 5 {
		t.Errorf("got title=%q count=%v, want Hi and 5", doc.Title, doc.Count)
	}
	if n := res.Diagnostics.Count(KindMissingDescriptor); n != 1 {
		t.Fatalf("MissingDescriptor count = %d, want 1 (%v)", n, res.Diagnostics.Err())
	}
	d, _ := res.Diagnostics.First(KindMissingDescriptor)
	if d.Key != "bogus" || d.Line != 3 || d.Context != "META" {
		t.Errorf("diagnostic = %+v", d)
	}
	if !errors.Is(d, ErrMissingDescriptor) {
		t.Error("diagnostic should unwrap to ErrMissingDescriptor")
	}
}

func TestParse_UndefinedSentinels(t *testing.T) {
	ts := newTestSchema(t)

	for _, content := range []string{"undefined", "UNDEFINED", "x", "X", "xx", "xxxx", "x-x"} {
		t.Run(content, func(t *testing.T) {
			doc, res := mustParse(t, ts.Schema, lines(
				"META", "\ttitle: T", "\tcount: "+content, "\tpublished: "+content, "\ttags: "+content))
			if len(res.Diagnostics) != 0 {
				t.Fatalf("undefined content produced diagnostics: %v", res.Diagnostics.Err())
			}
			if doc.Count != 0 || doc.Published || doc.Tags == nil || len(doc.Tags) != 0 {
				t.Errorf("defaults not applied: %+v", doc)
			}
		})
	}
}

func TestParse_ValueParseError(t *testing.T) {
	ts := newTestSchema(t)
	doc, res := mustParse(t, ts.Schema, lines("META", "\ttitle: T", "\tcount: many", "\tpublished: yes"))

	if n := res.Diagnostics.Count(KindValueParse); n != 1 {
		t.Fatalf("ValueParseError count = %d, want 1", n)
	}
	if doc.Count != 0 {
		t.Errorf("Count = %v, want untouched 0", doc.Count)
	}
	if !doc.Published {
		t.Error("terms after a failing term must still be applied")
	}
}

func TestParse_DescriptorWithoutSetter(t *testing.T) {
	ts := newTestSchema(t)
	doc, res := mustParse(t, ts.Schema, lines("META", "\tlegacy: old", "\ttitle: T"))

	if n := res.Diagnostics.Count(KindDescriptorWithoutSetter); n != 1 {
		t.Errorf("DescriptorWithoutSetter count = %d, want 1", n)
	}
	if doc.Title != "T" {
		t.Errorf("Title = %q", doc.Title)
	}
}

func TestParse_DataTargetMissing(t *testing.T) {
	ts := newTestSchema(t)
	doc, res := mustParse(t, ts.Schema, lines("META", "\ttitle: T", "NOTES", "\tstray: lost", "\ttext: kept"))

	if n := res.Diagnostics.Count(KindDataTargetMissing); n != 1 {
		t.Errorf("DataTargetMissing count = %d, want 1", n)
	}
	if doc.Notes != "kept" {
		t.Errorf("Notes = %q, want kept", doc.Notes)
	}
}

func TestParse_SetterRejectsValue(t *testing.T) {
	ts := newTestSchema(t)
	doc, res := mustParse(t, ts.Schema, lines("META", "\ttitle: T", "ITEMS", "\titem: a", "\tqty: -3"))

	if n := res.Diagnostics.Count(KindInvalidValue); n != 1 {
		t.Errorf("InvalidValue count = %d, want 1", n)
	}
	items := AttachedAs[*testItem](doc, ts.items)
	if len(items) != 1 || items[0].Qty != 0 || items[0].Name != "a" {
		t.Errorf("items = %+v", items)
	}
}

func TestParse_TypeMismatch(t *testing.T) {
	b := NewBuilder("mismatch", func() Record { return &testDoc{} })
	ctx := b.Context("META")
	broken := b.ValueType(Codec{
		Name:     "broken",
		Parse:    func(raw string) (any, error) { return len(raw), nil },
		Validate: isType[string],
	})
	mustNoErr(t, b.Field(ctx, "title", broken, Outer(func(d *testDoc, v string) { d.Title = v })))
	mustNoErr(t, b.Singular(ctx, func() InnerRecord { return &testMeta{} }))
	mustNoErr(t, b.Field(ctx, "wrong", Text, Inner(func(it *testItem, v string) { it.Name = v })))
	s, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	doc, res := mustParse(t, s, lines("META", "\ttitle: hello", "\twrong: shape"))
	if n := res.Diagnostics.Count(KindTypeMismatch); n != 2 {
		t.Fatalf("TypeMismatch count = %d, want 2 (%v)", n, res.Diagnostics.Err())
	}
	if doc.Title != "" {
		t.Errorf("mismatched value was stored: %q", doc.Title)
	}
	if !errors.Is(res.Diagnostics.Err(), ErrNotApplicable) {
		t.Error("setter of another record shape should report ErrNotApplicable")
	}
}

// ============================================================
// Line handling
// ============================================================

func TestParse_CommentAndBlankEndContext(t *testing.T) {
	ts := newTestSchema(t)

	for _, sep := range []string{"// note", "-- note", "__", ""} {
		t.Run("sep="+sep, func(t *testing.T) {
			doc, res := mustParse(t, ts.Schema, lines("META", "\ttitle: A", sep, "\tcount: 3"))
			if doc.Title != "A" {
				t.Errorf("Title = %q", doc.Title)
			}
			if doc.Count != 0 {
				t.Errorf("field after context end was applied: Count = %v", doc.Count)
			}
			if n := res.Diagnostics.Count(KindLineSkipped); n != 1 {
				t.Errorf("LineSkipped count = %d, want 1", n)
			}
		})
	}
}

func TestParse_FormattingCorrection(t *testing.T) {
	ts := newTestSchema(t)
	doc, res := mustParse(t, ts.Schema, lines("  META:  ", "title:    spaced   ", "   count:9"))

	if len(res.Diagnostics) != 0 {
		t.Fatalf("diagnostics: %v", res.Diagnostics.Err())
	}
	if doc.Title != "spaced" || doc.Count != 9 {
		t.Errorf("got %+v", doc)
	}
}

func TestParse_FallbackContextDetection(t *testing.T) {
	ts := newTestSchema(t)
	doc, _ := mustParse(t, ts.Schema, lines(
		"== META section ==",
		"\ttitle: see ITEMS below",
		"== ITEMS ==",
		"\titem: bolt",
	))

	if doc.Title != "see ITEMS below" {
		t.Errorf("field containing a context name was misread: Title = %q", doc.Title)
	}
	items := AttachedAs[*testItem](doc, ts.items)
	if len(items) != 1 || items[0].Name != "bolt" {
		t.Errorf("items = %+v", items)
	}
}

func TestParse_IndexTokens(t *testing.T) {
	ts := newTestSchema(t)
	doc, res := mustParse(t, ts.Schema, lines(
		"META 7",
		"\ttitle: T",
		"ITEMS 10",
		"\titem: ten",
		"ITEMS abc",
		"\titem: bad",
	))

	if n := res.Diagnostics.Count(KindValueParse); n != 1 {
		t.Errorf("ValueParseError count = %d, want 1 (bad index)", n)
	}
	if doc.Title != "T" {
		t.Errorf("singular context with index token not opened: %+v", doc)
	}
	items := AttachedAs[*testItem](doc, ts.items)
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Index != 10 || items[1].Indexed {
		t.Errorf("indexes = %d/%v, %d/%v", items[0].Index, items[0].Indexed, items[1].Index, items[1].Indexed)
	}
	if items[1].Name != "bad" {
		t.Error("record with a bad index token must still receive values")
	}
}

func TestParse_LinesOutsideContext(t *testing.T) {
	ts := newTestSchema(t)
	doc, res := mustParse(t, ts.Schema, lines("title: orphan", "META", "\ttitle: T"))

	if doc.Title != "T" {
		t.Errorf("Title = %q", doc.Title)
	}
	d, ok := res.Diagnostics.First(KindLineSkipped)
	if !ok || d.Line != 1 {
		t.Errorf("expected LineSkipped on line 1, got %+v", res.Diagnostics)
	}
}

func TestParse_InvalidRecordStillReturned(t *testing.T) {
	ts := newTestSchema(t)
	doc, res := mustParse(t, ts.Schema, lines("META", "\tcount: 1"))

	if res.Valid || doc.Valid {
		t.Error("record without title should be invalid")
	}
	if doc.Count != 1 {
		t.Errorf("invalid record lost its fields: %+v", doc)
	}
}

func TestParse_Reader(t *testing.T) {
	ts := newTestSchema(t)
	res, err := NewReader(ts.Schema).Parse(strings.NewReader("META\n\ttitle: io\n"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Record.(*testDoc).Title != "io" {
		t.Error("Parse(io.Reader) did not read the record")
	}
}

func TestParseFile_Missing(t *testing.T) {
	ts := newTestSchema(t)
	_, err := NewReader(ts.Schema).ParseFile(t.TempDir() + "/none.txt")
	if !errors.Is(err, ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindIO || e.Path == "" {
		t.Errorf("err = %#v", err)
	}
}

// ============================================================
// Opener descriptors
// ============================================================

type testTrack struct {
	InnerBase
	Name   string
	Length int
}

func newTrackSchema(t *testing.T) (*Schema, ContextID) {
	t.Helper()
	b := NewBuilder("tracks", func() Record { return &testDoc{} })
	track := b.Context("TRACK")
	mustNoErr(t, b.Multiple(track, func() InnerRecord { return &testTrack{} }, nil))
	mustNoErr(t, b.Field(track, "track", Text, Inner(func(tr *testTrack, v string) { tr.Name = v }), OpensContext()))
	mustNoErr(t, b.Field(track, "length", Integer, Inner(func(tr *testTrack, v int) { tr.Length = v })))
	mustNoErr(t, b.Emitter(track, EmitterFor(func(d *testDoc, t *Terms) {
		for _, tr := range AttachedAs[*testTrack](d, track) {
			t.Field("track", tr.Name)
			t.Field("length", tr.Length)
		}
	})))
	s, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return s, track
}

func TestParse_OpenerDescriptor(t *testing.T) {
	s, track := newTrackSchema(t)
	doc, res := mustParse(t, s, lines(
		"track: Alpha",
		"\tlength: 3",
		"track: Beta",
		"\tlength: 5",
	))
	if len(res.Diagnostics) != 0 {
		t.Fatalf("diagnostics: %v", res.Diagnostics.Err())
	}
	tracks := AttachedAs[*testTrack](doc, track)
	if len(tracks) != 2 {
		t.Fatalf("tracks = %d, want 2", len(tracks))
	}
	if tracks[0].Name != "Alpha" || tracks[0].Length != 3 || tracks[1].Name != "Beta" || tracks[1].Length != 5 {
		t.Errorf("tracks = %+v %+v", tracks[0], tracks[1])
	}
}

// ============================================================
// Child delegation
// ============================================================

type testPart struct {
	RecordBase
	InnerBase
	Name string
}

func newParentSchema(t *testing.T) (*testSchema, ContextID) {
	t.Helper()
	return newParentSchemaWith(t, "END", false)
}

// newParentSchemaWith builds the parent schema with the sub-document
// terminator given, optionally packed.
func newParentSchemaWith(t *testing.T, terminator string, packed bool) (*testSchema, ContextID) {
	t.Helper()

	cb := NewBuilder("part", func() Record { return &testPart{} })
	part := cb.Context("PART")
	mustNoErr(t, cb.Field(part, "name", Text, Outer(func(p *testPart, v string) { p.Name = v })))
	child, err := cb.Build()
	if err != nil {
		t.Fatal(err)
	}

	b := NewBuilder("parent", func() Record { return &testDoc{} })
	meta := b.Context("META")
	items := b.Context("ITEMS")
	subs := b.Context("SUBS")
	mustNoErr(t, b.Field(meta, "title", Text, Outer(func(d *testDoc, v string) { d.Title = v })))
	mustNoErr(t, b.Multiple(items, func() InnerRecord { return &testItem{} }, nil))
	mustNoErr(t, b.Field(items, "item", Text, Inner(func(it *testItem, v string) { it.Name = v })))
	mustNoErr(t, b.Embed("BEGIN SUB", subs, SubDocument(child, terminator, func(r Record) InnerRecord {
		return r.(*testPart)
	})))
	if packed {
		b.Packing(PackConfig{Spacing: 1})
	}
	s, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return &testSchema{Schema: s, meta: meta, items: items}, subs
}

func TestParse_ChildDelegation(t *testing.T) {
	ts, subs := newParentSchema(t)
	doc, res := mustParse(t, ts.Schema, lines(
		"META",
		"\ttitle: Parent",
		"BEGIN SUB",
		"PART",
		"\tname: gear",
		"\tweight: 3",
		"END",
		"ITEMS",
		"\titem: bolt",
	))

	if doc.Title != "Parent" {
		t.Errorf("Title = %q", doc.Title)
	}
	parts := AttachedAs[*testPart](doc, subs)
	if len(parts) != 1 || parts[0].Name != "gear" {
		t.Fatalf("parts = %+v", parts)
	}
	if parts[0].Inner().Owner() != Record(doc) || !parts[0].Inner().Closed() {
		t.Error("delegated record must be owned by the parent and closed")
	}
	items := AttachedAs[*testItem](doc, ts.items)
	if len(items) != 1 || items[0].Name != "bolt" {
		t.Errorf("parsing did not resume after the sub-document: %+v", items)
	}
	if n := res.Diagnostics.Count(KindMissingDescriptor); n != 1 {
		t.Errorf("child diagnostics not propagated: %v", res.Diagnostics)
	}
}

func TestParse_ChildParseFailure(t *testing.T) {
	tests := []struct {
		name  string
		child ChildParserFunc
	}{
		{"no progress", func(c *stream.Cursor) (InnerRecord, Diagnostics, error) {
			return &testItem{}, nil, nil
		}},
		{"child error", func(c *stream.Cursor) (InnerRecord, Diagnostics, error) {
			c.Next()
			return nil, nil, errors.New("boom")
		}},
		{"no record", func(c *stream.Cursor) (InnerRecord, Diagnostics, error) {
			c.Next()
			return nil, nil, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("p", func() Record { return &testDoc{} })
			ctx := b.Context("SUBS")
			mustNoErr(t, b.Embed("CHILD", ctx, tt.child))
			s, err := b.Build()
			if err != nil {
				t.Fatal(err)
			}

			res, err := NewReader(s).ParseBytes([]byte("CHILD\nline\n"))
			if res != nil {
				t.Error("a failed call must not return a record")
			}
			if !errors.Is(err, ErrChildParse) {
				t.Fatalf("err = %v, want ErrChildParse", err)
			}
			var e *Error
			if !errors.As(err, &e) || e.Line != 1 {
				t.Errorf("err = %#v, want line 1", err)
			}
		})
	}
}
