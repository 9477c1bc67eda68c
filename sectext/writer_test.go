package sectext

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// ============================================================
// Rendering
// ============================================================

func TestRender_Example(t *testing.T) {
	ts := newTestSchema(t)
	doc := ts.newDoc(0, "Hello World", "apple", "banana")
	doc.Count = 5

	got, err := NewWriter(ts.Schema).Render(doc)
	if err != nil {
		t.Fatal(err)
	}
	want := lines(
		"META",
		"\ttitle: Hello World",
		"\tcount: 5",
		"",
		"ITEMS",
		"\titem: apple",
		"",
		"ITEMS 2",
		"\titem: banana",
	)
	if string(got) != want {
		t.Errorf("Render:\n%s\nwant:\n%s", got, want)
	}
}

func TestRender_RoundTrip(t *testing.T) {
	ts := newTestSchema(t)
	doc := ts.newDoc(0, "Round", "one", "two", "three")
	doc.Count = 2.5
	doc.Tags = []string{"red", "green"}
	doc.Published = true
	doc.Notes = "multi word note"
	items := AttachedAs[*testItem](doc, ts.items)
	items[1].Qty = 4

	w := NewWriter(ts.Schema)
	data, err := w.Render(doc)
	if err != nil {
		t.Fatal(err)
	}
	back, res := mustParse(t, ts.Schema, string(data))
	if len(res.Diagnostics) != 0 {
		t.Fatalf("diagnostics: %v", res.Diagnostics.Err())
	}

	if back.Title != doc.Title || back.Count != doc.Count || back.Published != doc.Published || back.Notes != doc.Notes {
		t.Errorf("outer fields differ: got %+v", back)
	}
	if !reflect.DeepEqual(back.Tags, doc.Tags) {
		t.Errorf("Tags = %v, want %v", back.Tags, doc.Tags)
	}
	gotItems := AttachedAs[*testItem](back, ts.items)
	if len(gotItems) != len(items) {
		t.Fatalf("items = %d, want %d", len(gotItems), len(items))
	}
	for i := range items {
		g, w := gotItems[i], items[i]
		if g.Name != w.Name || g.Qty != w.Qty || g.Index != w.Index || g.Indexed != w.Indexed {
			t.Errorf("item %d = %+v, want %+v", i, g, w)
		}
	}

	again, err := w.Render(back)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Errorf("second render differs:\n%s\nvs\n%s", again, data)
	}
}

func TestRender_NotApplicable(t *testing.T) {
	ts := newTestSchema(t)
	_, err := NewWriter(ts.Schema).Render(&testPart{})
	if !errors.Is(err, ErrNotApplicable) {
		t.Fatalf("err = %v, want ErrNotApplicable", err)
	}
}

func TestRender_EmitTypeMismatch(t *testing.T) {
	b := NewBuilder("emit", func() Record { return &testDoc{} })
	ctx := b.Context("META")
	mustNoErr(t, b.Field(ctx, "count", Integer, Outer(func(d *testDoc, v int) { d.Count = float64(v) })))
	mustNoErr(t, b.Emitter(ctx, EmitterFor(func(d *testDoc, t *Terms) {
		t.Field("count", d.Count) // float64 for an integer field
		t.Field("nope", 1)
	})))
	s, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewWriter(s).Render(&testDoc{Count: 1})
	if !errors.Is(err, ErrTypeMismatch) || !errors.Is(err, ErrMissingDescriptor) {
		t.Fatalf("err = %v, want TypeMismatch and MissingDescriptor", err)
	}
}

func TestRender_OpenerDescriptor(t *testing.T) {
	s, track := newTrackSchema(t)
	doc := &testDoc{}
	doc.Attach(doc, track, &testTrack{Name: "Alpha", Length: 3}, &testTrack{Name: "Beta", Length: 5})

	got, err := NewWriter(s).Render(doc)
	if err != nil {
		t.Fatal(err)
	}
	want := lines("track: Alpha", "\tlength: 3", "", "track: Beta", "\tlength: 5")
	if string(got) != want {
		t.Errorf("Render:\n%s\nwant:\n%s", got, want)
	}
}

func TestRender_LineFormatter(t *testing.T) {
	ts := newTestSchema(t)
	upper := func(term Term, line string) string {
		if term.Key == "title" {
			return strings.ToUpper(line)
		}
		return line
	}

	got, err := NewWriter(ts.Schema, WithLineFormatter(upper), WithIndent("  ")).Render(ts.newDoc(0, "loud", "quiet"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), "  TITLE: LOUD\n") {
		t.Errorf("formatter not applied:\n%s", got)
	}
	if !strings.Contains(string(got), "  item: quiet\n") {
		t.Errorf("other lines changed:\n%s", got)
	}
}

// ============================================================
// File writes
// ============================================================

func TestWriteFile_RoundTrip(t *testing.T) {
	ts := newTestSchema(t)
	path := filepath.Join(t.TempDir(), "sub", "doc.txt")
	w := NewWriter(ts.Schema)

	res, err := w.WriteFile(path, ts.newDoc(0, "Disk", "a", "b"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Unchanged || res.Records != 1 || res.Bytes == 0 {
		t.Errorf("WriteResult = %+v", res)
	}

	parsed, err := NewReader(ts.Schema).ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	doc := parsed.Record.(*testDoc)
	if doc.Title != "Disk" || len(AttachedAs[*testItem](doc, ts.items)) != 2 {
		t.Errorf("read back %+v", doc)
	}
}

func TestWriteFile_Unchanged(t *testing.T) {
	ts := newTestSchema(t)
	path := filepath.Join(t.TempDir(), "doc.txt")
	w := NewWriter(ts.Schema)
	doc := ts.newDoc(0, "Same", "x1")

	if _, err := w.WriteFile(path, doc, nil); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	res, err := w.WriteFile(path, doc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Unchanged {
		t.Error("second identical write should be skipped")
	}
	after, _ := os.Stat(path)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("unchanged file was rewritten")
	}
}

func TestWriteFile_Constrained(t *testing.T) {
	ts := newTestSchema(t)
	path := filepath.Join(t.TempDir(), "doc.txt")
	w := NewWriter(ts.Schema)

	original := ts.newDoc(0, "Original", "old")
	original.Notes = "keep me"
	if _, err := w.WriteFile(path, original, nil); err != nil {
		t.Fatal(err)
	}

	update := ts.newDoc(0, "Replaced", "new", "newer")
	if _, err := w.WriteFile(path, update, Only(ts.items)); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	doc, _ := mustParse(t, ts.Schema, string(data))
	if doc.Title != "Original" || doc.Notes != "keep me" {
		t.Errorf("contexts outside the constraint changed: %+v", doc)
	}
	items := AttachedAs[*testItem](doc, ts.items)
	if len(items) != 2 || items[0].Name != "new" || items[1].Name != "newer" {
		t.Errorf("constrained context not replaced: %+v", items)
	}
}

func TestWriteFile_ConstrainedSameRecordIsByteIdentical(t *testing.T) {
	ts := newTestSchema(t)
	path := filepath.Join(t.TempDir(), "doc.txt")
	w := NewWriter(ts.Schema)
	doc := ts.newDoc(0, "Stable", "a", "b")

	if _, err := w.WriteFile(path, doc, nil); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(path)

	res, err := w.WriteFile(path, doc, Only(ts.meta))
	if err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(path)
	if !res.Unchanged || string(before) != string(after) {
		t.Errorf("constrained rewrite changed the file:\n%s\nvs\n%s", before, after)
	}
}

func TestWriteFile_ConstrainedKeepsSourceLines(t *testing.T) {
	ts := newTestSchema(t)
	path := filepath.Join(t.TempDir(), "doc.txt")
	existing := lines(
		"// header",
		"META",
		"\tcaption: Original",
		"\tcount: 5.50",
		"\tbogus: 1",
		"// keep me",
		"",
		"ITEMS",
		"\titem: apple",
	)
	if err := os.WriteFile(path, []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewWriter(ts.Schema).WriteFile(path, ts.newDoc(0, "Replaced", "pear", "plum"), Only(ts.items)); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	want := lines(
		"// header",
		"META",
		"\tcaption: Original",
		"\tcount: 5.50",
		"\tbogus: 1",
		"// keep me",
		"",
		"ITEMS",
		"\titem: pear",
		"",
		"ITEMS 2",
		"\titem: plum",
	)
	if string(got) != want {
		t.Errorf("constrained write:\n%q\nwant:\n%q", got, want)
	}
}

func TestRender_RejectsLineBreaks(t *testing.T) {
	ts := newTestSchema(t)

	for _, title := range []string{"line one\nITEMS\n\titem: injected", "carriage\rreturn"} {
		_, err := NewWriter(ts.Schema).Render(ts.newDoc(0, title))
		if !errors.Is(err, ErrInvalidValue) {
			t.Errorf("title %q: err = %v, want ErrInvalidValue", title, err)
		}
	}

	path := filepath.Join(t.TempDir(), "doc.txt")
	if _, err := NewWriter(ts.Schema).WriteFile(path, ts.newDoc(0, "a\nb"), nil); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("WriteFile err = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("rejected write left a file: %v", err)
	}
}

func TestRender_RejectsLineBreaksInRawAndOpeners(t *testing.T) {
	b := NewBuilder("raw", func() Record { return &testDoc{} })
	ctx := b.Context("META")
	mustNoErr(t, b.Field(ctx, "title", Text, nil))
	mustNoErr(t, b.Emitter(ctx, EmitterFor(func(d *testDoc, t *Terms) {
		t.Raw("bad\nkey", "v")
		t.Raw("title", d.Title)
		t.Open("1 2")
	})))
	s, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewWriter(s).Render(&testDoc{Title: "x\ny"})
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
	if n := strings.Count(err.Error(), "emit META"); n != 3 {
		t.Errorf("want three rejected terms, got %d: %v", n, err)
	}

	ts, track := newTrackSchema(t)
	doc := &testDoc{}
	doc.Attach(doc, track, &testTrack{Name: "Alpha\nlength: 9", Length: 3})
	if _, err := NewWriter(ts).Render(doc); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("opener err = %v, want ErrInvalidValue", err)
	}
}

func TestWriteFile_ConstrainedWithoutExistingFile(t *testing.T) {
	ts := newTestSchema(t)
	path := filepath.Join(t.TempDir(), "fresh.txt")

	if _, err := NewWriter(ts.Schema).WriteFile(path, ts.newDoc(0, "Fresh", "a"), Only(ts.items)); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	doc, _ := mustParse(t, ts.Schema, string(data))
	if doc.Title != "Fresh" {
		t.Errorf("new file should carry every context, got %+v", doc)
	}
}

func TestWriteFile_Compressed(t *testing.T) {
	ts := newTestSchema(t)
	dir := t.TempDir()

	for _, name := range []string{"doc.txt.zst", "doc.txt.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if _, err := NewWriter(ts.Schema).WriteFile(path, ts.newDoc(0, "Packed tight", "a"), nil); err != nil {
				t.Fatal(err)
			}
			raw, _ := os.ReadFile(path)
			if strings.HasPrefix(string(raw), "META") {
				t.Error("file content is not compressed")
			}
			res, err := NewReader(ts.Schema).ParseFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if res.Record.(*testDoc).Title != "Packed tight" {
				t.Errorf("read back %+v", res.Record)
			}
		})
	}
}

// ============================================================
// Reformatting
// ============================================================

func TestFormat(t *testing.T) {
	ts := newTestSchema(t)
	w := NewWriter(ts.Schema)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "spacing and indent",
			in:   lines("  META:", "title:   A", "", "", "", "// comment", "ITEMS 2", "  item:b"),
			want: lines("META", "\ttitle: A", "", "// comment", "ITEMS 2", "\titem: b"),
		},
		{
			name: "blank inserted between contexts",
			in:   lines("", "META", "\ttitle: A", "ITEMS", "\titem: b", "", ""),
			want: lines("META", "\ttitle: A", "", "ITEMS", "\titem: b"),
		},
		{
			name: "markers",
			in:   lines("[ 0001 ]", "META", "title: A", "[ 0002 ]", "META", "title: B"),
			want: lines("[ 0001 ]", "META", "\ttitle: A", "", "[ 0002 ]", "META", "\ttitle: B"),
		},
		{
			name: "lines outside contexts kept",
			in:   lines("stray text", "META", "\ttitle: A"),
			want: lines("stray text", "", "META", "\ttitle: A"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(w.Format([]byte(tt.in)))
			if got != tt.want {
				t.Fatalf("Format:\n%q\nwant:\n%q", got, tt.want)
			}
			if again := string(w.Format([]byte(got))); again != got {
				t.Errorf("Format is not idempotent:\n%q\nvs\n%q", again, got)
			}
		})
	}
}

func TestFormat_PreservesValues(t *testing.T) {
	ts := newTestSchema(t)
	in := lines("META", "   title:   spaced out  ", "  count:  7", "ITEMS 3", "item:  x y z")
	before, _ := mustParse(t, ts.Schema, in)
	after, _ := mustParse(t, ts.Schema, string(NewWriter(ts.Schema).Format([]byte(in))))

	if before.Title != after.Title || before.Count != after.Count {
		t.Errorf("values changed: %+v vs %+v", before, after)
	}
	a := AttachedAs[*testItem](before, ts.items)
	b := AttachedAs[*testItem](after, ts.items)
	if len(a) != 1 || len(b) != 1 || a[0].Name != b[0].Name || a[0].Index != b[0].Index {
		t.Errorf("items changed: %+v vs %+v", a, b)
	}
}

func TestReformat(t *testing.T) {
	ts := newTestSchema(t)
	path := filepath.Join(t.TempDir(), "messy.txt")
	if err := os.WriteFile(path, []byte("META:\ntitle:A\n\n\nITEMS\n   item: b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := NewWriter(ts.Schema)

	res, err := w.Reformat(path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Unchanged {
		t.Error("messy file should be rewritten")
	}
	got, _ := os.ReadFile(path)
	if want := lines("META", "\ttitle: A", "", "ITEMS", "\titem: b"); string(got) != want {
		t.Errorf("Reformat:\n%q\nwant:\n%q", got, want)
	}

	res, err = w.Reformat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Unchanged {
		t.Error("formatted file should be left alone")
	}
}

func TestReformat_Missing(t *testing.T) {
	ts := newTestSchema(t)
	_, err := NewWriter(ts.Schema).Reformat(filepath.Join(t.TempDir(), "none.txt"))
	if !errors.Is(err, ErrIO) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}
