package sectext

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/Neumenon/sectext/stream"
)

// Constraint limits a write to some contexts. Contexts outside the
// constraint are taken from the file being replaced, so a narrow update
// never loses the rest of the file. A nil Constraint covers everything.
type Constraint struct {
	contexts map[ContextID]bool
}

// Only returns a constraint covering exactly the given contexts.
func Only(ctxs ...ContextID) *Constraint {
	c := &Constraint{contexts: make(map[ContextID]bool, len(ctxs))}
	for _, id := range ctxs {
		c.contexts[id] = true
	}
	return c
}

// Includes reports whether ctx is written from the new record.
func (c *Constraint) Includes(ctx ContextID) bool {
	return c == nil || c.contexts[ctx]
}

// Contexts returns the covered contexts in ordinal order.
func (c *Constraint) Contexts() []ContextID {
	if c == nil {
		return nil
	}
	ids := make([]ContextID, 0, len(c.contexts))
	for id := range c.contexts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// WriteResult reports what a write did.
type WriteResult struct {
	Path      string
	Records   int  // records written (packed writes count carried-over ones)
	Bytes     int  // size of the rendered text
	Unchanged bool // the file already held exactly this text
}

// Writer turns records back into text under one schema. Like Reader it
// keeps only configuration; all buffers belong to the call.
type Writer struct {
	schema *Schema
	reader *Reader
	opts   options
}

// NewWriter returns a writer for s.
func NewWriter(s *Schema, opts ...Option) *Writer {
	return &Writer{schema: s, reader: NewReader(s, opts...), opts: buildOptions(opts)}
}

// Schema returns the writer's schema.
func (w *Writer) Schema() *Schema { return w.schema }

// Render returns the text of r.
func (w *Writer) Render(r Record) ([]byte, error) {
	return w.render(r, nil, nil)
}

// render writes r context by context in write order. A context outside c
// comes from existing instead: its source lines are copied unchanged, or,
// when existing has none for it, its record is emitted. Lines of existing
// that precede the first context are kept at the top.
func (w *Writer) render(r Record, c *Constraint, existing *Result) ([]byte, error) {
	var out bytes.Buffer
	started := false
	separate := func() {
		if started {
			out.WriteByte('\n')
		}
		started = true
	}
	writeLines := func(lines []string) {
		for _, line := range lines {
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}

	// Lines ahead of the first context run straight into it.
	if existing != nil && c != nil {
		writeLines(existing.preamble)
	}

	buf := newTerms(w.schema)
	for _, id := range w.schema.Contexts() {
		src := r
		if !c.Includes(id) && existing != nil {
			if spans := existing.spans[id]; len(spans) > 0 {
				for _, span := range spans {
					separate()
					writeLines(span)
				}
				continue
			}
			src = existing.Record
		}
		ctx := w.schema.context(id)
		if ctx.emitter == nil || src == nil {
			continue
		}
		from := len(buf.terms)
		buf.bind(id)
		ctx.emitter(src, buf)
		if terms := buf.terms[from:]; len(terms) > 0 {
			separate()
			w.renderTerms(&out, terms)
		}
	}
	if err := buf.err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// renderTerms formats terms. A term whose context differs from the
// previous one, or that opens an occurrence, is preceded by a blank line
// (except at the start) and the context's opening text; field terms are
// written indented as "key: content".
func (w *Writer) renderTerms(out *bytes.Buffer, terms []Term) {
	prev := ContextNone
	started := false
	for _, t := range terms {
		if t.Opens || t.Context != prev {
			if started {
				out.WriteByte('\n')
			}
			out.WriteString(w.header(t))
			out.WriteByte('\n')
			prev = t.Context
			started = true
			if t.Opens {
				continue
			}
		}
		if t.Key == "" {
			continue
		}
		line := w.opts.indent + t.Key + ": " + t.Content
		if w.opts.formatter != nil {
			line = w.opts.formatter(t, line)
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
}

// header is the opening line of a context occurrence.
func (w *Writer) header(t Term) string {
	if t.Opens && t.Key != "" {
		return t.Key + ": " + t.Content
	}
	text := w.schema.OpeningText(t.Context)
	if t.Index != "" {
		text += " " + t.Index
	}
	return text
}

// WriteFile writes r to path. With a constraint, an existing file is
// parsed first and the contexts outside the constraint are copied from it
// line for line, comments and unknown keys included. The new text is fully rendered before the destination is touched
// and replaces it atomically; if the file already holds the same text it
// is left alone.
func (w *Writer) WriteFile(path string, r Record, c *Constraint) (*WriteResult, error) {
	existing, err := stream.LoadFile(path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, ioError(path, err)
	}

	var fallback *Result
	if c != nil && exists {
		fallback, err = w.reader.ParseBytes(existing)
		if err != nil {
			return nil, withPath(err, path)
		}
	}

	data, err := w.render(r, c, fallback)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", path, err)
	}
	return w.commit(path, data, existing, exists, 1)
}

// commit writes data unless the file already holds it.
func (w *Writer) commit(path string, data, existing []byte, exists bool, records int) (*WriteResult, error) {
	result := &WriteResult{Path: path, Records: records, Bytes: len(data)}
	if exists && stream.FingerprintBytes(existing) == stream.FingerprintBytes(data) {
		result.Unchanged = true
		w.opts.logger.Debug("write skipped, content unchanged", "path", path)
		return result, nil
	}
	if err := stream.WriteFileAtomic(path, data, w.opts.perm); err != nil {
		return nil, ioError(path, err)
	}
	w.opts.logger.Debug("file written", "path", path, "bytes", len(data), "records", records)
	return result, nil
}

// ============================================================
// Reformatting
// ============================================================

// Reformat rewrites path with normalized layout. Field values are not
// re-derived; only blank lines, indentation and spacing change.
func (w *Writer) Reformat(path string) (*WriteResult, error) {
	existing, err := stream.LoadFile(path)
	if err != nil {
		return nil, ioError(path, err)
	}
	return w.commit(path, w.Format(existing), existing, true, 0)
}

// Format normalizes text:
//   - context lines start at column 0, preceded by one blank line unless
//     they follow a comment, a pack marker or the start of the file
//   - field lines are indented and written as "key: content"
//   - runs of blank lines collapse to one; leading and trailing blank
//     lines are dropped
//
// Blank and comment lines keep their positions, since they end contexts.
// Format is idempotent.
func (w *Writer) Format(data []byte) []byte {
	var out bytes.Buffer
	const (
		prevNone = iota
		prevComment
		prevMarker
		prevHeader
		prevField
	)
	prev := prevNone
	pendingBlank := false
	current := ContextNone

	emit := func(line string, kind int) {
		if pendingBlank && prev != prevNone {
			out.WriteByte('\n')
		}
		pendingBlank = false
		out.WriteString(line)
		out.WriteByte('\n')
		prev = kind
	}

	for _, raw := range stream.SplitLines(string(data)) {
		trimmed := strings.TrimSpace(raw)

		if trimmed == "" {
			pendingBlank = true
			current = ContextNone
			continue
		}
		if w.schema.pack != nil && w.schema.pack.IsMarker(trimmed) {
			if prev != prevNone {
				pendingBlank = true
			}
			emit(trimmed, prevMarker)
			current = ContextNone
			continue
		}

		p := parser{schema: w.schema}
		text, index := p.splitIndexer(trimmed)
		text = correctLine(text)
		plain := correctLine(trimmed)

		if isFiltered(text) {
			emit(trimmed, prevComment)
			current = ContextNone
			continue
		}
		if m, ok := w.schema.detectContext(text); ok {
			if prev != prevComment && prev != prevMarker && prev != prevNone {
				pendingBlank = true
			}
			header := text
			if m.opener != nil && m.content != "" {
				header = strings.TrimSpace(strings.SplitN(text, ":", 2)[0]) + ": " + m.content
			} else if index != "" {
				header += " " + index
			}
			emit(header, prevHeader)
			current = m.ctx
			continue
		}
		if current == ContextNone {
			emit(plain, prevField)
			continue
		}
		if key, content, ok := splitField(plain); ok {
			line := w.opts.indent + key + ": " + content
			if w.opts.formatter != nil {
				line = w.opts.formatter(Term{Context: current, Key: key, Content: content}, line)
			}
			emit(line, prevField)
			continue
		}
		emit(w.opts.indent+plain, prevField)
	}
	return out.Bytes()
}
