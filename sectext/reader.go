package sectext

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/Neumenon/sectext/stream"
)

// Result is one parsed record with everything learned while parsing it.
type Result struct {
	Record      Record
	Valid       bool
	Diagnostics Diagnostics

	// source lines, for constrained rewrites: what precedes the first
	// context, and each context occurrence
	preamble []string
	spans    map[ContextID][][]string
}

// Records extracts the records of a result list.
func Records(results []*Result) []Record {
	out := make([]Record, len(results))
	for i, r := range results {
		out[i] = r.Record
	}
	return out
}

// Reader parses text into records under one schema. Each call owns its
// parsing state, so a Reader holds only configuration; still, results are
// only defined for one in-flight call per Reader.
type Reader struct {
	schema *Schema
	opts   options
}

// NewReader returns a reader for s.
func NewReader(s *Schema, opts ...Option) *Reader {
	return &Reader{schema: s, opts: buildOptions(opts)}
}

// Schema returns the reader's schema.
func (r *Reader) Schema() *Schema { return r.schema }

// Parse reads all of src and parses it as one record.
func (r *Reader) Parse(src io.Reader) (*Result, error) {
	lines, err := stream.ReadLines(src)
	if err != nil {
		return nil, ioError("", err)
	}
	return r.ParseCursor(stream.NewCursor(lines))
}

// ParseBytes parses data as one record.
func (r *Reader) ParseBytes(data []byte) (*Result, error) {
	return r.ParseCursor(stream.NewCursor(stream.SplitLines(string(data))))
}

// ParseFile loads path (decompressing .zst/.lz4) and parses one record.
func (r *Reader) ParseFile(path string) (*Result, error) {
	lines, err := stream.LoadLines(path)
	if err != nil {
		return nil, ioError(path, err)
	}
	res, err := r.ParseCursor(stream.NewCursor(lines))
	if err != nil {
		return nil, withPath(err, path)
	}
	return res, nil
}

// ParseCursor parses the remaining lines of c as one record.
func (r *Reader) ParseCursor(c *stream.Cursor) (*Result, error) {
	return r.newParser(c).run()
}

func withPath(err error, path string) error {
	var e *Error
	if errors.As(err, &e) && e.Path == "" {
		e.Path = path
	}
	return err
}

// ============================================================
// Parser state machine
// ============================================================

// parser is the per-call state of one record parse.
type parser struct {
	schema *Schema
	log    *slog.Logger
	cur    *stream.Cursor
	record Record

	current ContextID
	pos     int
	buffers map[ContextID][]Term
	open    map[ContextID][]InnerRecord
	diags   Diagnostics

	terminator string // sub-documents: stop after this line

	start     int       // line index where this parse began
	spanned   bool      // a context occurrence has started
	spanCtx   ContextID // context whose source lines are being collected
	spanStart int       // line index where that occurrence starts
	preamble  []string
	spans     map[ContextID][][]string
}

func (r *Reader) newParser(c *stream.Cursor) *parser {
	return &parser{
		schema:  r.schema,
		log:     r.opts.logger,
		cur:     c,
		start:   c.Pos(),
		record:  r.schema.NewRecord(),
		buffers: make(map[ContextID][]Term),
		open:    make(map[ContextID][]InnerRecord),
		spans:   make(map[ContextID][][]string),
	}
}

func (p *parser) run() (*Result, error) {
	for {
		raw, ok := p.cur.Next()
		if !ok {
			break
		}
		line := p.cur.Line()

		full := correctLine(raw)
		if p.terminator != "" && strings.EqualFold(full, p.terminator) {
			p.endSpan(p.cur.Pos() - 1)
			break
		}

		text, index := p.splitIndexer(raw)
		text = correctLine(text)

		if isFiltered(text) {
			p.endContext()
			continue
		}

		if emb := p.schema.embedFor(full); emb != nil {
			if err := p.delegate(emb, line); err != nil {
				return nil, err
			}
			continue
		}

		if m, ok := p.schema.detectContext(text); ok {
			p.openContext(m, index, line)
			continue
		}

		p.readField(text, line)
	}

	p.endContext()
	p.flush()
	p.endSpan(p.cur.Pos())
	if !p.spanned {
		p.preamble = sourceLines(p.cur.Slice(p.start, p.cur.Pos()))
	}

	base := p.record.Base()
	base.Valid = p.schema.Valid(p.record)
	return &Result{
		Record:      p.record,
		Valid:       base.Valid,
		Diagnostics: p.diags,
		preamble:    p.preamble,
		spans:       p.spans,
	}, nil
}

// beginSpan starts collecting the source lines of a new occurrence of ctx
// at the line just read. An occurrence runs until the next one starts, so
// comments and unknown lines after it stay with it.
func (p *parser) beginSpan(ctx ContextID) {
	at := p.cur.Pos() - 1
	p.endSpan(at)
	if !p.spanned {
		p.spanned = true
		p.preamble = sourceLines(p.cur.Slice(p.start, at))
	}
	p.spanCtx = ctx
	p.spanStart = at
}

// endSpan closes the open occurrence before line index at. Trailing blank
// lines are not part of it.
func (p *parser) endSpan(at int) {
	if p.spanCtx == ContextNone {
		return
	}
	p.spans[p.spanCtx] = append(p.spans[p.spanCtx], sourceLines(p.cur.Slice(p.spanStart, at)))
	p.spanCtx = ContextNone
}

// sourceLines copies lines without their trailing blank lines. It returns
// nil when nothing but blanks remain.
func sourceLines(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil
	}
	return append([]string(nil), lines...)
}

// splitIndexer reads "<name> <index>" lines. Only colon-free lines of
// exactly two tokens qualify, and a line that is itself a context name
// is left whole.
func (p *parser) splitIndexer(raw string) (text, index string) {
	if strings.Contains(raw, ":") {
		return raw, ""
	}
	trimmed := strings.TrimSpace(raw)
	if _, ok := p.schema.byName[trimmed]; ok {
		return raw, ""
	}
	fields := strings.Fields(trimmed)
	if len(fields) != 2 {
		return raw, ""
	}
	return fields[0], fields[1]
}

// correctLine trims the line and drops a trailing bare colon.
func correctLine(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasSuffix(text, ":") {
		text = strings.TrimSpace(strings.TrimSuffix(text, ":"))
	}
	return text
}

// isFiltered reports blank lines and comment lines, both of which end the
// current context.
func isFiltered(text string) bool {
	return text == "" ||
		strings.HasPrefix(text, "//") ||
		strings.HasPrefix(text, "--") ||
		strings.HasPrefix(text, "__")
}

// splitField splits "key: content".
func splitField(text string) (key, content string, ok bool) {
	key, content, found := strings.Cut(text, ":")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(content), true
}

func (p *parser) openContext(m contextMatch, index string, line int) {
	p.endContext()
	p.beginSpan(m.ctx)
	p.current = m.ctx
	p.pos = 0

	c := p.schema.context(m.ctx)
	switch c.rule.Kind {
	case RuleSingular, RuleMultiple:
		ir := c.rule.New()
		if ir == nil {
			p.report(KindDataTargetMissing, line, m.ctx, "", "inner record creator returned nil", nil)
			break
		}
		ir.Inner().ctx = m.ctx
		if index != "" {
			if c.rule.Kind == RuleMultiple {
				if err := c.rule.ParseIndex(ir, index); err != nil {
					p.report(KindValueParse, line, m.ctx, "index", "bad index token "+index, err)
				}
			} else {
				p.log.Debug("index token ignored for singular context", "line", line, "context", c.name, "index", index)
			}
		}
		p.open[m.ctx] = append(p.open[m.ctx], ir)
	default:
		if index != "" {
			p.log.Debug("index token ignored for context without rule", "line", line, "context", c.name, "index", index)
		}
	}

	if m.opener != nil && m.content != "" {
		p.push(Term{Key: m.opener.Key, Content: m.content, Line: line})
	}
}

func (p *parser) readField(text string, line int) {
	if p.current == ContextNone {
		p.report(KindLineSkipped, line, ContextNone, "", "line outside any context", nil)
		return
	}
	key, content, ok := splitField(text)
	if !ok {
		p.report(KindLineSkipped, line, p.current, "", "not a key: content line", nil)
		return
	}
	p.push(Term{Key: key, Content: content, Line: line})
}

func (p *parser) push(t Term) {
	t.Context = p.current
	t.Pos = p.pos
	p.pos++
	p.buffers[p.current] = append(p.buffers[p.current], t)
}

// endContext solves the open context and closes its inner records.
func (p *parser) endContext() {
	if p.current == ContextNone {
		return
	}
	p.solve(p.current)
	for _, ir := range p.open[p.current] {
		ir.Inner().close()
	}
	p.current = ContextNone
	p.pos = 0
}

// delegate hands the lines after an embed trigger to the child parser and
// files the returned inner record.
func (p *parser) delegate(emb *Embedding, line int) error {
	p.endContext()
	p.beginSpan(emb.Context)

	start := p.cur.Pos()
	ir, diags, err := emb.Child.ParseChild(p.cur)
	if err != nil {
		return &Error{Kind: KindChildParse, Line: line, Err: err}
	}
	if p.cur.Pos() <= start {
		return &Error{Kind: KindChildParse, Line: line, Err: errors.New("child parser consumed no lines")}
	}
	if ir == nil {
		return &Error{Kind: KindChildParse, Line: line, Err: errors.New("child parser returned no record")}
	}
	p.diags = append(p.diags, diags...)

	ib := ir.Inner()
	ib.ctx = emb.Context
	ib.close()
	p.open[emb.Context] = append(p.open[emb.Context], ir)
	p.flush()
	p.current = ContextNone
	return nil
}

// flush attaches every buffered inner record list to the record. A list
// entry whose context differs from the key it is filed under is dropped.
func (p *parser) flush() {
	base := p.record.Base()
	for _, id := range p.schema.Contexts() {
		list := p.open[id]
		if len(list) == 0 {
			continue
		}
		for _, ir := range list {
			if ir.Inner().ctx != id {
				p.log.Warn("stale inner record dropped", "context", p.schema.ContextName(id))
				continue
			}
			base.Attach(p.record, id, ir)
		}
		delete(p.open, id)
	}
}

func (p *parser) report(kind Kind, line int, ctx ContextID, key, msg string, err error) {
	d := Diagnostic{
		Kind:    kind,
		Line:    line,
		Context: p.schema.ContextName(ctx),
		Key:     key,
		Message: msg,
		Err:     err,
	}
	p.diags = append(p.diags, d)
	p.log.Debug("term skipped", "kind", kind.String(), "line", line, "context", d.Context, "key", key, "error", d.Error())
}
