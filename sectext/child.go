package sectext

import (
	"fmt"

	"github.com/Neumenon/sectext/stream"
)

// ChildParser parses an embedded sub-document. It receives the cursor
// positioned after the trigger line and must consume at least one line.
type ChildParser interface {
	ParseChild(c *stream.Cursor) (InnerRecord, Diagnostics, error)
}

// ChildParserFunc adapts a function to ChildParser.
type ChildParserFunc func(c *stream.Cursor) (InnerRecord, Diagnostics, error)

// ParseChild implements ChildParser.
func (f ChildParserFunc) ParseChild(c *stream.Cursor) (InnerRecord, Diagnostics, error) {
	return f(c)
}

// Embedding routes a trigger line to a child parser whose result is filed
// under Context.
type Embedding struct {
	Trigger string
	Context ContextID
	Child   ChildParser
}

// SubDocument parses embedded lines with a child schema until a line
// equal to terminator (consumed) or the end of input. Inside a packed file
// the input ends at the next marker. wrap turns the child's record into
// the inner record filed in the parent.
func SubDocument(child *Schema, terminator string, wrap func(Record) InnerRecord, opts ...Option) ChildParser {
	return &subDocument{
		reader:     NewReader(child, opts...),
		terminator: terminator,
		wrap:       wrap,
	}
}

type subDocument struct {
	reader     *Reader
	terminator string
	wrap       func(Record) InnerRecord
}

func (d *subDocument) ParseChild(c *stream.Cursor) (InnerRecord, Diagnostics, error) {
	p := d.reader.newParser(c)
	p.terminator = d.terminator
	res, err := p.run()
	if err != nil {
		return nil, nil, err
	}
	ir := d.wrap(res.Record)
	if ir == nil {
		return nil, res.Diagnostics, fmt.Errorf("sub-document %q: %w", d.reader.schema.Name(), ErrNotApplicable)
	}
	return ir, res.Diagnostics, nil
}
