package stream

// Cursor walks the lines of one document. The position is the index of the
// next unread line, so a reader that hands the cursor to a nested parser
// can tell afterwards whether anything was consumed.
//
// A limit can fence off the tail of the document: Next reports end of
// input at the limit, so nested parsers cannot read past it.
//
// A Cursor is not safe for concurrent use.
type Cursor struct {
	lines []string
	pos   int
	end   int
}

// NewCursor returns a cursor positioned before the first line.
func NewCursor(lines []string) *Cursor {
	return &Cursor{lines: lines, end: len(lines)}
}

// Next returns the next line and advances. ok is false at the limit.
func (c *Cursor) Next() (line string, ok bool) {
	if c.pos >= c.end {
		return "", false
	}
	line = c.lines[c.pos]
	c.pos++
	return line, true
}

// Pos returns the index of the next unread line.
func (c *Cursor) Pos() int {
	return c.pos
}

// Line returns the 1-based line number of the line most recently returned
// by Next (0 before the first call).
func (c *Cursor) Line() int {
	return c.pos
}

// Limit makes Next stop before line index end and returns the previous
// limit, so callers can restore it. end is clamped to [Pos, number of
// lines].
func (c *Cursor) Limit(end int) (prev int) {
	prev = c.end
	switch {
	case end < c.pos:
		end = c.pos
	case end > len(c.lines):
		end = len(c.lines)
	}
	c.end = end
	return prev
}

// IndexFunc returns the index of the first unread line before the limit
// for which match is true, or the limit if there is none. The cursor does
// not move.
func (c *Cursor) IndexFunc(match func(string) bool) int {
	for i := c.pos; i < c.end; i++ {
		if match(c.lines[i]) {
			return i
		}
	}
	return c.end
}

// Slice returns the lines with index in [from, to), clamped to the
// document. The result shares storage with the cursor.
func (c *Cursor) Slice(from, to int) []string {
	from = max(0, min(from, len(c.lines)))
	to = max(from, min(to, len(c.lines)))
	return c.lines[from:to]
}
