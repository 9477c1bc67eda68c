package sectext

import (
	"github.com/Neumenon/sectext/stream"
)

// ParsePacked parses a packed file. Records that fail the schema's
// validity predicate are left out, as are records whose marker index
// cannot be read.
func (r *Reader) ParsePacked(path string) ([]*Result, error) {
	lines, err := stream.LoadLines(path)
	if err != nil {
		return nil, ioError(path, err)
	}
	results, err := r.readPacked(stream.NewCursor(lines))
	if err != nil {
		return nil, withPath(err, path)
	}
	return results, nil
}

// ParsePackedBytes parses packed content held in memory.
func (r *Reader) ParsePackedBytes(data []byte) ([]*Result, error) {
	return r.readPacked(stream.NewCursor(stream.SplitLines(string(data))))
}

// ParsePackedCursor parses the remaining lines of c as packed content.
func (r *Reader) ParsePackedCursor(c *stream.Cursor) ([]*Result, error) {
	return r.readPacked(c)
}

func (r *Reader) readPacked(c *stream.Cursor) ([]*Result, error) {
	entries, err := r.parsePacked(c)
	if err != nil {
		return nil, err
	}
	var results []*Result
	for _, e := range entries {
		if e.idxErr != nil {
			r.opts.logger.Warn("packed record with unreadable index dropped",
				"line", e.line, "token", e.token, "error", e.idxErr)
			continue
		}
		if !e.result.Valid {
			r.opts.logger.Debug("invalid packed record excluded", "index", e.index, "line", e.line)
			continue
		}
		results = append(results, e.result)
	}
	return results, nil
}

// packedEntry is one marker and the record parsed from the lines up to
// the next marker.
type packedEntry struct {
	result *Result
	index  int
	idxErr error
	token  string
	line   int      // marker line
	body   []string // source lines after the marker, trailing blanks dropped
}

// parsePacked scans for marker lines and parses the lines after each as
// one record. Each record is fenced at the next marker, so nothing it
// delegates to can read into the following record. Every entry is
// returned, including invalid records and unreadable markers; callers
// decide what to keep.
func (r *Reader) parsePacked(c *stream.Cursor) ([]packedEntry, error) {
	pack := r.schema.pack
	if pack == nil {
		return nil, ErrNoPacking
	}

	var entries []packedEntry
	for {
		raw, ok := c.Next()
		if !ok {
			break
		}
		token, isMarker := pack.markerToken(raw)
		if !isMarker {
			if correctLine(raw) != "" {
				r.opts.logger.Debug("line outside packed record ignored", "line", c.Line())
			}
			continue
		}

		e := packedEntry{token: token, line: c.Line()}
		e.index, e.idxErr = pack.ParseIndex(token)

		start := c.Pos()
		stop := c.IndexFunc(pack.IsMarker)
		prev := c.Limit(stop)
		p := r.newParser(c)
		if e.idxErr == nil {
			p.record.Base().Index = e.index
		}
		res, err := p.run()
		c.Limit(prev)
		if err != nil {
			return nil, err
		}
		e.result = res

		e.body = sourceLines(c.Slice(start, stop))
		entries = append(entries, e)
	}
	return entries, nil
}
