package sectext

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/Neumenon/sectext/stream"
)

// PackedPath returns the file path of window n under folder, including
// the writer's compression extension.
func (w *Writer) PackedPath(folder string, width, n int) (string, error) {
	pack := w.schema.pack
	if pack == nil {
		return "", ErrNoPacking
	}
	return filepath.Join(folder, pack.Filename(width, n)+w.opts.compression.Ext()), nil
}

// WritePacked writes records into the file of window n (width records per
// file) under folder. Every record's Index must lie in the window, or
// nothing is written. Records already in the file and not being replaced
// are carried over line for line; with a constraint, replaced records keep
// the source lines of their contexts outside the constraint.
//
// An existing file whose entries cannot all be placed (a marker index
// that does not parse, an index outside the window, an index given twice)
// is left untouched and the write fails with KindPackingIndexInvalid.
func (w *Writer) WritePacked(folder string, width, n int, records []Record, c *Constraint) (*WriteResult, error) {
	pack := w.schema.pack
	if pack == nil {
		return nil, ErrNoPacking
	}
	if width <= 0 || n < 0 {
		return nil, &Error{Kind: KindPackingIndexInvalid, Err: fmt.Errorf("window %d of width %d", n, width)}
	}
	start, end := pack.Window(width, n)

	fresh := make(map[int]Record, len(records))
	for _, r := range records {
		idx := r.Base().Index
		if idx < start || idx > end {
			return nil, &Error{Kind: KindPackingIndexInvalid,
				Err: fmt.Errorf("index %d outside window %d..%d", idx, start, end)}
		}
		if _, dup := fresh[idx]; dup {
			return nil, &Error{Kind: KindPackingIndexInvalid, Err: fmt.Errorf("index %d given twice", idx)}
		}
		fresh[idx] = r
	}

	path, _ := w.PackedPath(folder, width, n)
	existing, err := stream.LoadFile(path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, ioError(path, err)
	}

	fallback := make(map[int]packedEntry)
	if exists {
		entries, err := w.reader.parsePacked(stream.NewCursor(stream.SplitLines(string(existing))))
		if err != nil {
			return nil, withPath(err, path)
		}
		for _, e := range entries {
			var problem error
			switch {
			case e.idxErr != nil:
				problem = fmt.Errorf("existing marker %q: %w", e.token, e.idxErr)
			case e.index < start || e.index > end:
				problem = fmt.Errorf("existing record %d outside window %d..%d", e.index, start, end)
			default:
				if _, dup := fallback[e.index]; dup {
					problem = fmt.Errorf("existing record %d appears twice", e.index)
				}
			}
			if problem != nil {
				w.opts.logger.Warn("packed window not merged", "path", path, "line", e.line, "error", problem)
				return nil, &Error{Kind: KindPackingIndexInvalid, Path: path, Line: e.line, Err: problem}
			}
			fallback[e.index] = e
		}
	}

	data, count, err := w.renderWindow(start, end, fresh, fallback, c)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", path, err)
	}
	return w.commit(path, data, existing, exists, count)
}

// RenderPacked returns the packed text of records without touching disk.
// Records are written in index order.
func (w *Writer) RenderPacked(records []Record) ([]byte, error) {
	if w.schema.pack == nil {
		return nil, ErrNoPacking
	}
	fresh := make(map[int]Record, len(records))
	lo, hi := 0, 0
	for i, r := range records {
		idx := r.Base().Index
		if _, dup := fresh[idx]; dup {
			return nil, &Error{Kind: KindPackingIndexInvalid, Err: fmt.Errorf("index %d given twice", idx)}
		}
		fresh[idx] = r
		if i == 0 || idx < lo {
			lo = idx
		}
		if i == 0 || idx > hi {
			hi = idx
		}
	}
	data, _, err := w.renderWindow(lo, hi, fresh, nil, nil)
	return data, err
}

// renderWindow emits, for each index from start to end that has a new or
// carried-over record, the marker line, the record's text and the
// configured spacing. Carried-over records keep their source lines.
func (w *Writer) renderWindow(start, end int, fresh map[int]Record, fallback map[int]packedEntry, c *Constraint) ([]byte, int, error) {
	pack := w.schema.pack
	var out bytes.Buffer
	count := 0
	for idx := start; idx <= end; idx++ {
		rec, isNew := fresh[idx]
		old, hasOld := fallback[idx]
		if !isNew && !hasOld {
			continue
		}

		out.WriteString(pack.Marker(idx))
		out.WriteByte('\n')
		if isNew {
			var existing *Result
			if hasOld {
				existing = old.result
			}
			data, err := w.render(rec, c, existing)
			if err != nil {
				return nil, 0, fmt.Errorf("record %d: %w", idx, err)
			}
			out.Write(data)
		} else {
			for _, line := range old.body {
				out.WriteString(line)
				out.WriteByte('\n')
			}
		}
		for i := 0; i < pack.Spacing; i++ {
			out.WriteByte('\n')
		}
		count++
	}
	return out.Bytes(), count, nil
}
