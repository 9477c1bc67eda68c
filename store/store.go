// Package store keeps a directory of packed record files and serves
// records by index. Window n of width W lives in one file named by the
// schema's packing configuration; the store groups writes by window and
// caches parsed windows, revalidating each against the file's content
// fingerprint so edits made outside the store are picked up.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Neumenon/sectext/sectext"
	"github.com/Neumenon/sectext/stream"
)

const (
	DefaultWidth     = 100
	DefaultCacheSize = 64
)

// Options configures a Store. Zero values take the defaults.
type Options struct {
	Width       int                // records per window file
	CacheSize   int                // parsed windows kept in memory
	Compression stream.Compression // on-disk encoding of window files
	Logger      *slog.Logger
}

// Store is a directory of packed windows under one schema. It is safe for
// concurrent use; calls are serialized.
type Store struct {
	dir    string
	width  int
	pack   *sectext.PackConfig
	reader *sectext.Reader
	writer *sectext.Writer
	log    *slog.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, *window]
}

// window is one parsed window file.
type window struct {
	fp      stream.Fingerprint
	records map[int]sectext.Record
}

// Open returns a store over dir. The directory is created on first write.
func Open(dir string, s *sectext.Schema, opts Options) (*Store, error) {
	if s.Packing() == nil {
		return nil, fmt.Errorf("store %s: %w", dir, sectext.ErrNoPacking)
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	cache, err := lru.New[string, *window](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger.With("store", dir)
	return &Store{
		dir:    dir,
		width:  opts.Width,
		pack:   s.Packing(),
		reader: sectext.NewReader(s, sectext.WithLogger(logger)),
		writer: sectext.NewWriter(s, sectext.WithLogger(logger), sectext.WithCompression(opts.Compression)),
		log:    logger,
		cache:  cache,
	}, nil
}

// Dir returns the store directory.
func (st *Store) Dir() string { return st.dir }

// Width returns the number of indices per window.
func (st *Store) Width() int { return st.width }

// Get returns the valid record with the given index. Returned records are
// shared with the cache and must not be modified; Put a changed copy
// instead.
func (st *Store) Get(index int) (sectext.Record, bool, error) {
	if index <= 0 {
		return nil, false, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	w, err := st.load(sectext.WindowOf(index, st.width))
	if err != nil {
		return nil, false, err
	}
	r, ok := w.records[index]
	return r, ok, nil
}

// Window returns the valid records of window n in index order.
func (st *Store) Window(n int) ([]sectext.Record, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	w, err := st.load(n)
	if err != nil {
		return nil, err
	}
	return w.sorted(), nil
}

// All returns every valid record in index order.
func (st *Store) All() ([]sectext.Record, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	windows, err := st.windows()
	if err != nil {
		return nil, err
	}
	var out []sectext.Record
	for _, n := range windows {
		w, err := st.load(n)
		if err != nil {
			return nil, err
		}
		out = append(out, w.sorted()...)
	}
	return out, nil
}

// Put writes records into their windows. Records sharing a window are
// written together; windows are written in ascending order and the first
// failure stops the call.
func (st *Store) Put(records ...sectext.Record) ([]*sectext.WriteResult, error) {
	return st.PutConstrained(nil, records...)
}

// PutConstrained is Put with a constraint: contexts outside c keep their
// stored content for records that already exist.
func (st *Store) PutConstrained(c *sectext.Constraint, records ...sectext.Record) ([]*sectext.WriteResult, error) {
	groups := make(map[int][]sectext.Record)
	for _, r := range records {
		idx := r.Base().Index
		if idx <= 0 {
			return nil, &sectext.Error{Kind: sectext.KindPackingIndexInvalid,
				Err: fmt.Errorf("record index %d: indices start at 1", idx)}
		}
		n := sectext.WindowOf(idx, st.width)
		groups[n] = append(groups[n], r)
	}
	order := make([]int, 0, len(groups))
	for n := range groups {
		order = append(order, n)
	}
	sort.Ints(order)

	st.mu.Lock()
	defer st.mu.Unlock()

	results := make([]*sectext.WriteResult, 0, len(order))
	for _, n := range order {
		res, err := st.writer.WritePacked(st.dir, st.width, n, groups[n], c)
		if err != nil {
			return results, err
		}
		if !res.Unchanged {
			st.cache.Remove(res.Path)
		}
		st.log.Debug("window stored", "window", n, "path", res.Path, "records", res.Records, "unchanged", res.Unchanged)
		results = append(results, res)
	}
	return results, nil
}

// Windows lists the windows present on disk, ascending. Files of another
// width or compression are ignored.
func (st *Store) Windows() ([]int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.windows()
}

func (st *Store) windows() ([]int, error) {
	entries, err := os.ReadDir(st.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &sectext.Error{Kind: sectext.KindIO, Path: st.dir, Err: err}
	}

	var out []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		start, _, ok := st.pack.ParseFilename(e.Name())
		if !ok {
			continue
		}
		n := sectext.WindowOf(start, st.width)
		path, _ := st.writer.PackedPath(st.dir, st.width, n)
		if e.Name() != filepath.Base(path) {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// load returns window n, from cache when the file content is unchanged.
// A missing file is an empty window.
func (st *Store) load(n int) (*window, error) {
	path, err := st.writer.PackedPath(st.dir, st.width, n)
	if err != nil {
		return nil, err
	}
	data, err := stream.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		st.cache.Remove(path)
		return &window{records: map[int]sectext.Record{}}, nil
	}
	if err != nil {
		return nil, &sectext.Error{Kind: sectext.KindIO, Path: path, Err: err}
	}

	fp := stream.FingerprintBytes(data)
	if w, ok := st.cache.Get(path); ok && w.fp == fp {
		return w, nil
	}

	results, err := st.reader.ParsePackedBytes(data)
	if err != nil {
		var e *sectext.Error
		if errors.As(err, &e) && e.Path == "" {
			e.Path = path
		}
		return nil, err
	}
	w := &window{fp: fp, records: make(map[int]sectext.Record, len(results))}
	for _, res := range results {
		idx := res.Record.Base().Index
		if !st.pack.InWindow(idx, st.width, n) {
			st.log.Warn("record outside its window ignored", "path", path, "index", idx)
			continue
		}
		w.records[idx] = res.Record
	}
	st.cache.Add(path, w)
	st.log.Debug("window loaded", "path", path, "records", len(w.records), "fingerprint", fp.String())
	return w, nil
}

func (w *window) sorted() []sectext.Record {
	idx := make([]int, 0, len(w.records))
	for i := range w.records {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]sectext.Record, len(idx))
	for i, k := range idx {
		out[i] = w.records[k]
	}
	return out
}
