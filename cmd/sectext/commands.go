package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/Neumenon/sectext/sectext"
	"github.com/Neumenon/sectext/store"
	"github.com/Neumenon/sectext/stream"
)

// ============================================================
// check
// ============================================================

func runCheck(c *cli, args []string) error {
	fs := c.flagSet("[flags] file...")
	packed := fs.Bool("packed", false, "files are packed windows")
	quiet := fs.BoolP("quiet", "q", false, "only set the exit status")
	files, err := c.parse(args, 1)
	if err != nil {
		return err
	}

	reader := sectext.NewReader(c.schema.Schema, sectext.WithLogger(c.log))
	failed := false
	for _, path := range files {
		var results []*sectext.Result
		if *packed {
			results, err = reader.ParsePacked(path)
		} else {
			var res *sectext.Result
			res, err = reader.ParseFile(path)
			results = []*sectext.Result{res}
		}
		if err != nil {
			failed = true
			if !*quiet {
				fmt.Fprintf(c.stdout, "%s: %v\n", path, err)
			}
			continue
		}
		for _, res := range results {
			if res.Valid && len(res.Diagnostics) == 0 {
				continue
			}
			failed = true
			if *quiet {
				continue
			}
			where := path
			if *packed {
				where = fmt.Sprintf("%s#%d", path, res.Record.Base().Index)
			}
			for _, d := range res.Diagnostics {
				fmt.Fprintf(c.stdout, "%s: %v\n", where, d)
			}
			if !res.Valid {
				fmt.Fprintf(c.stdout, "%s: record is not valid\n", where)
			}
		}
	}
	if failed {
		return exitError{code: 1}
	}
	return nil
}

// ============================================================
// fmt
// ============================================================

func runFmt(c *cli, args []string) error {
	fs := c.flagSet("[flags] file...")
	check := fs.Bool("check", false, "list files that need formatting without rewriting them")
	files, err := c.parse(args, 1)
	if err != nil {
		return err
	}

	writer := sectext.NewWriter(c.schema.Schema, sectext.WithLogger(c.log))
	dirty := false
	for _, path := range files {
		if *check {
			data, err := stream.LoadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			if !bytes.Equal(writer.Format(data), data) {
				dirty = true
				fmt.Fprintln(c.stdout, path)
			}
			continue
		}
		res, err := writer.Reformat(path)
		if err != nil {
			return err
		}
		if !res.Unchanged {
			fmt.Fprintln(c.stdout, path)
		}
	}
	if dirty {
		return exitError{code: 1}
	}
	return nil
}

// ============================================================
// dump
// ============================================================

func runDump(c *cli, args []string) error {
	fs := c.flagSet("[flags] file")
	format := fs.StringP("format", "f", "json", "output format: json, yaml or cbor")
	packed := fs.Bool("packed", false, "file is a packed window")
	files, err := c.parse(args, 1)
	if err != nil {
		return err
	}

	reader := sectext.NewReader(c.schema.Schema, sectext.WithLogger(c.log))
	var out any
	if *packed {
		results, err := reader.ParsePacked(files[0])
		if err != nil {
			return err
		}
		list := make([]any, 0, len(results))
		for _, res := range results {
			list = append(list, c.schema.Export(res.Record))
		}
		out = list
	} else {
		res, err := reader.ParseFile(files[0])
		if err != nil {
			return err
		}
		for _, d := range res.Diagnostics {
			c.log.Warn("diagnostic", "path", files[0], "detail", d.Error())
		}
		out = c.schema.Export(res.Record)
	}
	return c.encode(*format, out)
}

// encode writes v to stdout in the named format.
func (c *cli) encode(format string, v any) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(c.stdout, "%s\n", data)
		return err
	case "yaml":
		enc := yaml.NewEncoder(c.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "cbor":
		encMode, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return err
		}
		data, err := encMode.Marshal(v)
		if err != nil {
			return err
		}
		_, err = c.stdout.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q (want json, yaml or cbor)", format)
	}
}

// ============================================================
// pack / unpack / get
// ============================================================

func (c *cli) openStore(dir string, width int) (*store.Store, error) {
	if width <= 0 {
		width = c.cfg.Pack.Width
	}
	return store.Open(dir, c.schema.Schema, store.Options{
		Width:       width,
		CacheSize:   c.cfg.Store.CacheSize,
		Compression: c.cfg.Compression(),
		Logger:      c.log,
	})
}

func runPack(c *cli, args []string) error {
	fs := c.flagSet("--out dir [flags] file...")
	out := fs.StringP("out", "o", "", "store directory (required)")
	start := fs.Int("start", 1, "index of the first record")
	width := fs.Int("width", 0, "records per window (default from config)")
	files, err := c.parse(args, 1)
	if err != nil {
		return err
	}
	if *out == "" {
		return errors.New("pack: --out is required")
	}
	if *start < 1 {
		return fmt.Errorf("pack: --start must be at least 1, got %d", *start)
	}

	st, err := c.openStore(*out, *width)
	if err != nil {
		return err
	}
	reader := sectext.NewReader(c.schema.Schema, sectext.WithLogger(c.log))
	records := make([]sectext.Record, 0, len(files))
	for i, path := range files {
		res, err := reader.ParseFile(path)
		if err != nil {
			return err
		}
		if !res.Valid {
			c.log.Warn("packing invalid record", "path", path)
		}
		res.Record.Base().Index = *start + i
		records = append(records, res.Record)
	}

	results, err := st.Put(records...)
	if err != nil {
		return err
	}
	for _, res := range results {
		state := "written"
		if res.Unchanged {
			state = "unchanged"
		}
		fmt.Fprintf(c.stdout, "%s: %d records, %s\n", res.Path, res.Records, state)
	}
	return nil
}

func runUnpack(c *cli, args []string) error {
	fs := c.flagSet("--out dir [flags] file...")
	out := fs.StringP("out", "o", "", "output directory (required)")
	digits := fs.Int("digits", 4, "zero-padded width of output file names")
	files, err := c.parse(args, 1)
	if err != nil {
		return err
	}
	if *out == "" {
		return errors.New("unpack: --out is required")
	}

	reader := sectext.NewReader(c.schema.Schema, sectext.WithLogger(c.log))
	writer := sectext.NewWriter(c.schema.Schema, sectext.WithLogger(c.log))
	ext := ".txt" + c.cfg.Compression().Ext()
	count := 0
	for _, path := range files {
		results, err := reader.ParsePacked(path)
		if err != nil {
			return err
		}
		for _, res := range results {
			name := fmt.Sprintf("%0*d%s", *digits, res.Record.Base().Index, ext)
			if _, err := writer.WriteFile(filepath.Join(*out, name), res.Record, nil); err != nil {
				return err
			}
			count++
		}
	}
	fmt.Fprintf(c.stdout, "%d records unpacked into %s\n", count, *out)
	return nil
}

func runGet(c *cli, args []string) error {
	fs := c.flagSet("--dir dir [flags] index...")
	dir := fs.StringP("dir", "d", "", "store directory (required)")
	width := fs.Int("width", 0, "records per window (default from config)")
	format := fs.StringP("format", "f", "text", "output format: text, json, yaml or cbor")
	rest, err := c.parse(args, 1)
	if err != nil {
		return err
	}
	if *dir == "" {
		return errors.New("get: --dir is required")
	}

	st, err := c.openStore(*dir, *width)
	if err != nil {
		return err
	}
	writer := sectext.NewWriter(c.schema.Schema, sectext.WithLogger(c.log))
	var exported []any
	for _, arg := range rest {
		index, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("get: bad index %q", arg)
		}
		r, ok, err := st.Get(index)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(c.stderr, "record %d not found\n", index)
			return exitError{code: 1}
		}
		if *format != "text" {
			exported = append(exported, c.schema.Export(r))
			continue
		}
		data, err := writer.Render(r)
		if err != nil {
			return err
		}
		if _, err := c.stdout.Write(data); err != nil {
			return err
		}
	}
	if *format == "text" {
		return nil
	}
	if len(exported) == 1 {
		return c.encode(*format, exported[0])
	}
	return c.encode(*format, exported)
}
