// bench - sectext benchmark runner
//
// Generates synthetic library records and compares the sectioned text form
// against the exported JSON (minified) and CBOR forms:
//   - Bytes on disk, raw and compressed (zstd, lz4)
//   - Approximate token counts (using byte-based heuristics)
//   - Parse and render time per record
//
// Output: CSV and markdown summary
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/pflag"

	"github.com/Neumenon/sectext/schemafile"
	"github.com/Neumenon/sectext/sectext"
	"github.com/Neumenon/sectext/stream"
)

type CaseResult struct {
	Name       string
	Records    int
	TextBytes  int
	JSONBytes  int
	CBORBytes  int
	ZstdBytes  int
	LZ4Bytes   int
	TextTokens int
	JSONTokens int
	ParseNs    int64 // per record
	RenderNs   int64 // per record
}

// benchCase describes one synthetic input: records books, each with loans
// loan blocks and chapters chapter blocks. packed cases are parsed as a
// single packed window.
type benchCase struct {
	name     string
	records  int
	loans    int
	chapters int
	packed   bool
}

var cases = []benchCase{
	{"book-minimal", 1, 0, 0, false},
	{"book-typical", 1, 3, 12, false},
	{"book-heavy", 1, 40, 80, false},
	{"window-10", 10, 3, 12, true},
	{"window-100", 100, 3, 12, true},
	{"window-100-heavy", 100, 20, 40, true},
}

func main() {
	fs := pflag.NewFlagSet("bench", pflag.ExitOnError)
	schemaPath := fs.String("schema", "", "schema description (default: library test schema)")
	rounds := fs.Int("rounds", 20, "timing rounds per case")
	outDir := fs.String("out", ".", "directory for CSV and markdown results")
	fs.Parse(os.Args[1:])

	if *schemaPath == "" {
		*schemaPath = findSchema()
		if *schemaPath == "" {
			fmt.Fprintln(os.Stderr, "Cannot find schemafile/testdata/library.yaml; pass --schema")
			os.Exit(1)
		}
	}
	schema, err := schemafile.Load(*schemaPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "sectext Benchmark Runner\n")
	fmt.Fprintf(os.Stderr, "========================\n")
	fmt.Fprintf(os.Stderr, "Schema: %s (%d cases, %d rounds)\n\n", schema.Name(), len(cases), *rounds)

	var results []CaseResult
	for _, c := range cases {
		r, err := runCase(schema, c, *rounds)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skip %s: %v\n", c.name, err)
			continue
		}
		results = append(results, r)
	}

	csvPath := filepath.Join(*outDir, "bench_results.csv")
	if csvFile, err := os.Create(csvPath); err == nil {
		writeCSV(csvFile, results)
		csvFile.Close()
		fmt.Fprintf(os.Stderr, "CSV written to: %s\n", csvPath)
	}

	mdPath := filepath.Join(*outDir, "BENCH.md")
	if mdFile, err := os.Create(mdPath); err == nil {
		writeMarkdown(mdFile, results, schema.Name(), *rounds)
		mdFile.Close()
		fmt.Fprintf(os.Stderr, "Markdown written to: %s\n", mdPath)
	}

	var text, js, zst int
	for _, r := range results {
		text += r.TextBytes
		js += r.JSONBytes
		zst += r.ZstdBytes
	}
	fmt.Printf("\n=== SUMMARY ===\n")
	fmt.Printf("Cases:        %d\n", len(results))
	fmt.Printf("Text total:   %d bytes (%d zstd)\n", text, zst)
	fmt.Printf("JSON total:   %d bytes\n", js)
	if js > 0 {
		fmt.Printf("Text vs JSON: %.1f%%\n", float64(text-js)/float64(js)*100)
	}
}

func runCase(schema *schemafile.Schema, c benchCase, rounds int) (CaseResult, error) {
	reader := sectext.NewReader(schema.Schema)
	writer := sectext.NewWriter(schema.Schema)

	var input []byte
	if c.packed {
		var b strings.Builder
		pack := schema.Packing()
		for i := 1; i <= c.records; i++ {
			if i > 1 {
				b.WriteString("\n")
			}
			b.WriteString(pack.Marker(i) + "\n")
			b.WriteString(genBook(i, c.loans, c.chapters))
		}
		input = []byte(b.String())
	} else {
		input = []byte(genBook(1, c.loans, c.chapters))
	}

	parse := func() ([]sectext.Record, error) {
		if c.packed {
			results, err := reader.ParsePackedBytes(input)
			if err != nil {
				return nil, err
			}
			return sectext.Records(results), nil
		}
		res, err := reader.ParseBytes(input)
		if err != nil {
			return nil, err
		}
		return []sectext.Record{res.Record}, nil
	}
	render := func(records []sectext.Record) ([]byte, error) {
		if c.packed {
			return writer.RenderPacked(records)
		}
		return writer.Render(records[0])
	}

	records, err := parse()
	if err != nil {
		return CaseResult{}, err
	}
	if len(records) != c.records {
		return CaseResult{}, fmt.Errorf("parsed %d records, want %d", len(records), c.records)
	}
	text, err := render(records)
	if err != nil {
		return CaseResult{}, err
	}

	exported := make([]any, len(records))
	for i, r := range records {
		exported[i] = schema.Export(r)
	}
	jsonData, err := json.Marshal(exported)
	if err != nil {
		return CaseResult{}, err
	}
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return CaseResult{}, err
	}
	cborData, err := encMode.Marshal(exported)
	if err != nil {
		return CaseResult{}, err
	}
	zstData, err := stream.Encode(text, stream.CompressionZstd)
	if err != nil {
		return CaseResult{}, err
	}
	lz4Data, err := stream.Encode(text, stream.CompressionLZ4)
	if err != nil {
		return CaseResult{}, err
	}

	start := time.Now()
	for i := 0; i < rounds; i++ {
		if _, err := parse(); err != nil {
			return CaseResult{}, err
		}
	}
	parseNs := time.Since(start).Nanoseconds() / int64(rounds*c.records)

	start = time.Now()
	for i := 0; i < rounds; i++ {
		if _, err := render(records); err != nil {
			return CaseResult{}, err
		}
	}
	renderNs := time.Since(start).Nanoseconds() / int64(rounds*c.records)

	return CaseResult{
		Name:       c.name,
		Records:    c.records,
		TextBytes:  len(text),
		JSONBytes:  len(jsonData),
		CBORBytes:  len(cborData),
		ZstdBytes:  len(zstData),
		LZ4Bytes:   len(lz4Data),
		TextTokens: estimateTokens(string(text)),
		JSONTokens: estimateTokens(string(jsonData)),
		ParseNs:    parseNs,
		RenderNs:   renderNs,
	}, nil
}

var (
	borrowers  = []string{"ana", "ben", "chidi", "dana", "emre", "farah"}
	conditions = []string{"New", "Good", "Worn"}
)

// genBook returns the text of one synthetic book.
func genBook(n, loans, chapters int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "BOOK\n\ttitle: Volume %d of the Collected Works\n", n)
	fmt.Fprintf(&b, "\tpages: %d\n", 120+n*7%400)
	fmt.Fprintf(&b, "\ttags: fiction, series %d, hardcover\n", n%9)
	fmt.Fprintf(&b, "\tcondition: %s\n", conditions[n%len(conditions)])
	for i := 1; i <= loans; i++ {
		fmt.Fprintf(&b, "\nLOAN %d\n\tborrower: %s\n\tdays: %dh\n\treturned: %t\n",
			i, borrowers[(n+i)%len(borrowers)], 24*(i%21+1), i%3 != 0)
	}
	for i := 1; i <= chapters; i++ {
		fmt.Fprintf(&b, "\nchapter: Part %d, Chapter %d\n\tpages: %d\n", n, i, 8+i%23)
	}
	return b.String()
}

// estimateTokens provides a rough token count approximation
// Based on cl100k_base behavior: ~4 chars per token for ASCII,
// punctuation and special chars often get their own tokens
func estimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}

	tokens := 0
	i := 0
	for i < len(s) {
		c := s[i]

		if isPunctuation(c) {
			tokens++
			i++
			continue
		}

		// whitespace often merges with adjacent tokens
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}

		// Numbers: roughly 1 token per 3-4 digits
		if c >= '0' && c <= '9' {
			numLen := 0
			for i < len(s) && ((s[i] >= '0' && s[i] <= '9') || s[i] == '.' || s[i] == '-' || s[i] == '+' || s[i] == 'e' || s[i] == 'E') {
				numLen++
				i++
			}
			tokens += (numLen + 3) / 4
			continue
		}

		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' {
			wordLen := 0
			for i < len(s) && (isAlphaNum(s[i]) || s[i] == '_') {
				wordLen++
				i++
			}
			tokens += (wordLen + 3) / 4
			continue
		}

		tokens++
		i++
	}

	return max(1, tokens)
}

func isPunctuation(c byte) bool {
	return c == '{' || c == '}' || c == '[' || c == ']' ||
		c == '(' || c == ')' || c == ':' || c == ',' ||
		c == '"' || c == '\'' || c == '=' || c == '@' ||
		c == '.' || c == ';' || c == '!' || c == '?'
}

func isAlphaNum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func findSchema() string {
	paths := []string{
		"schemafile/testdata/library.yaml",
		"../schemafile/testdata/library.yaml",
		"../../schemafile/testdata/library.yaml",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func writeCSV(w io.Writer, results []CaseResult) {
	fmt.Fprintln(w, "name,records,text_bytes,json_bytes,cbor_bytes,zstd_bytes,lz4_bytes,text_tokens,json_tokens,parse_ns,render_ns")
	for _, r := range results {
		fmt.Fprintf(w, "%s,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name, r.Records, r.TextBytes, r.JSONBytes, r.CBORBytes, r.ZstdBytes, r.LZ4Bytes,
			r.TextTokens, r.JSONTokens, r.ParseNs, r.RenderNs)
	}
}

func writeMarkdown(w io.Writer, results []CaseResult, schema string, rounds int) {
	fmt.Fprintf(w, "# sectext Benchmark Results\n\n")
	fmt.Fprintf(w, "**Date:** %s  \n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(w, "**Schema:** %s (%d cases, %d timing rounds)  \n\n", schema, len(results), rounds)

	fmt.Fprintf(w, "## Size\n\n")
	fmt.Fprintf(w, "| Case | Records | Text | JSON | CBOR | zstd | lz4 | Text vs JSON |\n")
	fmt.Fprintf(w, "|------|---------|------|------|------|------|-----|--------------|\n")
	for _, r := range results {
		fmt.Fprintf(w, "| %s | %d | %d | %d | %d | %d | %d | %s |\n",
			truncateName(r.Name, 25), r.Records, r.TextBytes, r.JSONBytes, r.CBORBytes,
			r.ZstdBytes, r.LZ4Bytes, pct(r.TextBytes, r.JSONBytes))
	}

	fmt.Fprintf(w, "\n## Tokens (est.)\n\n")
	fmt.Fprintf(w, "| Case | Text | JSON | Text vs JSON |\n")
	fmt.Fprintf(w, "|------|------|------|--------------|\n")
	for _, r := range results {
		fmt.Fprintf(w, "| %s | ~%d | ~%d | %s |\n", truncateName(r.Name, 25), r.TextTokens, r.JSONTokens, pct(r.TextTokens, r.JSONTokens))
	}

	fmt.Fprintf(w, "\n## Speed\n\n")
	sorted := make([]CaseResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ParseNs > sorted[j].ParseNs })
	fmt.Fprintf(w, "| Case | Parse ns/record | Render ns/record |\n")
	fmt.Fprintf(w, "|------|-----------------|------------------|\n")
	for _, r := range sorted {
		fmt.Fprintf(w, "| %s | %d | %d |\n", truncateName(r.Name, 25), r.ParseNs, r.RenderNs)
	}

	fmt.Fprintf(w, "\n## Methodology\n\n")
	fmt.Fprintf(w, "- **Text:** records rendered by `sectext.Writer` (packed cases as one window)\n")
	fmt.Fprintf(w, "- **JSON:** `schemafile.Export` output, minified with `json.Marshal`\n")
	fmt.Fprintf(w, "- **CBOR:** the same export in core deterministic encoding\n")
	fmt.Fprintf(w, "- **Tokens:** Estimated using cl100k_base-like heuristics (~4 chars/token for words, punctuation as separate tokens)\n")
}

func pct(a, b int) string {
	if b == 0 {
		return "n/a"
	}
	d := float64(a-b) / float64(b) * 100
	sign := ""
	if d > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.1f%%", sign, d)
}

func truncateName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
