package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/Neumenon/sectext/internal/config"
)

const testSchema = "../../schemafile/testdata/library.yaml"

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{config.EnvConfig, config.EnvSchema, config.EnvLogLevel, config.EnvLogFormat, config.EnvPackWidth, config.EnvCompression} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}

func writeBook(t *testing.T, dir, name, title string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	text := "BOOK\n\ttitle: " + title + "\n\tpages: 10\n"
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_Usage(t *testing.T) {
	isolateEnv(t)
	tests := []struct {
		args []string
		code int
	}{
		{nil, 2},
		{[]string{"bogus"}, 2},
		{[]string{"check"}, 2},
		{[]string{"check", "--help"}, 0},
		{[]string{"help"}, 0},
	}
	for _, tt := range tests {
		_, _, err := runCLI(t, tt.args...)
		if got := exitCode(err); got != tt.code {
			t.Errorf("run(%v) exit = %d, want %d (err %v)", tt.args, got, tt.code, err)
		}
	}
}

func TestRun_Version(t *testing.T) {
	out, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "sectext "+version+"\n" {
		t.Errorf("version output = %q", out)
	}
}

func TestRun_NoSchema(t *testing.T) {
	isolateEnv(t)
	_, _, err := runCLI(t, "check", "x.txt")
	if err == nil || !strings.Contains(err.Error(), "no schema") {
		t.Fatalf("err = %v, want no schema error", err)
	}
}

func TestCheck(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	clean := writeBook(t, dir, "clean.txt", "Go")

	if _, _, err := runCLI(t, "check", "--schema", testSchema, clean); err != nil {
		t.Fatalf("check clean file: %v", err)
	}

	out, _, err := runCLI(t, "check", "--schema", testSchema, "../../schemafile/testdata/book.txt")
	if exitCode(err) != 1 {
		t.Fatalf("check exit = %d, want 1 (err %v)", exitCode(err), err)
	}
	if !strings.Contains(out, "DescriptorWithoutSetter") {
		t.Errorf("check output missing diagnostic:\n%s", out)
	}

	out, _, err = runCLI(t, "check", "-q", "--schema", testSchema, "../../schemafile/testdata/book.txt")
	if exitCode(err) != 1 || out != "" {
		t.Errorf("quiet check: exit %d, output %q", exitCode(err), out)
	}
}

func TestFmt(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "messy.txt")
	if err := os.WriteFile(path, []byte("BOOK\n  title:    Go\n\n\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, "fmt", "--check", "--schema", testSchema, path)
	if exitCode(err) != 1 || strings.TrimSpace(out) != path {
		t.Fatalf("fmt --check: exit %d, output %q", exitCode(err), out)
	}
	if _, _, err := runCLI(t, "fmt", "--schema", testSchema, path); err != nil {
		t.Fatalf("fmt: %v", err)
	}
	if _, _, err := runCLI(t, "fmt", "--check", "--schema", testSchema, path); err != nil {
		t.Errorf("fmt --check after fmt: %v", err)
	}
}

func TestDump(t *testing.T) {
	isolateEnv(t)
	path := writeBook(t, t.TempDir(), "book.txt", "Go")

	out, _, err := runCLI(t, "dump", "--schema", testSchema, path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("json output: %v\n%s", err, out)
	}
	book, _ := doc["BOOK"].(map[string]any)
	if book["title"] != "Go" || doc["valid"] != true {
		t.Errorf("json dump = %v", doc)
	}

	out, _, err = runCLI(t, "dump", "-f", "yaml", "--schema", testSchema, path)
	if err != nil {
		t.Fatal(err)
	}
	doc = nil
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("yaml output: %v\n%s", err, out)
	}
	if book, _ := doc["BOOK"].(map[string]any); book["pages"] != 10 {
		t.Errorf("yaml dump = %v", doc)
	}

	out, _, err = runCLI(t, "dump", "-f", "cbor", "--schema", testSchema, path)
	if err != nil {
		t.Fatal(err)
	}
	doc = nil
	if err := cbor.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("cbor output: %v", err)
	}
	if doc["valid"] != true {
		t.Errorf("cbor dump = %v", doc)
	}

	if _, _, err := runCLI(t, "dump", "-f", "xml", "--schema", testSchema, path); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestPackGetUnpack(t *testing.T) {
	isolateEnv(t)
	src := t.TempDir()
	storeDir := filepath.Join(t.TempDir(), "store")
	a := writeBook(t, src, "a.txt", "Alpha")
	b := writeBook(t, src, "b.txt", "Beta")

	out, _, err := runCLI(t, "pack", "--schema", testSchema, "--out", storeDir, "--width", "10", a, b)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if !strings.Contains(out, "2 records, written") {
		t.Errorf("pack output = %q", out)
	}

	out, _, err = runCLI(t, "get", "--schema", testSchema, "--dir", storeDir, "--width", "10", "2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out, "title: Beta") {
		t.Errorf("get output = %q", out)
	}

	_, _, err = runCLI(t, "get", "--schema", testSchema, "--dir", storeDir, "--width", "10", "7")
	if exitCode(err) != 1 {
		t.Errorf("get missing record: exit %d (err %v)", exitCode(err), err)
	}

	windows, err := filepath.Glob(filepath.Join(storeDir, "*"))
	if err != nil || len(windows) != 1 {
		t.Fatalf("store files = %v (err %v)", windows, err)
	}
	outDir := t.TempDir()
	if _, _, err := runCLI(t, "unpack", "--schema", testSchema, "--out", outDir, windows[0]); err != nil {
		t.Fatalf("unpack: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "0001.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "title: Alpha") {
		t.Errorf("unpacked record = %q", data)
	}
	if _, err := os.Stat(filepath.Join(outDir, "0002.txt")); err != nil {
		t.Error(err)
	}
}
