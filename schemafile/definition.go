// Package schemafile loads declarative schema descriptions into sectext
// schemas. A description lists contexts, their fields and value types,
// optional enum types, required fields and the packing layout. It is
// authored as YAML (.yaml, .yml) or JSONC (.jsonc, .json; JSON with
// comments and trailing commas).
//
// Records of a loaded schema are generic: a Doc holds the values of
// contexts without an inner record rule, and one Block per context
// occurrence holds the values of ruled contexts.
//
// The typical flow:
//
//  1. Load (or Parse + Validate + Build): description -> *Schema
//  2. sectext.NewReader(s.Schema) / sectext.NewWriter(s.Schema)
//  3. Export: record -> plain map for JSON, YAML or CBOR output
package schemafile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Definition is a declarative schema description.
type Definition struct {
	// Name identifies the schema. Defaults to the file name without
	// extension when loaded from disk.
	Name string `yaml:"name" json:"name"`

	// Contexts in write order.
	Contexts []ContextDef `yaml:"contexts" json:"contexts"`

	// Types declares enum value types usable by fields.
	Types []TypeDef `yaml:"types,omitempty" json:"types,omitempty"`

	// Required lists "CONTEXT.key" fields that a record must carry to be
	// valid.
	Required []string `yaml:"required,omitempty" json:"required,omitempty"`

	// Packing enables packed files.
	Packing *PackingDef `yaml:"packing,omitempty" json:"packing,omitempty"`
}

// ContextDef describes one context.
type ContextDef struct {
	Name string `yaml:"name" json:"name"`

	// Rule is "", "none", "singular" or "multiple".
	Rule string `yaml:"rule,omitempty" json:"rule,omitempty"`

	Fields []FieldDef `yaml:"fields" json:"fields"`
}

// FieldDef describes one descriptor.
type FieldDef struct {
	Key     string   `yaml:"key" json:"key"`
	Type    string   `yaml:"type,omitempty" json:"type,omitempty"` // default "text"
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Opens   bool     `yaml:"opens,omitempty" json:"opens,omitempty"`

	// Ignore registers the key without a setter: it is recognised but
	// its values are reported and dropped.
	Ignore bool `yaml:"ignore,omitempty" json:"ignore,omitempty"`
}

// TypeDef declares an enum value type.
type TypeDef struct {
	Name   string   `yaml:"name" json:"name"`
	Values []string `yaml:"values" json:"values"`
}

// PackingDef mirrors sectext.PackConfig. Zero values take the defaults.
type PackingDef struct {
	Digits       int    `yaml:"digits,omitempty" json:"digits,omitempty"`
	Extension    string `yaml:"extension,omitempty" json:"extension,omitempty"`
	MarkerPrefix string `yaml:"marker_prefix,omitempty" json:"marker_prefix,omitempty"`
	MarkerSuffix string `yaml:"marker_suffix,omitempty" json:"marker_suffix,omitempty"`
	Spacing      *int   `yaml:"spacing,omitempty" json:"spacing,omitempty"` // default 1
}

// Format is the syntax of a description.
type Format int

const (
	FormatYAML Format = iota
	FormatJSONC
)

// FormatFor picks the syntax from a file extension. Unknown extensions
// are read as YAML, which also accepts plain JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonc", ".json":
		return FormatJSONC
	default:
		return FormatYAML
	}
}

// Parse decodes a description. Unknown fields are rejected so typos in
// keys surface instead of silently doing nothing.
func Parse(data []byte, format Format) (*Definition, error) {
	var def Definition
	switch format {
	case FormatJSONC:
		dec := json.NewDecoder(strings.NewReader(string(jsonc.ToJSON(data))))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing schema: %w", err)
		}
	default:
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing schema: %w", err)
		}
	}
	return &def, nil
}

// ReadFile reads and parses a description from disk.
func ReadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	def, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = NameFromPath(path)
	}
	return def, nil
}

// NameFromPath strips the directory and extension: "conf/books.yaml"
// returns "books".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ============================================================
// Validation
// ============================================================

var builtinTypes = map[string]bool{
	"text": true, "integer": true, "number": true, "bool": true, "list": true, "duration": true,
}

// Validate checks a description for structural issues and returns them as
// human-readable strings. An empty list means the description can be
// built.
func Validate(def *Definition) []string {
	var issues []string

	if strings.TrimSpace(def.Name) == "" {
		issues = append(issues, "schema has no name")
	}
	if len(def.Contexts) == 0 {
		issues = append(issues, "schema has no contexts (at least one is required)")
	}

	types := make(map[string]bool, len(builtinTypes)+len(def.Types))
	for name := range builtinTypes {
		types[name] = true
	}
	for i, td := range def.Types {
		name := strings.ToLower(strings.TrimSpace(td.Name))
		switch {
		case name == "":
			issues = append(issues, fmt.Sprintf("types[%d]: missing name", i))
		case types[name]:
			issues = append(issues, fmt.Sprintf("types[%d] %q: name already used", i, td.Name))
		case len(td.Values) == 0:
			issues = append(issues, fmt.Sprintf("types[%d] %q: enum has no values", i, td.Name))
		}
		types[name] = true
	}

	contexts := make(map[string]int, len(def.Contexts))
	fields := make(map[string]bool)
	for i, cd := range def.Contexts {
		if cd.Name == "" {
			issues = append(issues, fmt.Sprintf("contexts[%d]: missing name", i))
			continue
		}
		if first, dup := contexts[cd.Name]; dup {
			issues = append(issues, fmt.Sprintf("contexts[%d] %q: duplicate context (first at contexts[%d])", i, cd.Name, first))
			continue
		}
		contexts[cd.Name] = i

		switch strings.ToLower(cd.Rule) {
		case "", "none", "singular", "multiple":
		default:
			issues = append(issues, fmt.Sprintf("contexts[%d] %q: rule must be none, singular or multiple, got %q", i, cd.Name, cd.Rule))
		}

		openers := 0
		for j, fd := range cd.Fields {
			where := fmt.Sprintf("contexts[%d].fields[%d]", i, j)
			if strings.TrimSpace(fd.Key) == "" {
				issues = append(issues, where+": missing key")
				continue
			}
			if fd.Type != "" && !types[strings.ToLower(fd.Type)] {
				issues = append(issues, fmt.Sprintf("%s %q: unknown type %q", where, fd.Key, fd.Type))
			}
			if fd.Opens {
				openers++
			}
			ref := cd.Name + "." + strings.ToLower(strings.TrimSpace(fd.Key))
			if fields[ref] {
				issues = append(issues, fmt.Sprintf("%s %q: duplicate key", where, fd.Key))
			}
			fields[ref] = true
		}
		if openers > 1 {
			issues = append(issues, fmt.Sprintf("contexts[%d] %q: %d opener fields (at most one)", i, cd.Name, openers))
		}
	}

	for _, req := range def.Required {
		ctx, key, ok := splitRef(req)
		if !ok {
			issues = append(issues, fmt.Sprintf("required %q: want CONTEXT.key", req))
			continue
		}
		if !fields[ctx+"."+strings.ToLower(strings.TrimSpace(key))] {
			issues = append(issues, fmt.Sprintf("required %q: no such field", req))
		}
	}

	if p := def.Packing; p != nil {
		if p.Digits < 0 {
			issues = append(issues, "packing.digits must not be negative")
		}
		if p.Spacing != nil && *p.Spacing < 0 {
			issues = append(issues, "packing.spacing must not be negative")
		}
		if p.Extension != "" && !strings.HasPrefix(p.Extension, ".") {
			issues = append(issues, fmt.Sprintf("packing.extension %q must start with a dot", p.Extension))
		}
	}

	return issues
}

// splitRef splits "CONTEXT.key" at the last dot, since context names may
// contain dots but keys do not.
func splitRef(ref string) (ctx, key string, ok bool) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}
