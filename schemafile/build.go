package schemafile

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Neumenon/sectext/sectext"
)

// Schema is a built description: the engine schema plus what the generic
// records need to find their values.
type Schema struct {
	*sectext.Schema

	Def      *Definition
	contexts []contextInfo // indexed by ContextID; [0] unused
	required []fieldRef
}

type contextInfo struct {
	id     sectext.ContextID
	name   string
	rule   sectext.RuleKind
	keys   []string // canonical keys in declaration order
	opener string   // canonical key of the opener field, if any
}

type fieldRef struct {
	ctx sectext.ContextID
	key string
}

// Load reads, validates and builds the description at path.
func Load(path string, logger *slog.Logger) (*Schema, error) {
	def, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Build(def, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Build validates def and turns it into a schema over Doc and Block
// records. logger receives registration warnings; nil discards them.
func Build(def *Definition, logger *slog.Logger) (*Schema, error) {
	if issues := Validate(def); len(issues) > 0 {
		return nil, fmt.Errorf("invalid schema %q:\n  %s", def.Name, strings.Join(issues, "\n  "))
	}

	s := &Schema{Def: def, contexts: make([]contextInfo, 1, len(def.Contexts)+1)}
	b := sectext.NewBuilder(def.Name, func() sectext.Record { return NewDoc() })
	if logger != nil {
		b.WithLogger(logger)
	}

	enums := make(map[string]sectext.ValueType, len(def.Types))
	for _, td := range def.Types {
		name := strings.ToLower(strings.TrimSpace(td.Name))
		enums[name] = b.ValueType(sectext.EnumCodec(name, td.Values...))
	}

	var errs []error
	for _, cd := range def.Contexts {
		id := b.Context(cd.Name)
		info := contextInfo{id: id, name: cd.Name, rule: ruleKind(cd.Rule)}

		switch info.rule {
		case sectext.RuleSingular:
			errs = append(errs, b.Singular(id, newBlock))
		case sectext.RuleMultiple:
			errs = append(errs, b.Multiple(id, newBlock, nil))
		}

		for _, fd := range cd.Fields {
			vt := typeOf(fd.Type, enums)
			key := strings.TrimSpace(fd.Key)
			var opts []sectext.FieldOption
			if len(fd.Aliases) > 0 {
				opts = append(opts, sectext.Aliases(fd.Aliases...))
			}
			if fd.Opens {
				opts = append(opts, sectext.OpensContext())
				info.opener = key
			}
			var setter *sectext.Setter
			if !fd.Ignore {
				setter = setterFor(info, key)
			}
			errs = append(errs, b.Field(id, key, vt, setter, opts...))
			info.keys = append(info.keys, key)
		}

		errs = append(errs, b.Emitter(id, s.emitter(info)))
		s.contexts = append(s.contexts, info)
	}

	if p := def.Packing; p != nil {
		cfg := sectext.PackConfig{
			Digits:       p.Digits,
			Extension:    p.Extension,
			MarkerPrefix: p.MarkerPrefix,
			MarkerSuffix: p.MarkerSuffix,
			Spacing:      1,
		}
		if p.Spacing != nil {
			cfg.Spacing = *p.Spacing
		}
		b.Packing(cfg)
	}

	for _, req := range def.Required {
		name, key, _ := splitRef(req)
		for _, info := range s.contexts[1:] {
			if info.name == name {
				s.required = append(s.required, fieldRef{ctx: info.id, key: key})
			}
		}
	}
	b.Validity(s.valid)

	built, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	s.Schema = built

	// Canonicalize required keys now that aliases resolve.
	for i, ref := range s.required {
		if d, ok := built.Lookup(ref.ctx, ref.key); ok {
			s.required[i].key = d.Key
		}
	}
	return s, nil
}

func ruleKind(rule string) sectext.RuleKind {
	switch strings.ToLower(rule) {
	case "singular":
		return sectext.RuleSingular
	case "multiple":
		return sectext.RuleMultiple
	default:
		return sectext.RuleNone
	}
}

func typeOf(name string, enums map[string]sectext.ValueType) sectext.ValueType {
	switch name = strings.ToLower(strings.TrimSpace(name)); name {
	case "", "text":
		return sectext.Text
	case "integer":
		return sectext.Integer
	case "number":
		return sectext.Number
	case "bool":
		return sectext.Bool
	case "list":
		return sectext.List
	case "duration":
		return sectext.Duration
	default:
		return enums[name]
	}
}

func newBlock() sectext.InnerRecord { return NewBlock() }

func setterFor(info contextInfo, key string) *sectext.Setter {
	if info.rule == sectext.RuleNone {
		name := info.name
		return sectext.Outer(func(d *Doc, v any) { d.Set(name, key, v) })
	}
	return sectext.Inner(func(bl *Block, v any) { bl.Set(key, v) })
}

// emitter writes a context's values in declaration order. An occurrence
// starts with its opener field when that has a value, otherwise with the
// context name and index token.
func (s *Schema) emitter(info contextInfo) sectext.Emitter {
	return sectext.EmitterFor(func(d *Doc, t *sectext.Terms) {
		if info.rule == sectext.RuleNone {
			emitValues(t, info, d.Context(info.name))
			return
		}
		for _, bl := range sectext.AttachedAs[*Block](d, info.id) {
			if _, ok := bl.Values[info.opener]; !ok || info.opener == "" {
				t.OpenInner(bl)
			}
			emitValues(t, info, bl.Values)
		}
	})
}

func emitValues(t *sectext.Terms, info contextInfo, values map[string]any) {
	if len(values) == 0 {
		return
	}
	if v, ok := values[info.opener]; ok && info.opener != "" {
		t.Field(info.opener, v)
	}
	for _, key := range info.keys {
		if key == info.opener {
			continue
		}
		if v, ok := values[key]; ok {
			t.Field(key, v)
		}
	}
}

// valid reports whether every required field has a value.
func (s *Schema) valid(r sectext.Record) bool {
	d, ok := r.(*Doc)
	if !ok {
		return false
	}
	for _, ref := range s.required {
		if !s.has(d, ref) {
			return false
		}
	}
	return true
}

func (s *Schema) has(d *Doc, ref fieldRef) bool {
	info := s.contexts[ref.ctx]
	if info.rule == sectext.RuleNone {
		_, ok := d.Get(info.name, ref.key)
		return ok
	}
	for _, bl := range sectext.AttachedAs[*Block](d, ref.ctx) {
		if _, ok := bl.Values[ref.key]; ok {
			return true
		}
	}
	return false
}
