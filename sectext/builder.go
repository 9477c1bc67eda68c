package sectext

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// FieldOption adjusts a descriptor registration.
type FieldOption func(*Descriptor)

// Aliases adds alternative keys that resolve to the descriptor.
func Aliases(keys ...string) FieldOption {
	return func(d *Descriptor) { d.Aliases = append(d.Aliases, keys...) }
}

// OpensContext marks the descriptor as the context's opening line.
func OpensContext() FieldOption {
	return func(d *Descriptor) { d.Opens = true }
}

// Builder assembles a Schema. Duplicate registrations are reported (as
// the method's error and a warning log) and ignored, keeping the first.
// Structural mistakes such as unknown context ids are collected and fail
// Build. A Builder is single-use: once Build succeeds, further calls are
// rejected with ErrSchemaBuilt and leave the built schema untouched.
type Builder struct {
	s          *Schema
	built      bool
	logger     *slog.Logger
	duplicates []error
	problems   []error
}

// NewBuilder starts a schema. newRecord creates the top-level record for
// each parse.
func NewBuilder(name string, newRecord func() Record) *Builder {
	s := &Schema{
		name:       name,
		contexts:   []*contextDef{{id: ContextNone}},
		byName:     make(map[string]ContextID),
		typeByName: make(map[string]ValueType),
		keys:       make(map[descKey]*Descriptor),
		newRecord:  newRecord,
	}
	for i, c := range builtinCodecs {
		s.types = append(s.types, c)
		s.typeByName[c.Name] = ValueType(i)
	}
	return &Builder{s: s, logger: discardLogger()}
}

// WithLogger routes registration warnings to l.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	if l != nil {
		b.logger = l
	}
	return b
}

func (b *Builder) duplicate(format string, args ...any) error {
	err := fmt.Errorf(format+": %w", append(args, ErrDuplicateRegistration)...)
	b.duplicates = append(b.duplicates, err)
	b.logger.Warn("schema registration ignored", "schema", b.s.name, "error", err)
	return err
}

func (b *Builder) problem(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	b.problems = append(b.problems, err)
	return err
}

// sealed rejects registrations after Build.
func (b *Builder) sealed(what string) error {
	if !b.built {
		return nil
	}
	err := fmt.Errorf("%s: %w", what, ErrSchemaBuilt)
	b.logger.Warn("schema registration after build", "schema", b.s.name, "error", err)
	return err
}

func (b *Builder) context(ctx ContextID, what string) (*contextDef, error) {
	if err := b.sealed(what); err != nil {
		return nil, err
	}
	c := b.s.context(ctx)
	if c == nil {
		return nil, b.problem("%s: unknown context %d", what, ctx)
	}
	return c, nil
}

// Duplicates returns every ignored duplicate registration.
func (b *Builder) Duplicates() []error { return b.duplicates }

// Context registers a context and returns its id. Registering a name
// twice returns the existing id.
func (b *Builder) Context(name string) ContextID {
	name = strings.TrimSpace(name)
	if b.sealed("context "+name) != nil {
		return ContextNone
	}
	if id, ok := b.s.byName[name]; ok {
		b.duplicate("context %q", name)
		return id
	}
	if name == "" {
		b.problem("context name must not be empty")
		return ContextNone
	}
	id := ContextID(len(b.s.contexts))
	b.s.contexts = append(b.s.contexts, &contextDef{id: id, name: name})
	b.s.byName[name] = id
	return id
}

// ValueType registers a custom value type and returns its id.
func (b *Builder) ValueType(c Codec) ValueType {
	name := strings.ToLower(strings.TrimSpace(c.Name))
	if vt, ok := b.s.typeByName[name]; ok {
		if b.sealed("value type "+c.Name) != nil {
			return vt
		}
		b.duplicate("value type %q", c.Name)
		return vt
	}
	if b.sealed("value type "+c.Name) != nil {
		return Text
	}
	if c.Parse == nil {
		b.problem("value type %q: Parse is required", c.Name)
	}
	if c.Validate != nil && c.Default != nil && !c.Validate(c.Default) {
		b.problem("value type %q: default %v fails validation", c.Name, c.Default)
	}
	vt := ValueType(len(b.s.types))
	b.s.types = append(b.s.types, c)
	b.s.typeByName[name] = vt
	return vt
}

// Field registers a descriptor. setter may be nil for keys that are
// recognised but never stored.
func (b *Builder) Field(ctx ContextID, key string, vt ValueType, setter *Setter, opts ...FieldOption) error {
	c, err := b.context(ctx, "field "+key)
	if err != nil {
		return err
	}
	if _, ok := b.s.codec(vt); !ok {
		return b.problem("field %s.%s: unknown value type %d", c.name, key, vt)
	}
	d := &Descriptor{Context: ctx, Type: vt, Key: strings.TrimSpace(key), Setter: setter, schema: b.s}
	for _, opt := range opts {
		opt(d)
	}
	if d.Key == "" {
		return b.problem("field in %s: empty key", c.name)
	}

	k := descKey{ctx: ctx, key: normalizeKey(d.Key)}
	if _, taken := b.s.keys[k]; taken {
		return b.duplicate("field %s.%s", c.name, d.Key)
	}
	if d.Opens && c.opener != nil {
		return b.duplicate("opener for %s (%s, already %s)", c.name, d.Key, c.opener.Key)
	}

	b.s.keys[k] = d
	var errs []error
	aliases := d.Aliases[:0]
	for _, a := range d.Aliases {
		ak := descKey{ctx: ctx, key: normalizeKey(a)}
		if _, taken := b.s.keys[ak]; taken {
			errs = append(errs, b.duplicate("alias %s.%s", c.name, a))
			continue
		}
		b.s.keys[ak] = d
		aliases = append(aliases, a)
	}
	d.Aliases = aliases
	b.s.descs = append(b.s.descs, d)
	if d.Opens {
		c.opener = d
		b.s.openers = append(b.s.openers, d)
	}
	return errors.Join(errs...)
}

// Singular gives ctx one inner record per occurrence.
func (b *Builder) Singular(ctx ContextID, newInner func() InnerRecord) error {
	return b.rule(ctx, Rule{Kind: RuleSingular, New: newInner})
}

// Multiple gives ctx one inner record per occurrence, indexed by the
// optional indexer token. parseIndex may be nil.
func (b *Builder) Multiple(ctx ContextID, newInner func() InnerRecord, parseIndex IndexParser) error {
	if parseIndex == nil {
		parseIndex = DefaultIndexParser
	}
	return b.rule(ctx, Rule{Kind: RuleMultiple, New: newInner, ParseIndex: parseIndex})
}

func (b *Builder) rule(ctx ContextID, r Rule) error {
	c, err := b.context(ctx, "rule")
	if err != nil {
		return err
	}
	if r.New == nil {
		return b.problem("rule for %s: creator is required", c.name)
	}
	if c.rule.Kind != RuleNone {
		return b.duplicate("rule for %s", c.name)
	}
	c.rule = r
	return nil
}

// Emitter registers the term emitter of ctx.
func (b *Builder) Emitter(ctx ContextID, e Emitter) error {
	c, err := b.context(ctx, "emitter")
	if err != nil {
		return err
	}
	if c.emitter != nil {
		return b.duplicate("emitter for %s", c.name)
	}
	c.emitter = e
	return nil
}

// Embed delegates lines equal to trigger (case-insensitive) to child; the
// returned inner record is filed under ctx.
func (b *Builder) Embed(trigger string, ctx ContextID, child ChildParser) error {
	if _, err := b.context(ctx, "embed "+trigger); err != nil {
		return err
	}
	trigger = strings.TrimSpace(trigger)
	for _, e := range b.s.embeds {
		if strings.EqualFold(e.Trigger, trigger) {
			return b.duplicate("embed trigger %q", trigger)
		}
	}
	b.s.embeds = append(b.s.embeds, &Embedding{Trigger: trigger, Context: ctx, Child: child})
	return nil
}

// Packing enables packed files. Unset fields take their defaults.
func (b *Builder) Packing(cfg PackConfig) {
	if b.sealed("packing configuration") != nil {
		return
	}
	if b.s.pack != nil {
		b.duplicate("packing configuration")
		return
	}
	cfg = cfg.withDefaults()
	b.s.pack = &cfg
}

// Validity sets the predicate that decides Record.Valid.
func (b *Builder) Validity(fn func(Record) bool) {
	if b.sealed("validity predicate") != nil {
		return
	}
	b.s.valid = fn
}

// Build finishes the schema. It fails on structural problems; ignored
// duplicates do not fail it.
func (b *Builder) Build() (*Schema, error) {
	if b.built {
		return nil, fmt.Errorf("schema %q: %w", b.s.name, ErrSchemaBuilt)
	}
	if b.s.newRecord == nil {
		b.problem("record creator is required")
	}
	if len(b.s.contexts) < 2 {
		b.problem("at least one context is required")
	}
	if err := errors.Join(b.problems...); err != nil {
		return nil, fmt.Errorf("schema %q: %w", b.s.name, err)
	}
	b.built = true
	return b.s, nil
}
