package sectext

// solve resolves the buffered terms of ctx into field writes. Every term
// is attempted; a failing term is reported and skipped. The result is the
// first non-Valid outcome, or Valid.
func (p *parser) solve(ctx ContextID) Outcome {
	terms := p.buffers[ctx]
	delete(p.buffers, ctx)

	result := Valid
	for _, t := range terms {
		if o := p.solveTerm(t); o != Valid && result == Valid {
			result = o
		}
	}
	if result != Valid {
		p.log.Debug("context solved with errors",
			"context", p.schema.ContextName(ctx), "terms", len(terms), "outcome", result.String())
	}
	return result
}

func (p *parser) solveTerm(t Term) Outcome {
	d, ok := p.schema.Lookup(t.Context, t.Key)
	if !ok {
		p.report(KindMissingDescriptor, t.Line, t.Context, t.Key, "", nil)
		return DataError
	}
	if d.Setter == nil {
		p.report(KindDescriptorWithoutSetter, t.Line, t.Context, t.Key, "", nil)
		return DataError
	}

	var value any
	if IsUndefined(t.Content) {
		value = p.schema.Default(d.Type)
	} else {
		parsed, err := p.schema.ParseValue(d.Type, t.Content)
		if err != nil {
			p.report(KindValueParse, t.Line, t.Context, t.Key, "as "+p.schema.ValueTypeName(d.Type), err)
			return DataError
		}
		value = parsed
	}
	if !p.schema.CheckValue(d.Type, value) {
		p.report(KindTypeMismatch, t.Line, t.Context, t.Key, "value is not "+p.schema.ValueTypeName(d.Type), nil)
		return DataError
	}

	target, ok := p.target(d, t.Context)
	if !ok {
		p.report(KindDataTargetMissing, t.Line, t.Context, t.Key, "no open inner record", nil)
		return DataError
	}

	switch o := d.Setter.Apply(target, value); o {
	case Valid:
		return Valid
	case Invalid:
		p.report(KindInvalidValue, t.Line, t.Context, t.Key, "rejected by setter", nil)
		return Invalid
	default:
		p.report(KindTypeMismatch, t.Line, t.Context, t.Key, "setter does not fit the record", ErrNotApplicable)
		return DataError
	}
}

// target picks where a descriptor's value goes. Outer setters write the
// record. Inner setters write the open inner record of a singular
// context, or the most recent open one of a multiple context.
func (p *parser) target(d *Descriptor, ctx ContextID) (any, bool) {
	if d.Setter.Scope() == ScopeOuter {
		return p.record, true
	}
	list := p.open[ctx]
	switch p.schema.Rule(ctx).Kind {
	case RuleSingular:
		if n := len(list); n > 0 && !list[n-1].Inner().Closed() {
			return list[n-1], true
		}
	case RuleMultiple:
		for i := len(list) - 1; i >= 0; i-- {
			if !list[i].Inner().Closed() {
				return list[i], true
			}
		}
	}
	return nil, false
}
