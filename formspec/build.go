package formspec

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/networked-ai/formguard"
	"github.com/networked-ai/formguard/availability"
	"github.com/networked-ai/formguard/rules"
)

// CheckResolver returns the availability check for a kind ("username", ...).
type CheckResolver func(kind string) (availability.CheckFunc, error)

// BuildOptions configures (*Form).Build.
type BuildOptions struct {
	// Resolve is required when any field declares availability.
	Resolve CheckResolver
	// Record receives the fields; a new record is created when nil.
	Record *formguard.Record
	// Availability options are applied to every availability rule.
	Availability []availability.Option
}

// Built is the outcome of (*Form).Build.
type Built struct {
	Record *formguard.Record
	// Trigger gates the rules declared with checkOnSubmit.
	Trigger *availability.Trigger
	Names   []string
}

// Build registers every definition into a record.
func (f *Form) Build(opts BuildOptions) (*Built, error) {
	rec := opts.Record
	if rec == nil {
		rec = formguard.NewRecord()
	}
	b := &Built{Record: rec, Trigger: &availability.Trigger{}, Names: f.Names()}
	if err := b.register(rec, f.Fields, opts); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Built) register(rec *formguard.Record, defs []FieldDef, opts BuildOptions) error {
	for _, d := range defs {
		if d.IsGroup() {
			g := rec.Group(d.Name)
			if err := b.register(g, d.Fields, opts); err != nil {
				return err
			}
			if d.Disabled {
				g.Disable()
			}
			continue
		}
		spec := formguard.FieldSpec{Name: d.Name, Initial: d.Value, Disabled: d.Disabled}
		for _, r := range d.Rules {
			rule, err := compileRule(r)
			if err != nil {
				return fmt.Errorf("field %q: %w", d.Name, err)
			}
			spec.Rules = append(spec.Rules, rule)
		}
		if a := d.Availability; a != nil {
			rule, err := b.availabilityRule(a, opts)
			if err != nil {
				return fmt.Errorf("field %q: %w", d.Name, err)
			}
			spec.Async = append(spec.Async, rule)
		}
		rec.RegisterSpec(spec)
	}
	return nil
}

func (b *Built) availabilityRule(a *AvailabilityDef, opts BuildOptions) (formguard.AsyncRule, error) {
	if opts.Resolve == nil {
		return nil, fmt.Errorf("formspec: no resolver for availability kind %q", a.Kind)
	}
	check, err := opts.Resolve(a.Kind)
	if err != nil {
		return nil, fmt.Errorf("formspec: resolve %q: %w", a.Kind, err)
	}
	ropts := append([]availability.Option(nil), opts.Availability...)
	if a.CountryCodeField != "" {
		ropts = append(ropts,
			availability.WithExtractor(availability.WithCountryCode(a.CountryCodeField)),
			availability.WithNormalizer(availability.AsIs))
	}
	if a.CheckOnSubmit {
		ropts = append(ropts, availability.WithGate(b.Trigger.ShouldRun))
	}
	return availability.Rule(check, a.CheckExistence, ropts...), nil
}

func compileRule(r RuleDef) (formguard.SyncRule, error) {
	switch r.Name {
	case "required":
		return rules.Required(), nil
	case "email":
		return rules.Email(), nil
	case "minLength", "minlength":
		n, err := intArg(r)
		if err != nil {
			return nil, err
		}
		return rules.MinLength(n), nil
	case "maxLength", "maxlength":
		n, err := intArg(r)
		if err != nil {
			return nil, err
		}
		return rules.MaxLength(n), nil
	case "pattern":
		s, ok := r.Arg.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%w: pattern needs a non-empty string", ErrInvalidForm)
		}
		return compilePattern(s)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, r.Name)
	}
}

func compilePattern(s string) (formguard.SyncRule, error) {
	if _, err := regexp.Compile("^(?:" + s + ")$"); err != nil {
		return nil, fmt.Errorf("%w: bad pattern %q: %v", ErrInvalidForm, s, err)
	}
	return rules.Pattern(s), nil
}

func intArg(r RuleDef) (int, error) {
	switch v := r.Arg.(type) {
	case int:
		if v >= 0 {
			return v, nil
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %s needs a non-negative integer, got %v", ErrInvalidForm, r.Name, r.Arg)
}
