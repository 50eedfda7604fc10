// Package formspec loads form definitions from YAML and registers them into
// formguard records.
//
//	name: signup
//	fields:
//	  - name: username
//	    rules: [required, {minLength: 6}]
//	    availability: {kind: username}
//	  - name: countryCode
//	    value: "+1"
//	  - name: mobile
//	    availability: {kind: mobile, countryCodeField: countryCode, checkOnSubmit: true}
//	  - name: settings
//	    disabled: true
//	    fields:
//	      - name: theme
//	        value: dark
package formspec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownRule is returned for rule names that have no implementation.
	ErrUnknownRule = errors.New("formspec: unknown rule")
	// ErrInvalidForm is returned for structurally invalid definitions.
	ErrInvalidForm = errors.New("formspec: invalid form")
)

// Form is a named list of field definitions.
type Form struct {
	Name   string     `yaml:"name"`
	Fields []FieldDef `yaml:"fields"`
}

// FieldDef defines a field, or a sub-record when Group is set or Fields is non-empty.
type FieldDef struct {
	Name         string           `yaml:"name"`
	Value        any              `yaml:"value"`
	Disabled     bool             `yaml:"disabled"`
	Rules        []RuleDef        `yaml:"rules"`
	Availability *AvailabilityDef `yaml:"availability"`
	Group        bool             `yaml:"group"`
	Fields       []FieldDef       `yaml:"fields"`
}

// IsGroup reports whether the definition describes a sub-record.
func (d FieldDef) IsGroup() bool { return d.Group || len(d.Fields) > 0 }

// RuleDef is a rule reference: a bare name ("required") or a single-key map
// carrying the argument ({minLength: 6}).
type RuleDef struct {
	Name string
	Arg  any
}

func (r *RuleDef) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		r.Name = n.Value
		return nil
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return fmt.Errorf("%w: line %d: a rule map must have exactly one key", ErrInvalidForm, n.Line)
		}
		r.Name = n.Content[0].Value
		return n.Content[1].Decode(&r.Arg)
	default:
		return fmt.Errorf("%w: line %d: a rule must be a name or a single-key map", ErrInvalidForm, n.Line)
	}
}

// AvailabilityDef attaches a remote availability check to a field.
type AvailabilityDef struct {
	Kind           string `yaml:"kind"`
	CheckExistence bool   `yaml:"checkExistence"`
	// CheckOnSubmit runs the check only while the form's trigger is armed.
	CheckOnSubmit bool `yaml:"checkOnSubmit"`
	// CountryCodeField names an earlier sibling holding the country code.
	CountryCodeField string `yaml:"countryCodeField"`
}

// Load decodes a form definition and validates it. Unknown keys are rejected.
func Load(r io.Reader) (*Form, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f Form
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidForm)
		}
		return nil, fmt.Errorf("formspec: decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads and decodes a form definition file.
func LoadFile(path string) (*Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("formspec: read %s: %w", path, err)
	}
	return Load(bytes.NewReader(data))
}

// Names returns the top-level control names in definition order; these are
// what a submit action passes to the gate.
func (f *Form) Names() []string {
	out := make([]string, 0, len(f.Fields))
	for _, d := range f.Fields {
		out = append(out, d.Name)
	}
	return out
}

// Validate checks names, rule references and availability blocks.
func (f *Form) Validate() error {
	if len(f.Fields) == 0 {
		return fmt.Errorf("%w: form %q has no fields", ErrInvalidForm, f.Name)
	}
	return validateLevel("", f.Fields)
}

func validateLevel(prefix string, defs []FieldDef) error {
	seen := map[string]bool{}
	for _, d := range defs {
		path := prefix + d.Name
		if d.Name == "" {
			return fmt.Errorf("%w: field without a name under %q", ErrInvalidForm, prefix)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidForm, path)
		}
		if d.IsGroup() {
			if len(d.Rules) > 0 || d.Availability != nil {
				return fmt.Errorf("%w: group %q cannot carry rules", ErrInvalidForm, path)
			}
			if err := validateLevel(path+".", d.Fields); err != nil {
				return err
			}
			seen[d.Name] = true
			continue
		}
		for _, r := range d.Rules {
			if _, err := compileRule(r); err != nil {
				return fmt.Errorf("field %q: %w", path, err)
			}
		}
		if a := d.Availability; a != nil {
			if a.Kind == "" {
				return fmt.Errorf("%w: field %q: availability needs a kind", ErrInvalidForm, path)
			}
			if a.CountryCodeField != "" && !seen[a.CountryCodeField] {
				return fmt.Errorf("%w: field %q: country code field %q must be declared before it",
					ErrInvalidForm, path, a.CountryCodeField)
			}
		}
		seen[d.Name] = true
	}
	return nil
}
