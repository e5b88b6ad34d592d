// Package dataset holds the static schema metadata for the dump datasets:
// which table each dataset loads into and which <row> attributes it exports.
//
// The registry is built once at startup and is read-only afterwards, so it can
// be shared between goroutines without locking.
package dataset

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrUnknownDataset is matched (via errors.Is) by *UnknownDatasetError.
	ErrUnknownDataset = errors.New("unknown dataset")

	// ErrInvalidDescriptor is wrapped by every NewRegistry validation failure.
	ErrInvalidDescriptor = errors.New("invalid dataset descriptor")
)

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// UnknownDatasetError is returned by Resolve when no descriptor matches.
type UnknownDatasetError struct {
	Name string
}

func (e *UnknownDatasetError) Error() string {
	return fmt.Sprintf("unknown dataset %q", e.Name)
}

// Is reports whether target is ErrUnknownDataset.
func (e *UnknownDatasetError) Is(target error) bool { return target == ErrUnknownDataset }

// Descriptor is the immutable schema description of one dataset.
type Descriptor struct {
	name   string
	table  string
	fields []FieldSpec
}

// NewDescriptor returns a descriptor for the dataset name loading into table.
// The fields slice is copied.
func NewDescriptor(name, table string, fields ...FieldSpec) Descriptor {
	return Descriptor{
		name:   name,
		table:  table,
		fields: append([]FieldSpec(nil), fields...),
	}
}

// Name is the canonical dataset name (e.g. "PostHistory").
func (d Descriptor) Name() string { return d.name }

// Table is the target table name (e.g. "post_history").
func (d Descriptor) Table() string { return d.table }

// Fields returns a copy of the exported fields in declaration order.
func (d Descriptor) Fields() []FieldSpec { return append([]FieldSpec(nil), d.fields...) }

// Registry maps case-insensitive dataset names to descriptors.
type Registry struct {
	byName map[string]Descriptor
}

// NewRegistry validates ds and builds a registry from them.
func NewRegistry(ds ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(ds))}
	for _, d := range ds {
		if err := validate(d); err != nil {
			return nil, err
		}
		key := strings.ToLower(d.name)
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("%w: duplicate dataset name %q", ErrInvalidDescriptor, d.name)
		}
		r.byName[key] = d
	}
	return r, nil
}

func validate(d Descriptor) error {
	if strings.TrimSpace(d.name) == "" {
		return fmt.Errorf("%w: empty dataset name", ErrInvalidDescriptor)
	}
	if !identRe.MatchString(d.table) {
		return fmt.Errorf("%w: dataset %s: bad table name %q", ErrInvalidDescriptor, d.name, d.table)
	}
	if len(d.fields) == 0 {
		return fmt.Errorf("%w: dataset %s: no fields", ErrInvalidDescriptor, d.name)
	}
	seen := make(map[string]bool, len(d.fields))
	for _, f := range d.fields {
		if !identRe.MatchString(f.Column) {
			return fmt.Errorf("%w: dataset %s: bad column name %q", ErrInvalidDescriptor, d.name, f.Column)
		}
		if seen[f.Column] {
			return fmt.Errorf("%w: dataset %s: duplicate column %q", ErrInvalidDescriptor, d.name, f.Column)
		}
		seen[f.Column] = true
		if want := AttributeName(f.Column); f.Attribute != want {
			return fmt.Errorf("%w: dataset %s: column %q has attribute %q, derivation gives %q",
				ErrInvalidDescriptor, d.name, f.Column, f.Attribute, want)
		}
	}
	if err := CheckAlignment(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return nil
}

// Resolve returns the descriptor for name, ignoring case. Callers usually pass
// a file base name with the extension stripped ("Badges", "posthistory").
func (r *Registry) Resolve(name string) (Descriptor, error) {
	d, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return Descriptor{}, &UnknownDatasetError{Name: name}
	}
	return d, nil
}

// Names returns the canonical dataset names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d.name)
	}
	sort.Strings(out)
	return out
}

// Descriptors returns all descriptors ordered by canonical name.
func (r *Registry) Descriptors() []Descriptor {
	names := r.Names()
	out := make([]Descriptor, 0, len(names))
	for _, n := range names {
		out = append(out, r.byName[strings.ToLower(n)])
	}
	return out
}
