// Package inspect surveys dump files: which attributes the rows carry, how
// long their values get, and how that compares with what a dataset loads.
//
// A survey tolerates a truncated input (the first N bytes of a large file):
// rows read before the cut are counted and the report is marked Truncated.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"unicode/utf8"

	"so2pg/internal/dataset"
	xmlparser "so2pg/internal/parser/xml"
)

// AttrStat aggregates one attribute across rows.
type AttrStat struct {
	Rows    int64  `yaml:"rows"`    // rows carrying the attribute
	MaxLen  int    `yaml:"max_len"` // longest scrubbed value, in characters
	Example string `yaml:"example,omitempty"`
}

// Report is the result of Survey.
type Report struct {
	Rows       int64               `yaml:"rows"`
	Truncated  bool                `yaml:"truncated,omitempty"`
	Attributes map[string]AttrStat `yaml:"attributes"`
}

// Names returns the attribute names in sorted order.
func (r Report) Names() []string {
	out := make([]string, 0, len(r.Attributes))
	for n := range r.Attributes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

const maxExample = 40

// Survey reads every record element of r and aggregates its attributes.
// Lengths are measured after scrubbing, as loaded.
func Survey(ctx context.Context, r io.Reader, opts xmlparser.Options) (Report, error) {
	rep := Report{Attributes: map[string]AttrStat{}}
	rr := xmlparser.NewRowReader(r, nil, opts)

	for rr.Next() {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Rows++
		for _, a := range rr.Attrs() {
			if a.Name.Space != "" {
				continue
			}
			v := xmlparser.Scrub(a.Value)
			st := rep.Attributes[a.Name.Local]
			st.Rows++
			if n := utf8.RuneCountInString(v); n > st.MaxLen {
				st.MaxLen = n
			}
			if st.Example == "" && v != "" {
				st.Example = truncate(v, maxExample)
			}
			rep.Attributes[a.Name.Local] = st
		}
	}

	if err := rr.Err(); err != nil {
		var mse *xmlparser.MalformedSourceError
		if errors.As(err, &mse) && mse.Truncated {
			rep.Truncated = true
			return rep, nil
		}
		return rep, fmt.Errorf("inspect: %w", err)
	}
	return rep, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// Overflow is an attribute whose longest value exceeds its varchar column.
type Overflow struct {
	Attribute string `yaml:"attribute"`
	Column    string `yaml:"column"`
	Limit     int    `yaml:"limit"`
	MaxLen    int    `yaml:"max_len"`
}

// Coverage compares a survey with a dataset descriptor.
type Coverage struct {
	Dataset string `yaml:"dataset"`
	// Unloaded attributes occur in the file but no column takes them.
	Unloaded []string `yaml:"unloaded,omitempty"`
	// Absent attributes are loaded but never occur; their columns stay NULL.
	Absent    []string   `yaml:"absent,omitempty"`
	Overflows []Overflow `yaml:"overflows,omitempty"`
}

// OK reports whether every row would load: no value is too long. Unloaded and
// absent attributes are informational.
func (c Coverage) OK() bool { return len(c.Overflows) == 0 }

// Check compares rep with d.
func Check(rep Report, d dataset.Descriptor) Coverage {
	cov := Coverage{Dataset: d.Name()}

	want := map[string]dataset.FieldSpec{}
	for _, f := range d.Fields() {
		want[f.Attribute] = f
	}
	for _, name := range rep.Names() {
		if _, ok := want[name]; !ok {
			cov.Unloaded = append(cov.Unloaded, name)
		}
	}
	for _, attr := range dataset.RequiredAttributes(d) {
		st, ok := rep.Attributes[attr]
		if !ok {
			cov.Absent = append(cov.Absent, attr)
			continue
		}
		f := want[attr]
		if limit, ok := varcharLimit(f.SQLType); ok && st.MaxLen > limit {
			cov.Overflows = append(cov.Overflows, Overflow{
				Attribute: attr,
				Column:    f.Column,
				Limit:     limit,
				MaxLen:    st.MaxLen,
			})
		}
	}
	return cov
}

func varcharLimit(sqlType string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(sqlType, "varchar(%d)", &n); err != nil {
		return 0, false
	}
	return n, true
}
