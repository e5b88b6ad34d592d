package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// FieldSpec describes one exported field of a dataset.
//
// Column is the lower snake_case identifier used in the load command's column
// list. Attribute is the attribute name expected on the source <row> element;
// it is always derived from Column by AttributeName and cannot be set by hand.
// SQLType is the PostgreSQL type used when the table is created.
type FieldSpec struct {
	Column    string
	Attribute string
	SQLType   string
}

// Field builds a FieldSpec for column, deriving its source attribute name.
func Field(column, sqlType string) FieldSpec {
	return FieldSpec{
		Column:    column,
		Attribute: AttributeName(column),
		SQLType:   sqlType,
	}
}

// AttributeName maps a snake_case column name to the attribute name used in
// the dump files: each underscore-separated word is capitalized and joined
// ("user_id" -> "UserId"). Columns ending in "guid" end in the literal
// upper-case "GUID" instead ("revision_guid" -> "RevisionGUID").
func AttributeName(column string) string {
	var sb strings.Builder
	sb.Grow(len(column))
	for _, word := range strings.Split(column, "_") {
		if word == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(word[:1]))
		sb.WriteString(word[1:])
	}
	out := sb.String()
	if strings.HasSuffix(strings.ToLower(out), "guid") {
		out = out[:len(out)-4] + "GUID"
	}
	return out
}

// RequiredAttributes returns the source attribute names of d sorted with
// byte-wise string ordering. This is the order values appear in every
// emitted line.
func RequiredAttributes(d Descriptor) []string {
	out := make([]string, 0, len(d.fields))
	for _, f := range d.fields {
		out = append(out, f.Attribute)
	}
	sort.Strings(out)
	return out
}

// SortedColumns returns the column names of d sorted with the same comparator
// as RequiredAttributes.
func SortedColumns(d Descriptor) []string {
	out := make([]string, 0, len(d.fields))
	for _, f := range d.fields {
		out = append(out, f.Column)
	}
	sort.Strings(out)
	return out
}

// CheckAlignment verifies that the independently sorted column list and
// attribute list of d correspond element for element, i.e. that
// AttributeName(SortedColumns(d)[i]) == RequiredAttributes(d)[i] for all i.
//
// A derivation rule that changes relative order between a column and its
// attribute would make every generated line land in the wrong columns; this
// is where that gets caught.
func CheckAlignment(d Descriptor) error {
	cols := SortedColumns(d)
	attrs := RequiredAttributes(d)
	if len(cols) != len(attrs) {
		return fmt.Errorf("dataset %s: %d columns but %d attributes", d.name, len(cols), len(attrs))
	}
	for i, c := range cols {
		if got := AttributeName(c); got != attrs[i] {
			return fmt.Errorf(
				"dataset %s: position %d: column %q derives attribute %q but sorted attribute is %q",
				d.name, i, c, got, attrs[i],
			)
		}
	}
	return nil
}
