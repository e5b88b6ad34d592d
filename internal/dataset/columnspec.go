package dataset

import "strings"

// ColumnSpec is the table name plus the sorted column list used to build the
// load command. Columns are in the same order as RequiredAttributes.
type ColumnSpec struct {
	Table   string
	Columns []string
}

// BuildColumnSpec derives the ColumnSpec for d. It has no side effects.
func BuildColumnSpec(d Descriptor) ColumnSpec {
	return ColumnSpec{Table: d.table, Columns: SortedColumns(d)}
}

// String renders the spec as table(col1,col2,...).
func (c ColumnSpec) String() string {
	return c.Table + "(" + strings.Join(c.Columns, ",") + ")"
}
