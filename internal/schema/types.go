// Package schema creates the PostgreSQL objects an import loads into: one
// table per dataset, the optional lookup tables with their seed rows, and
// the foreign keys between them.
//
// Definitions are plain values (TableDef, ForeignKey, Lookup) rendered to SQL
// by pure functions; Ensurer executes them in the order an import needs.
package schema

// ColumnDef describes one column.
//
//   - Name: unquoted column name; quoting happens at render time
//   - SQLType: PostgreSQL type, e.g. integer, varchar(50), timestamp
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression, emitted verbatim
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds a possibly schema-qualified table name ("public.posts") and
// its ordered columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// ForeignKey links Table.Column to RefTable.RefColumn.
type ForeignKey struct {
	Table     string
	Column    string
	RefTable  string
	RefColumn string
}

// Name is the constraint name, <table>_<column>_fk.
func (fk ForeignKey) Name() string {
	return fk.Table + "_" + fk.Column + "_fk"
}

// SeedRow is one (id, label) pair of a lookup table.
type SeedRow struct {
	ID    int
	Label string
}

// Lookup is a small id → label table created with its rows.
type Lookup struct {
	Table TableDef
	// LabelColumn names the column Seed labels are written to.
	LabelColumn string
	Seed        []SeedRow
}
