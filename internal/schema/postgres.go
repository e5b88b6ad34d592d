package schema

import (
	"fmt"
	"sort"
	"strings"
)

// BuildCreateTableSQL builds a deterministic CREATE TABLE IF NOT EXISTS
// statement.
//
// Rules:
//   - t.FQN must be non-empty; each column needs a Name and an SQLType.
//   - Primary-key columns are always NOT NULL, even if Nullable=true.
//   - PRIMARY KEY is a separate clause with columns sorted alphabetically.
//   - Identifiers are double-quoted; embedded double-quotes are escaped.
func BuildCreateTableSQL(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("schema: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("schema: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, 1)

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("schema: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("schema: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(quoteIdent(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, quoteIdent(name))
		}
	}

	if len(pks) > 0 {
		sort.Strings(pks)
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteFQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}

// BuildForeignKeySQL renders an ALTER TABLE ... ADD CONSTRAINT statement.
func BuildForeignKeySQL(fk ForeignKey) (string, error) {
	if fk.Table == "" || fk.Column == "" || fk.RefTable == "" || fk.RefColumn == "" {
		return "", fmt.Errorf("schema: incomplete foreign key %+v", fk)
	}
	return fmt.Sprintf(
		"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);",
		quoteFQN(fk.Table),
		quoteIdent(fk.Name()),
		quoteIdent(fk.Column),
		quoteFQN(fk.RefTable),
		quoteIdent(fk.RefColumn),
	), nil
}

// BuildSeedSQL renders one multi-row INSERT for l's seed rows. Rows whose id
// already exists are left alone, so seeding is repeatable. It returns "" when
// there is nothing to insert.
func BuildSeedSQL(l Lookup) string {
	if len(l.Seed) == 0 {
		return ""
	}
	vals := make([]string, len(l.Seed))
	for i, r := range l.Seed {
		vals[i] = fmt.Sprintf("(%d, %s)", r.ID, quoteLiteral(r.Label))
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES\n  %s\nON CONFLICT (%s) DO NOTHING;",
		quoteFQN(l.Table.FQN),
		quoteIdent("id"),
		quoteIdent(l.LabelColumn),
		strings.Join(vals, ",\n  "),
		quoteIdent("id"),
	)
}

// quoteIdent quotes a single identifier segment, e.g.:
//
//	quoteIdent(`posts`)      => `"posts"`
//	quoteIdent(`weird"name`) => `"weird""name"`
func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// quoteFQN quotes a possibly schema-qualified name like "public.users" to
// `"public"."users"`. Empty segments are ignored.
func quoteFQN(f string) string {
	parts := strings.Split(f, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, quoteIdent(p))
	}
	return strings.Join(out, ".")
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
