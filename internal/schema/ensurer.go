package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"so2pg/internal/dataset"
)

// Execer runs one SQL statement.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// ExecFunc adapts a function to Execer.
type ExecFunc func(ctx context.Context, sql string) error

func (f ExecFunc) Exec(ctx context.Context, sql string) error { return f(ctx, sql) }

// PgConn executes statements on a pgconn connection.
type PgConn struct {
	Conn *pgconn.PgConn
}

func (p PgConn) Exec(ctx context.Context, sql string) error {
	_, err := p.Conn.Exec(ctx, sql).ReadAll()
	return err
}

// Ensurer creates the import's database objects.
//
// Prepare runs before any data is loaded and creates the dataset tables.
// Finish runs after all data is loaded: relationships, then the optional
// lookup tables, then the relationships to those. Tables and seeds are
// idempotent; a foreign key that cannot be created (already present, or
// violated by the data) is logged and skipped.
type Ensurer struct {
	DB        Execer
	Registry  *dataset.Registry
	Relations bool
	Optionals bool
	Logger    *zap.Logger
}

func (e *Ensurer) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Prepare creates one table per registered dataset.
func (e *Ensurer) Prepare(ctx context.Context) error {
	for _, t := range Basics(e.Registry) {
		if err := e.createTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Finish adds relationships and optional tables as configured.
func (e *Ensurer) Finish(ctx context.Context) error {
	if e.Relations {
		if err := e.addForeignKeys(ctx, Relations()); err != nil {
			return err
		}
	}
	if e.Optionals {
		if err := e.createLookups(ctx); err != nil {
			return err
		}
	}
	if e.Relations && e.Optionals {
		if err := e.addForeignKeys(ctx, OptionalRelations()); err != nil {
			return err
		}
	}
	return nil
}

func (e *Ensurer) createTable(ctx context.Context, t TableDef) error {
	sql, err := BuildCreateTableSQL(t)
	if err != nil {
		return err
	}
	if err := e.DB.Exec(ctx, sql); err != nil {
		return fmt.Errorf("schema: create %s: %w", t.FQN, err)
	}
	e.log().Debug("schema: table ready", zap.String("table", t.FQN))
	return nil
}

func (e *Ensurer) createLookups(ctx context.Context) error {
	for _, l := range Lookups() {
		if err := e.createTable(ctx, l.Table); err != nil {
			return err
		}
		if sql := BuildSeedSQL(l); sql != "" {
			if err := e.DB.Exec(ctx, sql); err != nil {
				return fmt.Errorf("schema: seed %s: %w", l.Table.FQN, err)
			}
		}
	}
	return nil
}

// addForeignKeys only fails when ctx is done.
func (e *Ensurer) addForeignKeys(ctx context.Context, fks []ForeignKey) error {
	for _, fk := range fks {
		if err := ctx.Err(); err != nil {
			return err
		}
		sql, err := BuildForeignKeySQL(fk)
		if err == nil {
			err = e.DB.Exec(ctx, sql)
		}
		if err != nil {
			e.log().Warn("schema: foreign key skipped",
				zap.String("table", fk.Table),
				zap.String("column", fk.Column),
				zap.String("references", fk.RefTable),
				zap.Error(err),
			)
			continue
		}
		e.log().Debug("schema: foreign key added", zap.String("constraint", fk.Name()))
	}
	return nil
}
