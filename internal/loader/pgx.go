package loader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Copier is the subset of *pgconn.PgConn used by PGX.
type Copier interface {
	CopyFrom(ctx context.Context, r io.Reader, sql string) (pgconn.CommandTag, error)
}

// PGX runs COPY ... FROM STDIN over an existing connection. The feed writes
// into an io.Pipe whose read end is consumed by the COPY protocol, so memory
// stays bounded by the pipe, one line at a time.
type PGX struct {
	Conn   Copier
	Logger *zap.Logger
}

// Dial connects to dsn and returns a PGX loader plus a close function.
func Dial(ctx context.Context, dsn string, log *zap.Logger) (*PGX, func(), error) {
	conn, err := pgconn.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("loader: connect: %w", err)
	}
	closeFn := func() { _ = conn.Close(context.Background()) }
	return &PGX{Conn: conn, Logger: log}, closeFn, nil
}

// Load implements Loader.
func (p *PGX) Load(ctx context.Context, command string, feed FeedFunc) error {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := feed(pw)
		// nil closes with io.EOF, which ends the COPY normally.
		pw.CloseWithError(err)
		if err != nil {
			return fmt.Errorf("loader: feed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		tag, err := p.Conn.CopyFrom(gctx, pr, command)
		if err != nil {
			pr.CloseWithError(err)
			return fmt.Errorf("loader: copy: %w", err)
		}
		// Unblocks a feed that is still writing after the server finished.
		pr.Close()
		log.Debug("loader: copy done", zap.Int64("rows", tag.RowsAffected()))
		return nil
	})

	return g.Wait()
}

type statementExecer interface {
	Exec(ctx context.Context, sql string) *pgconn.MultiResultReader
}

// Exec runs sql on the loader's connection, so schema DDL and COPY share one
// session. Conn must also implement Exec (as *pgconn.PgConn does).
func (p *PGX) Exec(ctx context.Context, sql string) error {
	c, ok := p.Conn.(statementExecer)
	if !ok {
		return errors.New("loader: connection cannot execute statements")
	}
	if _, err := c.Exec(ctx, sql).ReadAll(); err != nil {
		return fmt.Errorf("loader: exec: %w", err)
	}
	return nil
}
