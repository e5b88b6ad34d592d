package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// DefaultPSQLPath is looked up on PATH when PSQL.Path is empty.
const DefaultPSQLPath = "psql"

const stderrTail = 4 << 10

// PSQL loads data by running the psql client with the COPY command passed as
// -c and streaming rows into its standard input.
//
// The process is started from an argument vector, never through a shell. The
// password reaches the child only through PGPASSWORD in its own environment.
type PSQL struct {
	Path     string
	Database string
	Host     string
	Port     string
	User     string
	Password string

	// Env is the child's base environment. Nil means os.Environ().
	Env []string

	Logger *zap.Logger
}

// Args returns the argument vector for running command. Empty connection
// settings are omitted so psql falls back to its own defaults.
func (p *PSQL) Args(command string) []string {
	args := []string{"-X", "-v", "ON_ERROR_STOP=1", "-d", p.Database}
	if p.Host != "" {
		args = append(args, "-h", p.Host)
	}
	if p.User != "" {
		args = append(args, "-U", p.User)
	}
	if p.Port != "" {
		args = append(args, "-p", p.Port)
	}
	return append(args, "-c", command)
}

func (p *PSQL) env() []string {
	base := p.Env
	if base == nil {
		base = os.Environ()
	}
	env := make([]string, 0, len(base)+1)
	env = append(env, base...)
	if p.Password != "" {
		env = append(env, "PGPASSWORD="+p.Password)
	}
	return env
}

// Load implements Loader.
//
// If feed fails, the child is killed before its input is closed so a partial
// COPY is never committed. A child that exits non-zero yields a
// *LoaderProcessError; when that happened while feed was still writing, the
// write error is carried in LoaderProcessError.Err.
func (p *PSQL) Load(ctx context.Context, command string, feed FeedFunc) error {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	path := p.Path
	if path == "" {
		path = DefaultPSQLPath
	}

	cmd := exec.CommandContext(ctx, path, p.Args(command)...)
	cmd.Env = p.env()
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("loader: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("loader: start %s: %w", path, err)
	}
	log.Debug("loader: psql started", zap.String("path", path), zap.Int("pid", cmd.Process.Pid))

	feedErr := feed(stdin)
	if feedErr != nil {
		_ = cmd.Process.Kill()
	}
	closeErr := stdin.Close()
	waitErr := cmd.Wait()

	var exitErr *exec.ExitError
	switch {
	case errors.As(waitErr, &exitErr) && exitErr.ExitCode() >= 0:
		return &LoaderProcessError{
			Command:  command,
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr.String(),
			Err:      feedErr,
		}
	case feedErr != nil:
		return fmt.Errorf("loader: feed: %w", feedErr)
	case ctx.Err() != nil:
		return fmt.Errorf("loader: %w", ctx.Err())
	case waitErr != nil:
		return fmt.Errorf("loader: wait %s: %w", path, waitErr)
	case closeErr != nil && !errors.Is(closeErr, os.ErrClosed):
		return fmt.Errorf("loader: close stdin: %w", closeErr)
	}
	return nil
}

// Exec runs a single statement with psql and no input. It lets the schema
// package create tables through the same client the data goes through.
func (p *PSQL) Exec(ctx context.Context, sql string) error {
	return p.Load(ctx, sql, func(io.Writer) error { return nil })
}
