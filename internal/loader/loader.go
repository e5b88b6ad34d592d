// Package loader hands a stream of delimited lines to PostgreSQL.
//
// A Loader runs one bulk-load command per call and exposes the command's input
// to a FeedFunc as an io.Writer. Two implementations exist: PSQL runs the psql
// client as a subprocess and writes to its stdin; PGX speaks the COPY protocol
// directly over a pgconn connection.
package loader

import (
	"context"
	"fmt"
	"io"

	"so2pg/internal/dataset"
)

// FeedFunc writes the load input to w. The loader closes the input once
// FeedFunc returns, so implementations must not retain w.
type FeedFunc func(w io.Writer) error

// Loader executes a load command and feeds it data.
//
// Load blocks until the command has consumed its input and exited. A non-nil
// error means the load did not complete; rows may or may not be committed.
type Loader interface {
	Load(ctx context.Context, command string, feed FeedFunc) error
}

// BuildCopyCommand renders the COPY statement for spec. The delimiter is
// written as an escaped hex byte so non-printable bytes survive the command
// line:
//
//	COPY badges(id,name) FROM STDIN WITH (FORMAT csv, DELIMITER E'\x0B')
func BuildCopyCommand(spec dataset.ColumnSpec, delim byte) string {
	return fmt.Sprintf("COPY %s FROM STDIN WITH (FORMAT csv, DELIMITER E'\\x%02X')", spec.String(), delim)
}
