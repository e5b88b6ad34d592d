// Package file reads dump files from the local filesystem.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local is a single file on disk.
type Local struct{ path string }

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

// Open opens the file for reading. A context that is already done short-circuits
// before the filesystem is touched. Errors keep their os cause for errors.Is.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("file: open %s: %w", l.path, err)
	}
	return f, nil
}
