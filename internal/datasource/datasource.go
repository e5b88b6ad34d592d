// Package datasource defines what the importer reads dump files from.
package datasource

import (
	"context"
	"io"
)

// Source yields one stream of dump bytes. Callers close the returned reader.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
