package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Entry is one directory member.
type Entry struct {
	Name  string // base name
	Path  string // dir joined with Name
	IsDir bool
}

// ListDir returns the members of dir in the order the filesystem reports
// them. The result is deliberately not sorted; callers that need a stable
// order sort it themselves.
func ListDir(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("file: list %s: %w", dir, err)
	}
	defer f.Close()

	des, err := f.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("file: list %s: %w", dir, err)
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		out = append(out, Entry{
			Name:  de.Name(),
			Path:  filepath.Join(dir, de.Name()),
			IsDir: de.IsDir(),
		})
	}
	return out, nil
}
