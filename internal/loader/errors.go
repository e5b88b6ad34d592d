package loader

import (
	"fmt"
	"strings"
)

// LoaderProcessError reports a load command that exited unsuccessfully.
//
// Err is set when writing the input failed as well (typically a broken pipe
// because the process had already died); Stderr holds the tail of the
// process's diagnostic output.
type LoaderProcessError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *LoaderProcessError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "loader: exit status %d", e.ExitCode)
	if e.Err != nil {
		fmt.Fprintf(&sb, " (input: %v)", e.Err)
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		sb.WriteString(": ")
		sb.WriteString(msg)
	}
	return sb.String()
}

func (e *LoaderProcessError) Unwrap() error { return e.Err }

// tailBuffer is an io.Writer that keeps only the last max bytes written.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.max {
		t.buf = append(t.buf[:0], p[n-t.max:]...)
		return n, nil
	}
	if over := len(t.buf) + n - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
