// Package xmlparser turns a dump file into delimiter-separated lines.
//
// The dump files hold one repeating element (<row .../>) whose attributes are
// the record's fields. Files can be many gigabytes, so the package never builds
// a document tree: it pulls tokens from encoding/xml one at a time and keeps
// only the current element's attributes in memory.
package xmlparser

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"io"
)

// RowReader is a forward-only iterator over the record elements of a stream.
// It is used like bufio.Scanner:
//
//	rr := NewRowReader(f, attrs, Options{})
//	for rr.Next() {
//	    use(rr.Values())
//	}
//	if err := rr.Err(); err != nil { ... }
//
// A RowReader consumes its input once and cannot be restarted.
type RowReader struct {
	dec   *xml.Decoder
	tag   string
	index map[string][]int
	vals  []string
	attrs []xml.Attr
	// default namespace in scope, one entry per open element
	defNS []string
	rows  int64
	err   error
	done  bool
}

// NewRowReader returns a RowReader that extracts attrs, in the given order,
// from every element of r whose name is opts.RecordTag.
func NewRowReader(r io.Reader, attrs []string, opts Options) *RowReader {
	opts = opts.withDefaults()

	dec := xml.NewDecoder(bufio.NewReaderSize(r, opts.BufSize))
	dec.CharsetReader = charsetReader

	index := make(map[string][]int, len(attrs))
	for i, a := range attrs {
		index[a] = append(index[a], i)
	}

	return &RowReader{
		dec:   dec,
		tag:   opts.RecordTag,
		index: index,
		vals:  make([]string, len(attrs)),
	}
}

// Next advances to the next record element. It returns false at the end of
// the stream or on the first error; Err distinguishes the two.
func (rr *RowReader) Next() bool {
	if rr.done {
		return false
	}
	for {
		tok, err := rr.dec.Token()
		if err != nil {
			rr.done = true
			if err != io.EOF {
				rr.err = rr.wrapErr(err)
			}
			return false
		}
		var se xml.StartElement
		switch t := tok.(type) {
		case xml.StartElement:
			se = t
			rr.defNS = append(rr.defNS, defaultNS(se.Attr, rr.currentNS()))
		case xml.EndElement:
			if n := len(rr.defNS); n > 0 {
				rr.defNS = rr.defNS[:n-1]
			}
			continue
		default:
			continue
		}
		// Token resolves an unprefixed name to the default namespace in scope
		// (the element's own xmlns, else its parent's), so a prefixed name
		// bound elsewhere never matches.
		if se.Name.Local != rr.tag || se.Name.Space != rr.currentNS() {
			continue
		}
		rr.attrs = se.Attr
		rr.fill(se.Attr)
		rr.rows++
		return true
	}
}

// currentNS is the default namespace of the innermost open element.
func (rr *RowReader) currentNS() string {
	if n := len(rr.defNS); n > 0 {
		return rr.defNS[n-1]
	}
	return ""
}

func defaultNS(attrs []xml.Attr, inherited string) string {
	for _, a := range attrs {
		if a.Name.Space == "" && a.Name.Local == "xmlns" {
			return a.Value
		}
	}
	return inherited
}

// Values returns the scrubbed attribute values of the current record, one per
// requested attribute. Missing attributes are empty strings. The slice is
// reused by the next call to Next.
func (rr *RowReader) Values() []string { return rr.vals }

// Attrs returns the raw, unscrubbed attributes of the current record,
// including ones not requested. Valid until the next call to Next.
func (rr *RowReader) Attrs() []xml.Attr { return rr.attrs }

// Rows returns the number of records returned so far.
func (rr *RowReader) Rows() int64 { return rr.rows }

// Err returns the first non-EOF error encountered.
func (rr *RowReader) Err() error { return rr.err }

func (rr *RowReader) fill(attrs []xml.Attr) {
	for i := range rr.vals {
		rr.vals[i] = ""
	}
	for _, a := range attrs {
		if a.Name.Space != "" {
			continue
		}
		for _, i := range rr.index[a.Name.Local] {
			rr.vals[i] = Scrub(a.Value)
		}
	}
}

func (rr *RowReader) wrapErr(err error) error {
	line, _ := rr.dec.InputPos()
	if isSyntaxErr(err) {
		return &MalformedSourceError{Line: line, Truncated: isTruncErr(err), Err: err}
	}
	return fmt.Errorf("xml: read at line %d: %w", line, err)
}

// Stats summarizes one Transform call.
type Stats struct {
	Rows  int64 // lines written
	Bytes int64 // bytes written, including delimiters and newlines
}

// Transform reads record elements from r and writes one line per record to w:
// the values of attrs in the given order, joined by opts.Delimiter and
// terminated by '\n'. Each line goes out in a single Write, so at most one
// line is in flight; a blocking w (such as a pipe) throttles parsing.
//
// Transform stops at the first parse or write error, or when ctx is done.
func Transform(ctx context.Context, r io.Reader, attrs []string, w io.Writer, opts Options) (Stats, error) {
	opts = opts.withDefaults()
	rr := NewRowReader(r, attrs, opts)

	var st Stats
	line := make([]byte, 0, 4096)
	for rr.Next() {
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		default:
		}

		line = AppendLine(line[:0], rr.Values(), opts.Delimiter)
		n, err := w.Write(line)
		st.Bytes += int64(n)
		if err != nil {
			return st, fmt.Errorf("xml: write row %d: %w", rr.Rows(), err)
		}
		st.Rows++
	}
	if err := rr.Err(); err != nil {
		return st, err
	}
	return st, nil
}

// AppendLine appends vals joined by delim plus a trailing newline to dst.
func AppendLine(dst []byte, vals []string, delim byte) []byte {
	for i, v := range vals {
		if i > 0 {
			dst = append(dst, delim)
		}
		dst = append(dst, v...)
	}
	return append(dst, '\n')
}
