package xmlparser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedSource is matched (via errors.Is) by *MalformedSourceError.
var ErrMalformedSource = errors.New("malformed xml source")

// MalformedSourceError reports that the source stream is not well-formed XML.
// Line is the decoder's input line when the error was detected.
type MalformedSourceError struct {
	Line      int
	Truncated bool
	Err       error
}

func (e *MalformedSourceError) Error() string {
	if e.Truncated {
		return fmt.Sprintf("xml: truncated input at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("xml: malformed input at line %d: %v", e.Line, e.Err)
}

func (e *MalformedSourceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrMalformedSource.
func (e *MalformedSourceError) Is(target error) bool { return target == ErrMalformedSource }

// isSyntaxErr reports whether err came from the tokenizer rather than the
// underlying reader.
func isSyntaxErr(err error) bool {
	var se *xml.SyntaxError
	return errors.As(err, &se)
}

// isTruncErr returns true when a tokenization error indicates a truncated
// stream. encoding/xml does not expose a sentinel, so we match the message.
func isTruncErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "unexpected EOF")
}
