package xmlparser

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// charsetReader is installed as xml.Decoder.CharsetReader. encoding/xml only
// understands UTF-8 natively; any other declared encoding (e.g. ISO-8859-1 in
// older dumps) is decoded to UTF-8 through x/text.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("xml: unsupported encoding %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("xml: unsupported encoding %q", label)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
