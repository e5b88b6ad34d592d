package xmlparser

// DefaultDelimiter is the field separator used in emitted lines (ASCII VT).
const DefaultDelimiter byte = 0x0B

// DefaultRecordTag is the element name carrying one record's attributes.
const DefaultRecordTag = "row"

// Options controls how rows are matched and serialized.
// All fields are optional; zero values pick the defaults above.
type Options struct {
	// RecordTag is the exact local element name to match (no namespace prefix).
	RecordTag string

	// Delimiter separates fields within a line. It is not escaped when it
	// appears inside a value.
	Delimiter byte

	// BufSize is the bufio.Reader size in front of the decoder; 0 => 1<<20.
	BufSize int
}

func (o Options) withDefaults() Options {
	if o.RecordTag == "" {
		o.RecordTag = DefaultRecordTag
	}
	if o.Delimiter == 0 {
		o.Delimiter = DefaultDelimiter
	}
	if o.BufSize <= 0 {
		o.BufSize = 1 << 20
	}
	return o
}
