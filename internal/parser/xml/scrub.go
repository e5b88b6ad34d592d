package xmlparser

import "strings"

// scrubber runs in a single pass, so the "&" introduced by one replacement is
// never escaped again.
var scrubber = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
	"\r", "",
	"\n", "",
)

// Scrub HTML-escapes the five special characters and deletes every carriage
// return and line feed, so a value can never break the line framing.
//
//	Scrub("<asdf\nfdsa\r>") == "&lt;asdffdsa&gt;"
func Scrub(s string) string {
	return scrubber.Replace(s)
}
