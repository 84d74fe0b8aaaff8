package rules

import "regexp"

// Sanitization masks credentials and secrets embedded in device output
// before the text is matched by rules or forwarded to the oracle.
var sanitizePatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(encrypted-password\s+)"[^"]+"`), `$1"********"`},
	{regexp.MustCompile(`(password|secret)\s+(\d)\s+\S+`), `$1 $2 ********`},
	{regexp.MustCompile(`(username\s+\S+\s+secret)\s+\d\s+\S+`), `$1 5 ********`},
	{regexp.MustCompile(`(snmp-server community)\s+\S+`), `$1 ********`},
}

// Sanitize masks credentials in the given text.
func Sanitize(text string) string {
	for _, p := range sanitizePatterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}
