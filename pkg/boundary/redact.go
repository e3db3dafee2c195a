package boundary

import "regexp"

// redactPatterns catch secrets that tend to leak into logged payloads
// (tokens, bearer headers, PINs echoed back in error messages). This is
// log hygiene, not cryptographic confidentiality — payload confidentiality
// beyond TLS is explicitly out of scope (spec §1 Non-goals).
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._-]+`),
	regexp.MustCompile(`(?i)("?token"?\s*[:=]\s*"?)[A-Za-z0-9._-]{8,}`),
	regexp.MustCompile(`(?i)("?pin"?\s*[:=]\s*"?)[A-Za-z0-9]{4,}`),
}

// RedactForLog masks credential-shaped substrings in text before it is
// written to a log line.
func RedactForLog(text string) string {
	out := text
	for _, p := range redactPatterns {
		out = p.ReplaceAllString(out, "${1}[redacted]")
	}
	return out
}
