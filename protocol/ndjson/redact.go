package ndjson

import (
	"regexp"
)

// sensitiveKeyPattern matches field names whose value should be masked
// regardless of content: any key whose name contains
// key|token|secret|password|auth. Same rule as config/hotreload.go's
// redactSensitiveFields, generalized from a fixed keyword set to a regex.
var sensitiveKeyPattern = regexp.MustCompile(`(?i)key|token|secret|password|auth`)

// secretValuePatterns matches values that look like bearer credentials
// even when the surrounding key name gives no hint.
var secretValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{10,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{10,}`),
}

const redactedPlaceholder = "[REDACTED]"

// Redactor masks secret-shaped text before it reaches logs or the NDJSON
// stream.
type Redactor struct{}

// NewRedactor constructs a Redactor. It holds no state; a zero value works
// equally well, the constructor exists for symmetry with the rest of the
// package's New* functions.
func NewRedactor() *Redactor { return &Redactor{} }

// RedactText masks any secret-shaped substring in s.
func (r *Redactor) RedactText(s string) string {
	for _, pat := range secretValuePatterns {
		s = pat.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}

// RedactValue walks v (the result of a json.Unmarshal into any, or a
// map[string]any/[]any built directly) masking values whose key name
// matches sensitiveKeyPattern and scrubbing secret-shaped strings
// everywhere else. It mutates and returns maps/slices in place; other
// types are returned as RedactText(v) when v is itself a string.
func (r *Redactor) RedactValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.RedactText(val)
	case map[string]any:
		for k, inner := range val {
			if sensitiveKeyPattern.MatchString(k) {
				if s, ok := inner.(string); ok && s != "" {
					val[k] = redactedPlaceholder
					continue
				}
			}
			val[k] = r.RedactValue(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = r.RedactValue(inner)
		}
		return val
	default:
		return v
	}
}

// RedactFields applies RedactValue to every value of a flat field map,
// used for the Extra payload merged into an event envelope.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return r.RedactValue(out).(map[string]any)
}
