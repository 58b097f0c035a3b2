package privacy

import (
	"fmt"
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// Compile compiles a list of regex pattern strings into compiled regexps.
// Returns an error if any pattern is invalid.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Apply replaces all matches of the compiled patterns in text with [REDACTED].
func Apply(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// Redactor masks cookie values and extra patterns in text bound for logs.
// A nil Redactor passes text through unchanged.
type Redactor struct {
	secrets  []string
	patterns []*regexp.Regexp
}

// NewRedactor builds a redactor for the given secrets (matched literally,
// empty ones ignored) and regex patterns.
func NewRedactor(secrets, patterns []string) (*Redactor, error) {
	compiled, err := Compile(patterns)
	if err != nil {
		return nil, err
	}
	r := &Redactor{patterns: compiled}
	for _, s := range secrets {
		if s = strings.TrimSpace(s); s != "" {
			r.secrets = append(r.secrets, s)
		}
	}
	return r, nil
}

// Redact replaces every secret and pattern match in text.
func (r *Redactor) Redact(text string) string {
	if r == nil {
		return text
	}
	for _, s := range r.secrets {
		text = strings.ReplaceAll(text, s, redactedPlaceholder)
	}
	return Apply(text, r.patterns)
}

// MaskCookie keeps the names of a "k=v; k2=v2" cookie string and hides the
// values, so doctor output can show which cookies are set.
func MaskCookie(cookie string) string {
	if strings.TrimSpace(cookie) == "" {
		return ""
	}
	parts := strings.Split(cookie, ";")
	masked := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		name, _, ok := strings.Cut(p, "=")
		if !ok {
			masked = append(masked, redactedPlaceholder)
			continue
		}
		masked = append(masked, name+"="+redactedPlaceholder)
	}
	return strings.Join(masked, "; ")
}
