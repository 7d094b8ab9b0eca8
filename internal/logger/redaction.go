package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks credentials in log output
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor for provider API keys and common secret fields
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Anthropic before OpenAI so the longer prefix wins
			regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
			regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),

			// AWS access key ids
			regexp.MustCompile(`(AKIA|ASIA)[0-9A-Z]{16}`),

			// Google API keys
			regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),

			regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]+`),
			regexp.MustCompile(`(?i)(secret_access_key|session_token|api_key)"\s*:\s*"[^"]+"`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks every match in s
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, redacted)
	}
	return s
}

// Wrap returns a writer that redacts before writing to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog never sees a short write after masking
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
