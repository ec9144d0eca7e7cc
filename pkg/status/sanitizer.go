// Package status cleans run failure messages before they are stored or sent
// to webhooks. Credentials, private addresses and cluster object names are
// redacted and the result is capped at MaxMessageLength.
package status

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength longest message kept for a run
const MaxMessageLength = 1024

const truncatedSuffix = "...(truncated)"

// sensitivePattern a pattern and what it is replaced with
type sensitivePattern struct {
	pattern     *regexp.Regexp
	replacement string
	description string
}

// Sanitizer redacts sensitive information from error messages
type Sanitizer struct {
	patterns  []*sensitivePattern
	maxLength int
}

// NewSanitizer creates a sanitizer with the default patterns
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns:  defaultPatterns(),
		maxLength: MaxMessageLength,
	}
}

// order matters: DSNs and URLs with credentials go before bare addresses
func defaultPatterns() []*sensitivePattern {
	return []*sensitivePattern{
		{
			pattern:     regexp.MustCompile(`[^\s:/@]+:[^\s@/]+@(?:tcp|unix)\([^)]*\)`),
			replacement: "[dsn]",
			description: "mysql DSN",
		},
		{
			pattern:     regexp.MustCompile(`([a-z][a-z0-9+.-]*://)[^\s:/@]+:[^\s@]+@`),
			replacement: "${1}[credentials]@",
			description: "URL credentials",
		},
		{
			pattern:     regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9._~+/-]+=*`),
			replacement: "Bearer [token]",
			description: "bearer token",
		},
		{
			pattern:     regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`),
			replacement: "[aws-key]",
			description: "AWS access key id",
		},
		{
			pattern:     regexp.MustCompile(`(?i)\b(password|passwd|secret|token|api_key)=\S+`),
			replacement: "${1}=[redacted]",
			description: "key=value secret",
		},
		{
			pattern:     regexp.MustCompile(`\b10\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
			replacement: "[internal-ip]",
			description: "private IP (10.0.0.0/8)",
		},
		{
			pattern:     regexp.MustCompile(`\b172\.(?:1[6-9]|2[0-9]|3[0-1])\.\d{1,3}\.\d{1,3}\b`),
			replacement: "[internal-ip]",
			description: "private IP (172.16.0.0/12)",
		},
		{
			pattern:     regexp.MustCompile(`\b192\.168\.\d{1,3}\.\d{1,3}\b`),
			replacement: "[internal-ip]",
			description: "private IP (192.168.0.0/16)",
		},
		{
			pattern:     regexp.MustCompile(`\bnode/[a-zA-Z0-9][-a-zA-Z0-9_.]*\b`),
			replacement: "node/[redacted]",
			description: "node name",
		},
		{
			pattern:     regexp.MustCompile(`\bsecrets?/[a-zA-Z0-9][-a-zA-Z0-9_.]*\b`),
			replacement: "secret/[redacted]",
			description: "secret name",
		},
	}
}

// AddPattern registers an extra redaction pattern
func (s *Sanitizer) AddPattern(pattern *regexp.Regexp, replacement, description string) {
	s.patterns = append(s.patterns, &sensitivePattern{
		pattern:     pattern,
		replacement: replacement,
		description: description,
	})
}

// Sanitize redacts message and truncates it to the maximum length
func (s *Sanitizer) Sanitize(message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return message
	}
	for _, sp := range s.patterns {
		message = sp.pattern.ReplaceAllString(message, sp.replacement)
	}
	return truncate(message, s.maxLength)
}

// truncate cuts on a rune boundary so the stored message stays valid UTF-8
func truncate(message string, limit int) string {
	if len(message) <= limit {
		return message
	}
	cut := limit - len(truncatedSuffix)
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut] + truncatedSuffix
}
