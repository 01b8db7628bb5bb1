package security

import (
	"regexp"
	"strings"
)

// secretPatterns match credentials that may leak into error text.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|access[_-]?token|request[_-]?token|bearer|password)([=:\s]+["']?)([^\s"'&]+)`),
	// OpenAI and Groq keys
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`gsk_[A-Za-z0-9]{20,}`),
}

// MaskCredential masks a credential value for logging.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// MaskSecrets masks every credential-looking value in s.
func MaskSecrets(s string) string {
	s = secretPatterns[0].ReplaceAllStringFunc(s, func(match string) string {
		m := secretPatterns[0].FindStringSubmatch(match)
		return m[1] + m[2] + MaskCredential(m[3])
	})
	for _, p := range secretPatterns[1:] {
		s = p.ReplaceAllStringFunc(s, MaskCredential)
	}
	return s
}

// ContainsSecret reports whether s holds a credential-looking value.
func ContainsSecret(s string) bool {
	for _, p := range secretPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
