package core

import "strings"

// RedactSecret masks all but the last 4 characters of a secret value, for
// safe inclusion in logs and config dumps. Values of 4 characters or fewer
// are masked entirely.
func RedactSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

// SensitiveKeys lists config/env keys whose values must be redacted
// before logging.
var SensitiveKeys = map[string]bool{
	"OPENAI_API_KEY":    true,
	"ANTHROPIC_API_KEY": true,
	"BRAVE_API_KEY":     true,
	"TAVILY_API_KEY":    true,
	"GITHUB_TOKEN":      true,
	"TELEGRAM_BOT_TOKEN": true,
	"SMTP_PASS":         true,
	"EMAIL_API_KEY":     true,
	"RESEND_API_KEY":    true,
}

func IsSensitiveKey(key string) bool {
	return SensitiveKeys[strings.ToUpper(key)]
}
