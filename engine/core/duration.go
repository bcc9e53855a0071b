package core

import (
	"strings"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// ParseHumanDuration parses "30s", "1h30m" via the stdlib parser first,
// then converts single-unit word forms ("5 seconds", "3 minutes",
// "2 hours") to Go syntax, and finally falls back to str2duration, which
// adds day and week units ("1d12h", "2w"), for human-authored workflow
// retry/backoff config.
func ParseHumanDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if converted := convertHumanToGoFormat(s); converted != s {
		if d, err := time.ParseDuration(converted); err == nil {
			return d, nil
		}
	}
	return str2duration.ParseDuration(s)
}

func convertHumanToGoFormat(s string) string {
	switch {
	case strings.HasSuffix(s, " second"), strings.HasSuffix(s, " seconds"):
		return trimUnitSuffix(s, " second", " seconds") + "s"
	case strings.HasSuffix(s, " minute"), strings.HasSuffix(s, " minutes"):
		return trimUnitSuffix(s, " minute", " minutes") + "m"
	case strings.HasSuffix(s, " hour"), strings.HasSuffix(s, " hours"):
		return trimUnitSuffix(s, " hour", " hours") + "h"
	default:
		return s
	}
}

func trimUnitSuffix(s, singular, plural string) string {
	s = strings.TrimSuffix(s, plural)
	s = strings.TrimSuffix(s, singular)
	return s
}
