package common

import (
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

// HasAny reports whether s contains any of the substrings, ignoring case.
func HasAny(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// HumanBytes formats a byte count for logs, e.g. "2.1 MB".
func HumanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// LogErr logs err at warn level with msg if it is not nil.
func LogErr(logger *slog.Logger, err error, msg string, args ...any) {
	if err == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(msg, append([]any{"error", err}, args...)...)
}
