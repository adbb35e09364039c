package services

import (
	"strings"
	"time"

	"badgehub/internal/badgeid"
)

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(values []int, v int) bool {
	for _, n := range values {
		if n == v {
			return true
		}
	}
	return false
}

func appendUnique(values []string, v string) []string {
	if containsString(values, v) {
		return values
	}
	return append(values, v)
}

func splitRef(raw string) []string {
	return strings.SplitN(raw, badgeid.Delimiter, 3)
}

// nextTimestamp returns a creation time that outranks previous.
func nextTimestamp(now time.Time, previous int64) int64 {
	ts := now.Unix()
	if ts <= previous {
		ts = previous + 1
	}
	return ts
}
