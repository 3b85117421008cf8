package respcache

import "strings"

const (
	// minMessageLen is the shortest message worth caching an answer for.
	minMessageLen = 10
	// minResponseLen is the shortest response text worth caching.
	minResponseLen = 20
)

// timeSensitiveTokens mark answers that are likely wrong if reused later.
var timeSensitiveTokens = []string{"today", "now", "current", "latest"}

// failureTokens mark degraded responses that must never be replayed.
var failureTokens = []string{"error", "sorry", "unavailable"}

// Cacheable is the policy gate applied before storing a response. It
// rejects short messages, short responses, and responses containing
// time-sensitive or failure-indicator tokens. Matching is case-insensitive
// and by substring, so "current" also rejects "currently".
func Cacheable(message, fullText string) bool {
	if len(message) < minMessageLen || len(fullText) < minResponseLen {
		return false
	}

	lower := strings.ToLower(fullText)
	for _, token := range timeSensitiveTokens {
		if strings.Contains(lower, token) {
			return false
		}
	}
	for _, token := range failureTokens {
		if strings.Contains(lower, token) {
			return false
		}
	}
	return true
}
