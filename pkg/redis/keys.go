package redis

import "strings"

const keyNamespace = "sm"

// Key families. Every key the services write lives under one of these.
const (
	familyIdempotency = "idempotency"
	familyRateLimit   = "rate_limit"
	familyLock        = "lock"
)

// buildKey joins parts under the namespace, skipping blanks.
func buildKey(parts ...string) string {
	key := []string{keyNamespace}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			key = append(key, part)
		}
	}
	return strings.Join(key, ":")
}

// IdempotencyKey names the marker for id within scope, for example
// sm:idempotency:mpesa-callback:ws_CO_1:0.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(familyIdempotency, scope, id)
}

// RateLimitKey names a fixed-window counter.
func (c *Client) RateLimitKey(scope string) string {
	return buildKey(familyRateLimit, scope)
}

// LockKey names a distributed lock.
func (c *Client) LockKey(name string) string {
	return buildKey(familyLock, name)
}
