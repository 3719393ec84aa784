package redis

import "strings"

const (
	keyNamespace      = "mkt"
	idempotencyPrefix = "idem"
	rateLimitPrefix   = "rl"
)

// IdempotencyKey namespaces a client supplied key under its request scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey(idempotencyPrefix, scope, id)
}

// RateLimitKey names the counter for scope in the window starting at bucket.
func (c *Client) RateLimitKey(scope, bucket string) string {
	return joinKey(rateLimitPrefix, scope, bucket)
}

func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
