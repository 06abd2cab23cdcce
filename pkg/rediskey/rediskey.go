package rediskey

import "fmt"

// Key namespaces (global convention across the service)
const (
	RateLimitPrefix = "ratelimit"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRateLimitKey returns "ratelimit:{identity}:{windowStartUnix}"
func BuildRateLimitKey(identity string, windowStartUnix int64) string {
	return fmt.Sprintf("%s:%s:%d", RateLimitPrefix, identity, windowStartUnix)
}
