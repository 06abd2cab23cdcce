package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const keyPrefix = "LG"

var keyPattern = regexp.MustCompile(`^LG-[0-9A-F]{8}-[0-9A-F]{8}-[0-9A-F]{8}$`)

// GenerateKey derives an opaque license key from the customer identity, the
// creation timestamp and the server secret. The derivation is one-way: keys
// are stored and looked up verbatim, never re-derived per request.
func GenerateKey(secret, email, company string, createdAt time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s|%d", email, company, createdAt.UnixNano())

	sum := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))

	return fmt.Sprintf("%s-%s-%s-%s", keyPrefix, sum[0:8], sum[8:16], sum[16:24])
}

// ValidKeyFormat is the cheap format check that runs before any store lookup.
func ValidKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}
