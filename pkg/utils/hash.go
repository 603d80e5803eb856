package utils

import (
	"crypto/sha256"
	"fmt"
)

// Fingerprint returns a stable hex digest of the input. Used for rate-limit
// keys and client identifiers so raw IPs never reach Redis or SQLite.
func Fingerprint(input string) string {
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash[:16])
}
