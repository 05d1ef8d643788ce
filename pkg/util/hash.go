package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashConfig computes a stable SHA256 hash of a bridge config document.
// Used to detect no-op replacements and to name backups deterministically.
func HashConfig(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	h := sha256.Sum256(body)
	return hex.EncodeToString(h[:])
}
