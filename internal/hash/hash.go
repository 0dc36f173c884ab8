// Package hash provides content hashing for document deduplication.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Content returns the hex SHA-256 digest of the whitespace-normalized text.
// Normalization makes the hash insensitive to formatting differences, so two
// fetches of the same page that differ only in whitespace dedup to one row.
func Content(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
