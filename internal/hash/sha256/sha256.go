// Package sha256 fingerprints generated documents.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex SHA-256 of doc.
func Digest(doc string) string {
	sum := sha256.Sum256([]byte(doc))
	return hex.EncodeToString(sum[:])
}

// ETag returns a strong HTTP entity tag for doc.
func ETag(doc string) string {
	return `"` + Digest(doc) + `"`
}
