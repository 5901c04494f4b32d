// Package fingerprint derives stable content digests for dedup decisions.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash computes the dedup fingerprint for an intel item from its article
// title and source label. The inputs are case-folded and whitespace-collapsed
// first, so syndicated copies of the same story hash identically even when
// their URLs differ. Empty input normalizes to the bare "|" separator and
// yields its SHA-256 digest, a fixed, well-defined sentinel.
func Hash(title, source string) string {
	normalized := normalize(title) + "|" + normalize(source)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ArticleHash computes the content hash stored on raw article rows,
// keyed on competitor, title, and URL.
func ArticleHash(competitorID, title, url string) string {
	sum := sha256.Sum256([]byte(competitorID + ":" + title + ":" + url))
	return hex.EncodeToString(sum[:])
}

// normalize lowercases and collapses all runs of whitespace to single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
