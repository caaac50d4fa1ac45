package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const digestPrefix = "sha256:"

// ContentDigest returns a stable "sha256:<hex>" digest of a document text.
// Acceptance records carry the digest of the text that was accepted so the
// exact wording can be proven later.
func ContentDigest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return digestPrefix + hex.EncodeToString(sum[:])
}

// VerifyContentDigest reports whether digest was produced from content.
func VerifyContentDigest(content, digest string) bool {
	if !strings.HasPrefix(digest, digestPrefix) {
		return false
	}
	want := ContentDigest(content)
	return subtle.ConstantTimeCompare([]byte(want), []byte(digest)) == 1
}
