// ABOUTME: URL-safe random identifier generation for router entities
// ABOUTME: Entity ids are 21 chars; token ids are "mcpr_" plus 43 chars

package ids

import (
	"crypto/rand"
	"strings"
)

// alphabet is the URL-safe character set used for all generated ids.
// 64 characters, so each random byte maps to exactly one character.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

const (
	// EntityIDLength is the length of server/rule/approval/workspace ids.
	EntityIDLength = 21

	// TokenPrefix is the literal prefix of every bearer token id.
	TokenPrefix = "mcpr_"

	// TokenRandomLength is the length of the random portion of a token id.
	TokenRandomLength = 43
)

// New returns a new 21-character URL-safe random id.
func New() string {
	return random(EntityIDLength)
}

// NewToken returns a new bearer token id: "mcpr_" followed by 43 random
// URL-safe characters. The id itself is the bearer credential.
func NewToken() string {
	return TokenPrefix + random(TokenRandomLength)
}

// IsTokenID reports whether s has the bearer token id format. It checks the
// prefix, length, and character set only; it does not consult any store.
func IsTokenID(s string) bool {
	if !strings.HasPrefix(s, TokenPrefix) {
		return false
	}
	rest := s[len(TokenPrefix):]
	if len(rest) != TokenRandomLength {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if !strings.ContainsRune(alphabet, rune(rest[i])) {
			return false
		}
	}
	return true
}

// random returns n characters drawn uniformly from alphabet.
func random(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic("ids: reading random bytes: " + err.Error())
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}
