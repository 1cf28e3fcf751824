package pattern

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// idHashLen is the number of hex characters kept from the error-text hash.
const idHashLen = 12

var (
	hexRunRe   = regexp.MustCompile(`[0-9a-f]{7,}`)
	digitRunRe = regexp.MustCompile(`[0-9]+`)
	spaceRunRe = regexp.MustCompile(`\s+`)
)

// NormalizeErrorText canonicalizes error text for identity hashing:
// lowercased, with hex identifiers (commit SHAs, image digests) and digit
// runs replaced by a placeholder, and whitespace collapsed. The same mistake
// made with a different concrete value normalizes to the same text.
func NormalizeErrorText(s string) string {
	s = strings.ToLower(s)
	s = hexRunRe.ReplaceAllString(s, "#")
	s = digitRunRe.ReplaceAllString(s, "#")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// DeriveID builds the deterministic pattern id from the tool, the category,
// and the normalized hash of the triggering error text. No central
// allocation: re-deriving from the same mistake yields the same id.
func DeriveID(tool string, category ErrorCategory, errorText string) string {
	sum := sha256.Sum256([]byte(NormalizeErrorText(errorText)))
	return fmt.Sprintf("%s:%s:%s", tool, category, hex.EncodeToString(sum[:])[:idHashLen])
}
