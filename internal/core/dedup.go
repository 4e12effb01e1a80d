package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// NormalizeDescription lowers the description, strips punctuation and
// collapses runs of whitespace so that "ACME *Corp  " and "acme corp"
// produce the same dedup key.
func NormalizeDescription(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// DedupKey derives the fingerprint used to detect the same economic
// event arriving via different sources (manual entry, recurring
// template, import). The source itself is deliberately not hashed:
// a rent payment entered by hand must collide with the same payment
// arriving from a bank import or a recurring materialization.
func DedupKey(date time.Time, amount Money, description string) string {
	payload := fmt.Sprintf("%s|%d|%s",
		date.Format("2006-01-02"), amount.Cents, NormalizeDescription(description))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
