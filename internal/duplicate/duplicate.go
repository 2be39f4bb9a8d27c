// Package duplicate flags scanned receipts that were probably accepted already.
//
// The check is advisory: a flagged candidate is shown to the user with a warning
// and may still be accepted.
package duplicate

import (
	"strings"
	"unicode"
)

// Candidate is a freshly extracted or manually entered receipt
type Candidate struct {
	Merchant       string
	Date           string // YYYY-MM-DD
	Amount         *int64 // minor units; nil when unknown
	DocumentNumber string
}

// Record is an already accepted expense
type Record struct {
	Merchant       string
	Date           string
	Amount         int64
	DocumentNumber string
}

// Normalize upper-cases s and strips every whitespace rune
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// IsDuplicate reports whether c looks like a re-scan of one of existing.
//
// A matching document number wins on its own. Without one, amount, date and
// merchant must all match. seen is an optional set of normalized document
// numbers accepted earlier; it may be nil.
func IsDuplicate(c Candidate, existing []Record, seen map[string]bool) bool {
	if doc := Normalize(c.DocumentNumber); doc != "" {
		if seen[doc] {
			return true
		}
		for _, e := range existing {
			if Normalize(e.DocumentNumber) == doc {
				return true
			}
		}
	}

	if c.Amount == nil {
		return false
	}

	merchant := Normalize(c.Merchant)
	date := Normalize(c.Date)
	for _, e := range existing {
		if e.Amount == *c.Amount && Normalize(e.Date) == date && Normalize(e.Merchant) == merchant {
			return true
		}
	}
	return false
}
