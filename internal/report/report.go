// Package report lays out accepted expenses and their receipt images as a
// printable PDF, with a spreadsheet companion and a mail draft for submission.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Line is one expense row. Amount is in minor units (cents).
type Line struct {
	Date           string
	Merchant       string
	Category       string
	DocumentNumber string
	Amount         int64
}

// Attachment is one receipt file; a PDF attachment may span several pages
type Attachment struct {
	Label       string
	Data        []byte
	ContentType string
}

// Header is the claimant and trip information printed on the cover page
type Header struct {
	ProgramLabel  string
	ClaimantName  string
	ClaimantEmail string
	BankName      string
	IBAN          string
	SWIFT         string
	AccountNumber string
	Project       string
	Destination   string
	Purpose       string
	ReportDate    string
	Currency      string
	GeneratedAt   time.Time
}

// Input is everything one render needs
type Input struct {
	Number      int
	Lines       []Line
	Attachments []Attachment
	Header      Header
}

// CategoryTotal is the sum of one category's lines
type CategoryTotal struct {
	Category string `json:"category"`
	Amount   int64  `json:"amount"`
}

// FormatID zero-pads a report number to four digits
func FormatID(n int) string {
	return fmt.Sprintf("%04d", n)
}

// Filename returns the deterministic download name for a report, e.g. Report_0001.pdf
func Filename(n int, ext string) string {
	return fmt.Sprintf("Report_%s.%s", FormatID(n), strings.TrimPrefix(ext, "."))
}

// FormatAmount renders minor units with two decimals
func FormatAmount(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Total sums every line. Amounts are integral cents, so the sum is exact and order-independent.
func Total(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		total += l.Amount
	}
	return total
}

// Breakdown sums lines per category label, in order of first appearance
func Breakdown(lines []Line) []CategoryTotal {
	totals := make([]CategoryTotal, 0)
	index := make(map[string]int)
	for _, l := range lines {
		label := categoryLabel(l.Category)
		i, ok := index[label]
		if !ok {
			i = len(totals)
			index[label] = i
			totals = append(totals, CategoryTotal{Category: label})
		}
		totals[i].Amount += l.Amount
	}
	return totals
}

func categoryLabel(category string) string {
	label := strings.ToUpper(strings.TrimSpace(Transliterate(category)))
	if label == "" {
		return "OTHER COST"
	}
	return label
}

func displayText(s string) string {
	return strings.ToUpper(strings.TrimSpace(Transliterate(s)))
}

func (c Header) currency() string {
	if c.Currency == "" {
		return "EUR"
	}
	return c.Currency
}

func (c Header) programLabel() string {
	if c.ProgramLabel == "" {
		return "EXPENSE REIMBURSEMENT FORM"
	}
	return c.ProgramLabel
}
