package expense

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-report/internal/duplicate"
	"github.com/zombor/expense-report/internal/report"
)

// DateLayout is the calendar date format used everywhere in the API
const DateLayout = "2006-01-02"

var (
	// ErrNotFound is returned when an expense, attachment or report does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidExpense is returned when submitted fields fail validation
	ErrInvalidExpense = errors.New("invalid expense")
	// ErrNoExpenses is returned when a report is requested for an empty list
	ErrNoExpenses = errors.New("no expenses to report")
	// ErrScanInProgress is returned while another scan is running
	ErrScanInProgress = errors.New("a scan is already in progress")
)

// Category is one of the fixed expense categories
type Category string

const (
	CategoryMeals          Category = "Meals"
	CategoryTransportation Category = "Transportation"
	CategoryAccommodation  Category = "Accommodation"
	CategorySubscriptions  Category = "Subscriptions & Memberships"
	CategoryOther          Category = "Other Cost"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryMeals,
	CategoryTransportation,
	CategoryAccommodation,
	CategorySubscriptions,
	CategoryOther,
}

// categoryHints maps words a model tends to return onto a category
var categoryHints = []struct {
	word     string
	category Category
}{
	{"meal", CategoryMeals},
	{"food", CategoryMeals},
	{"restaurant", CategoryMeals},
	{"transport", CategoryTransportation},
	{"taxi", CategoryTransportation},
	{"travel", CategoryTransportation},
	{"hotel", CategoryAccommodation},
	{"lodging", CategoryAccommodation},
	{"accommodation", CategoryAccommodation},
	{"subscription", CategorySubscriptions},
	{"membership", CategorySubscriptions},
}

// LookupCategory matches s against the category names, ignoring case
func LookupCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// ParseCategory maps free text onto a category; anything unrecognised is Other Cost
func ParseCategory(s string) Category {
	if c, ok := LookupCategory(s); ok {
		return c
	}
	lower := strings.ToLower(s)
	for _, h := range categoryHints {
		if strings.Contains(lower, h.word) {
			return h.category
		}
	}
	return CategoryOther
}

// ParseAmount converts decimal text such as "12.50", "12,50", "1,234.50" or
// "1.234,50" to cents.
//
// When both separators appear the last one is the decimal point. A separator
// that repeats is a thousands separator.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(canonicalAmount(s))
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %s is negative", s)
	}
	return d.Round(2).Shift(2).IntPart(), nil
}

func canonicalAmount(s string) string {
	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
		}
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// AmountFromFloat rounds a float amount to cents
func AmountFromFloat(f float64) int64 {
	return decimal.NewFromFloat(f).Round(2).Shift(2).IntPart()
}

// Attachment is a stored receipt file
type Attachment struct {
	Filename    string `json:"filename"` // storage path
	Name        string `json:"name"`     // original upload name
	ContentType string `json:"content_type"`
}

// Expense is an accepted expense record
type Expense struct {
	ID             string       `json:"id"`
	Seq            uint64       `json:"seq"`
	Date           string       `json:"date"` // YYYY-MM-DD
	MerchantName   string       `json:"merchant_name"`
	Category       Category     `json:"category"`
	Amount         int64        `json:"amount"` // Amount in cents
	DocumentNumber string       `json:"document_number,omitempty"`
	Attachments    []Attachment `json:"attachments"`
	Duplicate      bool         `json:"duplicate"` // flagged as a likely duplicate when accepted
	CreatedAt      time.Time    `json:"created_at"`
}

func (e *Expense) record() duplicate.Record {
	return duplicate.Record{
		Merchant:       e.MerchantName,
		Date:           e.Date,
		Amount:         e.Amount,
		DocumentNumber: e.DocumentNumber,
	}
}

func (e *Expense) line() report.Line {
	return report.Line{
		Date:           e.Date,
		Merchant:       e.MerchantName,
		Category:       string(e.Category),
		DocumentNumber: e.DocumentNumber,
		Amount:         e.Amount,
	}
}

// Input is an expense as the user reviews it, before it is accepted.
// Amount is decimal text so drafts round-trip through a form unchanged.
type Input struct {
	Date           string       `json:"date"`
	MerchantName   string       `json:"merchant_name"`
	Category       string       `json:"category"`
	Amount         string       `json:"amount"`
	DocumentNumber string       `json:"document_number"`
	Attachments    []Attachment `json:"attachments"`
}

// candidate builds the duplicate check input; an unreadable amount counts as absent
func (in Input) candidate() duplicate.Candidate {
	c := duplicate.Candidate{
		Merchant:       strings.TrimSpace(in.MerchantName),
		Date:           strings.TrimSpace(in.Date),
		DocumentNumber: in.DocumentNumber,
	}
	if amount, err := ParseAmount(in.Amount); err == nil {
		c.Amount = &amount
	}
	return c
}

// Draft is the result of a scan, ready for review
type Draft struct {
	Input
	Duplicate bool   `json:"duplicate"`
	Extracted bool   `json:"extracted"`
	Notice    string `json:"notice,omitempty"`
}

// ReportRecord is the stored metadata of a generated report
type ReportRecord struct {
	ID              string                     `json:"id"` // zero-padded number
	Number          int                        `json:"number"`
	Total           int64                      `json:"total"` // Total in cents
	Rows            int                        `json:"rows"`
	Pages           int                        `json:"pages"`
	AttachmentPages int                        `json:"attachment_pages"`
	Breakdown       []report.CategoryTotal     `json:"breakdown"`
	Skipped         []report.SkippedAttachment `json:"skipped,omitempty"`
	PDFFile         string                     `json:"pdf_file"`
	XLSXFile        string                     `json:"xlsx_file"`
	ExpenseIDs      []string                   `json:"expense_ids"`
	Mail            report.MailDraft           `json:"mail"`
	MailTo          string                     `json:"mailto"`
	CreatedAt       time.Time                  `json:"created_at"`
}
