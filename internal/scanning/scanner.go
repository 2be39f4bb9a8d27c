package scanning

import "context"

// Page is one encoded page image (or PDF) handed to a scanner
type Page struct {
	Data        []byte
	ContentType string
}

// ReceiptData contains extracted information from a receipt.
// Every field is optional; models leave out what they cannot read.
type ReceiptData struct {
	MerchantName   string   `json:"merchantName"`
	Date           string   `json:"date"` // ISO 8601 format, empty when unknown
	TotalAmount    *float64 `json:"totalAmount"`
	Category       string   `json:"category"`
	DocumentNumber string   `json:"documentNumber"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt analyzes the pages of one receipt and extracts metadata
	ScanReceipt(ctx context.Context, pages []Page) (*ReceiptData, error)
	// Close closes the scanner and releases resources
	Close() error
}
