package scanning

import (
	"context"
	"fmt"
	"log/slog"
)

// Extraction is the outcome of one OCR attempt. Exactly one of Data or Reason is set.
type Extraction struct {
	Data   *ReceiptData
	Reason string
}

// OK reports whether the scanner produced data
func (e Extraction) OK() bool {
	return e.Data != nil
}

// Extract runs the scanner and folds every failure mode (missing scanner, transport
// errors, malformed model output, panics inside a backend) into a failed Extraction.
func Extract(ctx context.Context, scanner Scanner, pages []Page) (result Extraction) {
	if scanner == nil {
		return Extraction{Reason: "receipt scanning is not configured"}
	}
	if len(pages) == 0 {
		return Extraction{Reason: "no pages to scan"}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scanner panicked", "panic", r)
			result = Extraction{Reason: fmt.Sprintf("scanner failed: %v", r)}
		}
	}()

	data, err := scanner.ScanReceipt(ctx, pages)
	if err != nil {
		slog.Warn("Receipt extraction failed", "pages", len(pages), "error", err)
		return Extraction{Reason: err.Error()}
	}
	if data == nil {
		return Extraction{Reason: "scanner returned no data"}
	}
	return Extraction{Data: data}
}
