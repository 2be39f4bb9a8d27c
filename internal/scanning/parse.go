package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// dateFormats are tried in order when the model ignores the ISO instruction.
// Receipts are day-first; month-first only catches dates with a day above 12.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"01/02/2006",
}

// parseReceiptJSON parses the JSON object returned by a model
func parseReceiptJSON(text string) (*ReceiptData, error) {
	text = stripCodeFence(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var data ReceiptData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Date = normalizeDate(data.Date)
	data.MerchantName = strings.TrimSpace(data.MerchantName)
	data.Category = strings.TrimSpace(data.Category)
	data.DocumentNumber = strings.TrimSpace(data.DocumentNumber)

	if data.TotalAmount != nil && *data.TotalAmount < 0 {
		data.TotalAmount = nil
	}

	return &data, nil
}

// normalizeDate returns the date in YYYY-MM-DD form, or "" when it cannot be read
func normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, raw); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}

// stripCodeFence removes markdown code blocks if present
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
