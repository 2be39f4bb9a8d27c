package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// maxScanPages caps how many PDF pages are sent to a model for one receipt
const maxScanPages = 4

// receiptScanPrompt is the shared prompt used by all LLM providers for scanning receipts
const receiptScanPrompt = `You are analyzing a receipt or invoice document, possibly spread over several page images. Carefully read all text and extract the following information:

1. **Merchant Name**: The store, restaurant, hotel or business that issued the receipt. Usually the largest text or in a header.

2. **Date**: The transaction, purchase or invoice date, converted to ISO 8601 format (YYYY-MM-DD).

3. **Total Amount**: The final total, grand total or amount due, as a number (e.g. 42.75 for 42,75 EUR).

4. **Category**: Exactly one of: "Meals", "Transportation", "Accommodation", "Subscriptions & Memberships", "Other Cost".

5. **Document Number**: The invoice, receipt or document number printed on the document, if any.

Return ONLY valid JSON in this exact format:
{
  "merchantName": "Store Name",
  "date": "YYYY-MM-DD",
  "totalAmount": 0.00,
  "category": "Meals",
  "documentNumber": "INV-001"
}

Important:
- The date must be in YYYY-MM-DD format
- totalAmount must be a number (not a string)
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// pdfToImages renders up to limit pages of a PDF (all pages when limit <= 0)
func pdfToImages(pdfData []byte, limit int) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if limit > 0 && n > limit {
		n = limit
	}
	if n == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	images := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", i+1, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// decodeImage decodes JPEG, PNG, GIF and HEIC/HEIF data
func decodeImage(imageData []byte, mimeType string) (image.Image, error) {
	// Check for HEIC/HEIF format (common on iPhones) - Go's standard image package doesn't support it
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// DecodePages decodes an attachment into one image per page.
// PDFs yield every page; any other supported format yields a single image.
func DecodePages(data []byte, contentType string) ([]image.Image, error) {
	mimeType := normalizeMimeType(contentType)
	if mimeType == "application/pdf" || isPDFFormat(data) {
		return pdfToImages(data, 0)
	}
	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, err
	}
	return []image.Image{img}, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files typically start with specific magic bytes
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	// ftyp box with brand 'heic', 'heif', 'mif1', 'msf1'
	if string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		if brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1" {
			return true
		}
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

func isPDFFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}

// preparePages converts every page to PNG, expanding PDFs into their rendered pages.
// The result is always image/png.
func preparePages(pages []Page) ([][]byte, error) {
	out := make([][]byte, 0, len(pages))
	for _, p := range pages {
		mimeType := normalizeMimeType(p.ContentType)
		if mimeType == "" {
			mimeType = "image/jpeg" // default
		}

		switch {
		case mimeType == "application/pdf" || isPDFFormat(p.Data):
			imgs, err := pdfToImages(p.Data, maxScanPages)
			if err != nil {
				return nil, fmt.Errorf("converting PDF to image: %w", err)
			}
			for _, img := range imgs {
				data, err := encodePNG(img)
				if err != nil {
					return nil, err
				}
				out = append(out, data)
			}
		case mimeType == "image/png" && !isHEICFormat(p.Data):
			out = append(out, p.Data)
		default:
			img, err := decodeImage(p.Data, mimeType)
			if err != nil {
				return nil, fmt.Errorf("converting image to PNG: %w", err)
			}
			data, err := encodePNG(img)
			if err != nil {
				return nil, err
			}
			out = append(out, data)
		}

		if len(out) >= maxScanPages {
			return out[:maxScanPages], nil
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no pages to scan")
	}
	return out, nil
}
