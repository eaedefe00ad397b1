package scanning

import "context"

// Scanner sends a page image and an instruction to a vision-capable
// text-extraction service and returns its raw text response.
type Scanner interface {
	// Scan analyzes a page image. It must honor ctx cancellation.
	Scan(ctx context.Context, image []byte, mimeType, instruction string) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}

// Item is a single bill line item as returned by the extraction service.
type Item struct {
	Name     string  `json:"item_name"`
	Quantity float64 `json:"item_quantity"`
	Rate     float64 `json:"item_rate"`
	Amount   float64 `json:"item_amount"`
}
