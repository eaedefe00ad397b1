// Package bill orchestrates line-item extraction for a whole document and
// exposes it over HTTP.
package bill

// LineItem is a single billed entry.
type LineItem struct {
	Name     string  `json:"item_name"`
	Quantity float64 `json:"item_quantity"`
	Rate     float64 `json:"item_rate"`
	Amount   float64 `json:"item_amount"`
}

// PageLineItems holds the items of one page. PageNo is the 1-based page
// number as a decimal string.
type PageLineItems struct {
	PageNo    string     `json:"page_no"`
	PageType  string     `json:"page_type"`
	BillItems []LineItem `json:"bill_items"`
}

// TokenUsage is a word-count estimate of extraction service usage.
type TokenUsage struct {
	TotalTokens  int `json:"total_tokens"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ExtractionData is the payload of a successful extraction.
type ExtractionData struct {
	PagewiseLineItems []PageLineItems `json:"pagewise_line_items"`
	TotalItemCount    int             `json:"total_item_count"`
}

// ExtractionResponse is the result of extracting one document. Data is set
// only on success, Error only on failure.
type ExtractionResponse struct {
	IsSuccess  bool            `json:"is_success"`
	TokenUsage TokenUsage      `json:"token_usage"`
	Data       *ExtractionData `json:"data"`
	Error      *string         `json:"error"`
}

func newSuccess(pages []PageLineItems, usage TokenUsage) *ExtractionResponse {
	count := 0
	for _, p := range pages {
		count += len(p.BillItems)
	}
	return &ExtractionResponse{
		IsSuccess:  true,
		TokenUsage: usage,
		Data: &ExtractionData{
			PagewiseLineItems: pages,
			TotalItemCount:    count,
		},
	}
}

func newFailure(message string) *ExtractionResponse {
	return &ExtractionResponse{
		IsSuccess: false,
		Error:     &message,
	}
}
