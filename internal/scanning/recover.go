package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outcome is the result of recovering structured data from a response.
// It is either Parsed or Unparseable.
type Outcome interface {
	outcome()
}

// Parsed is a response that yielded an items array. Dropped counts items
// that failed validation.
type Parsed struct {
	PageType string
	Items    []Item
	Dropped  int
}

// Unparseable is a response with no usable items array.
type Unparseable struct {
	Raw string
	Err error
}

func (Parsed) outcome()      {}
func (Unparseable) outcome() {}

// Recover extracts the page object from a raw service response. It never
// fails: responses without a JSON object or a bill_items array come back as
// Unparseable.
func Recover(text string) Outcome {
	body := stripFences(strings.TrimSpace(text))

	obj, err := decodeObject(body)
	if err != nil {
		start := strings.Index(body, "{")
		end := strings.LastIndex(body, "}")
		if start == -1 || end <= start {
			return Unparseable{Raw: text, Err: fmt.Errorf("%w: no JSON object found in response", ErrParse)}
		}
		if obj, err = decodeObject(body[start : end+1]); err != nil {
			return Unparseable{Raw: text, Err: fmt.Errorf("%w: unmarshaling json: %w", ErrParse, err)}
		}
	}

	rawItems, ok := obj["bill_items"].([]any)
	if !ok {
		return Unparseable{Raw: text, Err: fmt.Errorf("%w: missing bill_items array", ErrParse)}
	}

	pageType, _ := obj["page_type"].(string)
	pageType = strings.TrimSpace(pageType)
	if pageType == "" {
		pageType = DefaultPageType
	}

	items, dropped := sanitizeItems(rawItems)
	return Parsed{PageType: pageType, Items: items, Dropped: dropped}
}

// Resolve turns an outcome into the page type and items to report. Pages
// without items always carry the default page type.
func Resolve(o Outcome) (string, []Item) {
	p, ok := o.(Parsed)
	if !ok || len(p.Items) == 0 {
		return DefaultPageType, []Item{}
	}
	return p.PageType, p.Items
}

func stripFences(text string) string {
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func decodeObject(text string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("response is not a JSON object")
	}
	return obj, nil
}
