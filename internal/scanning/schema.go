package scanning

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const itemSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["item_name", "item_quantity", "item_rate", "item_amount"],
  "properties": {
    "item_name": {"type": "string", "minLength": 1},
    "item_quantity": {"type": "number"},
    "item_rate": {"type": "number"},
    "item_amount": {"type": "number"}
  }
}`

var itemSchema = jsonschema.MustCompileString("bill_item.json", itemSchemaJSON)

var numericFields = []string{"item_quantity", "item_rate", "item_amount"}

// currency symbols and separators the service tends to leave in numbers.
// Rs. must come before Rs.
var amountNoise = strings.NewReplacer("₹", "", "Rs.", "", "Rs", "", "INR", "", "$", "", ",", "", " ", "")

// sanitizeItems coerces numeric strings, validates each item against the
// item schema and drops the ones that do not match.
func sanitizeItems(raw []any) ([]Item, int) {
	items := make([]Item, 0, len(raw))
	dropped := 0
	for _, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		for _, k := range numericFields {
			if s, ok := m[k].(string); ok {
				if f, err := parseAmount(s); err == nil {
					m[k] = f
				}
			}
		}
		if s, ok := m["item_name"].(string); ok {
			m["item_name"] = strings.TrimSpace(s)
		}
		if err := itemSchema.Validate(m); err != nil {
			dropped++
			continue
		}
		items = append(items, Item{
			Name:     m["item_name"].(string),
			Quantity: m["item_quantity"].(float64),
			Rate:     m["item_rate"].(float64),
			Amount:   m["item_amount"].(float64),
		})
	}
	return items, dropped
}

// parseAmount accepts finite decimal numbers only; ParseFloat would also
// take "nan" and "inf", which cannot be encoded as JSON.
func parseAmount(s string) (float64, error) {
	f, err := strconv.ParseFloat(amountNoise.Replace(strings.TrimSpace(s)), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return f, nil
}
