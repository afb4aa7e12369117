package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseRecordJSON extracts and validates a receipt payload from model response
// text. The model may wrap the JSON in markdown fences or surrounding prose.
func parseRecordJSON(text string) (*ReceiptRecord, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrNoStructuredPayload)
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrNoStructuredPayload)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling payload: %w", err)
	}

	return recordFromPayload(payload)
}

// recordFromPayload validates the decoded payload shape and builds a record.
// The payload must carry an items sequence and a numeric total, and every item
// needs a non-empty description plus numeric quantity and price.
func recordFromPayload(payload map[string]any) (*ReceiptRecord, error) {
	rawItems, ok := payload["items"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing items sequence", ErrNoStructuredPayload)
	}
	total, ok := asNumber(payload["total"])
	if !ok {
		return nil, fmt.Errorf("%w: missing numeric total", ErrNoStructuredPayload)
	}

	items := make([]LineItem, 0, len(rawItems))
	for i, raw := range rawItems {
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is not an object", ErrNoStructuredPayload, i)
		}

		description, _ := fields["description"].(string)
		description = strings.TrimSpace(description)
		if description == "" {
			return nil, fmt.Errorf("%w: item %d has no description", ErrNoStructuredPayload, i)
		}
		quantity, ok := asNumber(fields["quantity"])
		if !ok {
			return nil, fmt.Errorf("%w: item %d has no numeric quantity", ErrNoStructuredPayload, i)
		}
		price, ok := asNumber(fields["price"])
		if !ok {
			return nil, fmt.Errorf("%w: item %d has no numeric price", ErrNoStructuredPayload, i)
		}

		items = append(items, LineItem{
			Description: description,
			Quantity:    quantity,
			Price:       price,
		})
	}

	return &ReceiptRecord{
		Items: mergeItemsByPrice(items),
		Total: total,
	}, nil
}

// mergeItemsByPrice combines items that share a price into one line item with
// their quantities summed. The prompt asks the model to do this merge itself,
// but model compliance is not deterministic, so it is enforced here.
// First-occurrence order is preserved.
func mergeItemsByPrice(items []LineItem) []LineItem {
	merged := make([]LineItem, 0, len(items))
	byPrice := make(map[float64]int, len(items))
	for _, item := range items {
		if i, ok := byPrice[item.Price]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		byPrice[item.Price] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
