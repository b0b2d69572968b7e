package tool

import (
	"encoding/json"
	"strings"
)

// deniedFields is the fixed deny list of sensitive field names removed from
// every read-tool payload before it reaches the model. Matching is
// case-insensitive on the JSON field name.
var deniedFields = map[string]bool{
	"email":       true,
	"phone":       true,
	"mobile":      true,
	"ssn":         true,
	"taxid":       true,
	"vatid":       true,
	"bankaccount": true,
	"iban":        true,
	"creditcard":  true,
	"cardnumber":  true,
	"password":    true,
	"secret":      true,
	"apikey":      true,
	"token":       true,
	"accesstoken": true,
}

// Sanitize strips denied fields from v at every nesting depth and returns the
// cleaned value as generic JSON types (map[string]any, []any, primitives).
// Structs are flattened through their JSON encoding so the deny list applies
// to the wire names the model would see.
func Sanitize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return stripDenied(decoded)
}

func stripDenied(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if deniedFields[strings.ToLower(k)] {
				continue
			}
			out[k] = stripDenied(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = stripDenied(inner)
		}
		return out
	default:
		return v
	}
}
