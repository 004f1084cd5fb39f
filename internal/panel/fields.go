package panel

import (
	"encoding/json"
	"strconv"
)

func formatFields(fields []Field, res map[string]any) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Name] = formatValue(res[f.Name], f.Default)
	}
	return out
}

func formatValue(v any, fallback string) string {
	switch val := v.(type) {
	case nil:
		return fallback
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fallback
		}
		return string(b)
	}
}

func stringField(res map[string]any, key string) string {
	s, _ := res[key].(string)
	return s
}
