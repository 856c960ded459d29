package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// lookup returns the value of the first key in keys present in m.
func lookup(m map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		if value, ok := m[key]; ok {
			return value, true
		}
	}
	return nil, false
}

// firstText returns the first value in m, tried in key order, that is
// non-empty once stringified and trimmed.
func firstText(m map[string]any, keys []string) (string, bool) {
	for _, key := range keys {
		value, ok := m[key]
		if !ok || !truthy(value) {
			continue
		}
		if text := strings.TrimSpace(stringify(value)); text != "" {
			return text, true
		}
	}
	return "", false
}

// firstMap returns the first value in m, tried in key order, that is an object.
func firstMap(m map[string]any, keys []string) (map[string]any, bool) {
	for _, key := range keys {
		if nested, ok := m[key].(map[string]any); ok {
			return nested, true
		}
	}
	return nil, false
}

func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprint(value)
	}
}

func truthy(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	case json.Number:
		f, err := value.Float64()
		return err != nil || f != 0
	case float64:
		return value != 0
	case int:
		return value != 0
	case int64:
		return value != 0
	case []any:
		return len(value) > 0
	case map[string]any:
		return len(value) > 0
	default:
		return true
	}
}

func asInt(v any) (int, bool) {
	switch value := v.(type) {
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return int(i), true
		}
		if f, err := value.Float64(); err == nil && !math.IsNaN(f) {
			return int(f), true
		}
	case float64:
		return int(value), true
	case int:
		return value, true
	case int64:
		return int(value), true
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i, true
		}
	}
	return 0, false
}
