package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Upstream payloads are decoded with json.Decoder.UseNumber, so numbers
// arrive as json.Number. Older fixtures and hand-built maps may still
// carry float64 or plain ints, and some decimal fields come as strings.

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func getString(data map[string]any, key string) string {
	val, ok := data[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func getStringDefault(data map[string]any, key, def string) string {
	if s := getString(data, key); s != "" {
		return s
	}
	return def
}

// getID returns an identifier as a decimal string. Zero and negative ids are absent.
func getID(data map[string]any, key string) string {
	id, ok := getInt(data, key)
	if ok && id > 0 {
		return strconv.FormatInt(id, 10)
	}
	if s := strings.TrimSpace(getString(data, key)); s != "" && !ok {
		return s
	}
	return ""
}

func getInt(data map[string]any, key string) (int64, bool) {
	val, ok := data[key]
	if !ok || val == nil {
		return 0, false
	}
	switch v := val.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil && !math.IsInf(f, 0) {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getInt64(data map[string]any, key string) int64 {
	i, _ := getInt(data, key)
	return i
}

func getFloat(data map[string]any, key string) float64 {
	val, ok := data[key]
	if !ok || val == nil {
		return 0
	}
	switch v := val.(type) {
	case json.Number:
		f, _ := v.Float64()
		return f
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	}
	return 0
}

func getBool(data map[string]any, key string) bool {
	val, ok := data[key]
	if !ok || val == nil {
		return false
	}
	switch v := val.(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// getTime parses an ISO-8601 timestamp. Missing or unparseable values are the zero time.
func getTime(data map[string]any, key string) time.Time {
	s := strings.TrimSpace(getString(data, key))
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func getTimePtr(data map[string]any, key string) *time.Time {
	t := getTime(data, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

func getMap(data map[string]any, key string) map[string]any {
	if val, ok := data[key]; ok && val != nil {
		if m, ok := val.(map[string]any); ok {
			return m
		}
	}
	return nil
}

func getSlice(data map[string]any, key string) []map[string]any {
	val, ok := data[key]
	if !ok || val == nil {
		return nil
	}
	items, ok := val.([]any)
	if !ok {
		if typed, ok := val.([]map[string]any); ok {
			return typed
		}
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// getTags accepts either the comma separated string form or a list.
func getTags(data map[string]any, key string) string {
	val, ok := data[key]
	if !ok || val == nil {
		return ""
	}
	if list, ok := val.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return getString(data, key)
}

func marshalRaw(data map[string]any) json.RawMessage {
	b, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return b
}
