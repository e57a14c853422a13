package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Payload is a decoded request body keyed by field name.
// Values are whatever the caller decoded: JSON numbers, strings, Go ints, time.Time.
type Payload map[string]any

// Has reports whether field is present with a non-nil value.
func (p Payload) Has(field string) bool {
	v, ok := p[field]
	return ok && v != nil
}

// Int64 returns the field as an integer when it holds one.
func (p Payload) Int64(field string) (int64, bool) {
	v, ok := p[field]
	if !ok || v == nil {
		return 0, false
	}
	return toInt64(v)
}

// Time returns the field as a time when it holds a parseable date.
func (p Payload) Time(field string) (time.Time, bool) {
	v, ok := p[field]
	if !ok || v == nil {
		return time.Time{}, false
	}
	t, err := toTime(v)
	return t, err == nil
}

// String returns the field as a string when it holds one.
func (p Payload) String(field string) (string, bool) {
	v, ok := p[field]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// dateLayouts are tried in order when a date arrives as a string.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised date %q", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported date type %T", v)
	}
}
