// Package params reads typed values out of the loosely typed parameter
// maps carried by jobs, conditions and triggers.
//
// Values arrive from YAML (int, string, bool), from JSON payloads
// (float64) and from HTTP hooks (string), so every accessor accepts all
// of these encodings. Failures are automation.ValidationError values whose
// messages name the offending parameter.
package params

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
)

// MaxInt32 bounds integer parameters that end up in timers.
const MaxInt32 = math.MaxInt32

// Map is a parameter map.
type Map = map[string]any

// Require fails if any key is absent or empty.
func Require(p Map, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if isEmpty(p[k]) {
			missing = append(missing, k)
		}
	}
	switch len(missing) {
	case 0:
		return nil
	case 1:
		return automation.NewValidationError("Missing required parameter: %s", missing[0])
	default:
		sort.Strings(missing)
		return automation.NewValidationError("Missing required parameters: %s", strings.Join(missing, ", "))
	}
}

// String returns a required string parameter. Numbers are formatted.
func String(p Map, key string) (string, error) {
	if err := Require(p, key); err != nil {
		return "", err
	}
	return toString(p[key]), nil
}

// StringOr returns an optional string parameter.
func StringOr(p Map, key, def string) string {
	if isEmpty(p[key]) {
		return def
	}
	return toString(p[key])
}

// Int returns a required integer within [lo, hi]. label names the
// parameter in the error, e.g. "Port Number".
func Int(p Map, key, label string, lo, hi int) (int, error) {
	if err := Require(p, key); err != nil {
		return 0, err
	}
	n, ok := toInt(p[key])
	if !ok || n < lo || n > hi {
		return 0, automation.NewValidationError("%s must be a number between %d and %d", label, lo, hi)
	}
	return n, nil
}

// IntOr returns an optional integer within [lo, hi], or def when absent.
func IntOr(p Map, key, label string, lo, hi, def int) (int, error) {
	if isEmpty(p[key]) {
		return def, nil
	}
	return Int(p, key, label, lo, hi)
}

// Port returns a required TCP/UDP port.
func Port(p Map, key string) (int, error) {
	return Int(p, key, "Port Number", 0, 65535)
}

// PortOr returns an optional port, or def when absent.
func PortOr(p Map, key string, def int) (int, error) {
	return IntOr(p, key, "Port Number", 0, 65535, def)
}

// Millis returns an optional duration given in milliseconds.
func Millis(p Map, key string, def time.Duration) (time.Duration, error) {
	if isEmpty(p[key]) {
		return def, nil
	}
	n, ok := toInt(p[key])
	if !ok || n < 0 || n > MaxInt32 {
		return 0, automation.NewValidationError("%s must be a number between 0 and %d", key, MaxInt32)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Bool returns an optional boolean. "true", "1" and non-zero numbers are true.
func Bool(p Map, key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return b
	case nil:
		return def
	default:
		n, ok := toInt(v)
		if !ok {
			return def
		}
		return n != 0
	}
}

// Strings returns an optional list of strings. A single string is split
// on commas.
func Strings(p Map, key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, toString(item))
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Ints returns an optional list of integers.
func Ints(p Map, key string) ([]int, error) {
	raw := p[key]
	if isEmpty(raw) {
		return nil, nil
	}
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []int:
		return v, nil
	default:
		for _, s := range Strings(p, key) {
			items = append(items, s)
		}
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, ok := toInt(item)
		if !ok {
			return nil, automation.NewValidationError("%s must be a list of numbers", key)
		}
		out = append(out, n)
	}
	return out, nil
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	default:
		return false
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int(x), true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, false
		}
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	default:
		return 0, false
	}
}
