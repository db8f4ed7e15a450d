package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// ArgumentError reports a missing or malformed tool argument.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

// SearchArgs are the validated arguments of search_web.
type SearchArgs struct {
	Query string
	// MaxResults is zero when the caller did not ask for a specific count.
	MaxResults int
}

// ParseSearchArgs validates search_web arguments.
func ParseSearchArgs(args map[string]any) (SearchArgs, error) {
	query, err := requiredString(args, "query")
	if err != nil {
		return SearchArgs{}, err
	}

	parsed := SearchArgs{Query: query}
	raw, ok := args["max_results"]
	if !ok || raw == nil {
		return parsed, nil
	}

	parsed.MaxResults, err = positiveInt("max_results", raw)
	if err != nil {
		return SearchArgs{}, err
	}
	return parsed, nil
}

// ParseWebsiteArgs validates get_website arguments and returns the URL.
func ParseWebsiteArgs(args map[string]any) (string, error) {
	return requiredString(args, "url")
}

func requiredString(args map[string]any, field string) (string, error) {
	raw, ok := args[field]
	if !ok || raw == nil {
		return "", &ArgumentError{Field: field, Reason: "is required"}
	}

	value, ok := raw.(string)
	if !ok {
		return "", &ArgumentError{Field: field, Reason: "must be a string"}
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", &ArgumentError{Field: field, Reason: "cannot be empty"}
	}
	return value, nil
}

func positiveInt(field string, raw any) (int, error) {
	var value int
	switch v := raw.(type) {
	case bool:
		return 0, &ArgumentError{Field: field, Reason: "must be a number"}
	case float64:
		n, err := integralFloat(field, v)
		if err != nil {
			return 0, err
		}
		value = n
	case json.Number:
		if n, err := v.Int64(); err == nil {
			value = saturateInt64(n)
			break
		}
		f, err := v.Float64()
		if err != nil && !math.IsInf(f, 0) {
			return 0, &ArgumentError{Field: field, Reason: "must be a number"}
		}
		if value, err = integralFloat(field, f); err != nil {
			return 0, err
		}
	default:
		if n, err := cast.ToInt64E(v); err == nil {
			value = saturateInt64(n)
			break
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, &ArgumentError{Field: field, Reason: "must be a number"}
		}
		if value, err = integralFloat(field, f); err != nil {
			return 0, err
		}
	}

	if value <= 0 {
		return 0, &ArgumentError{Field: field, Reason: "must be positive"}
	}
	return value, nil
}

// integralFloat converts a whole-number float, saturating at the int range so
// oversized requests are clamped later like any other large value.
func integralFloat(field string, v float64) (int, error) {
	if math.IsNaN(v) || (!math.IsInf(v, 0) && v != math.Trunc(v)) {
		return 0, &ArgumentError{Field: field, Reason: "must be an integer"}
	}
	switch {
	case v >= math.MaxInt:
		return math.MaxInt, nil
	case v <= math.MinInt:
		return math.MinInt, nil
	default:
		return int(v), nil
	}
}

func saturateInt64(n int64) int {
	switch {
	case n > math.MaxInt:
		return math.MaxInt
	case n < math.MinInt:
		return math.MinInt
	default:
		return int(n)
	}
}
