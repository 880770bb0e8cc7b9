package testing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Args are the resolved arguments of a step as decoded from YAML.
type Args map[string]any

// ArgError reports a missing or malformed step argument.
type ArgError struct {
	Key     string
	Message string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("argument %q %s", e.Key, e.Message)
}

// String returns a required string argument.
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", &ArgError{Key: key, Message: "is required"}
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return "", &ArgError{Key: key, Message: "must not be empty"}
		}
		return s, nil
	case int, int64, float64, bool:
		return fmt.Sprint(s), nil
	}
	return "", &ArgError{Key: key, Message: fmt.Sprintf("must be a string, got %T", v)}
}

// StringOr returns an optional string argument.
func (a Args) StringOr(key, def string) (string, error) {
	if _, ok := a[key]; !ok {
		return def, nil
	}
	return a.String(key)
}

// Int returns an optional integer argument.
func (a Args) Int(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, &ArgError{Key: key, Message: fmt.Sprintf("must be an integer, got %v", n)}
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, &ArgError{Key: key, Message: fmt.Sprintf("must be an integer, got %q", n)}
		}
		return i, nil
	}
	return 0, &ArgError{Key: key, Message: fmt.Sprintf("must be an integer, got %T", v)}
}

// Bool returns an optional boolean argument.
func (a Args) Bool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, &ArgError{Key: key, Message: fmt.Sprintf("must be a boolean, got %q", b)}
		}
		return parsed, nil
	}
	return false, &ArgError{Key: key, Message: fmt.Sprintf("must be a boolean, got %T", v)}
}

// Duration returns an optional duration argument. Strings use time.ParseDuration;
// bare numbers are seconds.
func (a Args) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(d))
		if err != nil {
			return 0, &ArgError{Key: key, Message: fmt.Sprintf("must be a duration, got %q", d)}
		}
		return parsed, nil
	}
	return 0, &ArgError{Key: key, Message: fmt.Sprintf("must be a duration, got %T", v)}
}

// Strings returns an optional list of strings. A single string is split on whitespace.
func (a Args) Strings(key string) ([]string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case string:
		return strings.Fields(list), nil
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	}
	return nil, &ArgError{Key: key, Message: fmt.Sprintf("must be a list of strings, got %T", v)}
}

// Ints returns an optional list of integers.
func (a Args) Ints(key string) ([]int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		i, err := a.Int(key, 0)
		if err != nil {
			return nil, err
		}
		return []int{i}, nil
	}
	out := make([]int, 0, len(list))
	for i, item := range list {
		n, err := Args{key: item}.Int(key, 0)
		if err != nil {
			return nil, &ArgError{Key: fmt.Sprintf("%s[%d]", key, i), Message: "must be an integer"}
		}
		out = append(out, n)
	}
	return out, nil
}

// Map returns an optional mapping argument.
func (a Args) Map(key string) (map[string]any, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ArgError{Key: key, Message: fmt.Sprintf("must be a mapping, got %T", v)}
	}
	return m, nil
}
