package sink

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Settings is the free form sink configuration from the config file.
type Settings map[string]interface{}

// String returns a string setting or def.
func (s Settings) String(key, def string) string {
	switch v := s[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case nil:
	default:
		return fmt.Sprint(v)
	}
	return def
}

// Require returns a non-empty string setting or a configuration error.
func (s Settings) Require(key string) (string, error) {
	v := s.String(key, "")
	if v == "" {
		return "", fmt.Errorf("sink setting %q is required", key)
	}
	return v, nil
}

// Int returns an integer setting or def.
func (s Settings) Int(key string, def int) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Bool returns a boolean setting or def.
func (s Settings) Bool(key string, def bool) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Duration returns a duration setting ("5s" or seconds) or def.
func (s Settings) Duration(key string, def time.Duration) time.Duration {
	switch v := s[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// Strings returns a list setting given either as a list or as a comma
// separated string.
func (s Settings) Strings(key string) []string {
	var out []string
	switch v := s[key].(type) {
	case []string:
		out = append(out, v...)
	case []interface{}:
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
