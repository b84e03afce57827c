package config

import (
	"sort"
	"time"
)

// Config is a read-only view over the node-type specific fields of a node
// config. Accessors fall back to the given default when a key is missing
// or holds a value of the wrong type.
type Config struct {
	data map[string]any
}

// New wraps data. A nil map yields an empty Config.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

func lookup[T any](c Config, key string) (T, bool) {
	var zero T
	v, ok := c.data[key]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// String returns the string at key.
func (c Config) String(key, defaultVal string) string {
	if s, ok := lookup[string](c, key); ok {
		return s
	}
	return defaultVal
}

// Bool returns the bool at key.
func (c Config) Bool(key string, defaultVal bool) bool {
	if b, ok := lookup[bool](c, key); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer at key. Whole float64 values, as produced by
// JSON decoding, are accepted.
func (c Config) Int(key string, defaultVal int) int {
	switch v := c.data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return defaultVal
}

// Float returns the number at key as float64.
func (c Config) Float(key string, defaultVal float64) float64 {
	switch v := c.data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return defaultVal
}

// Duration returns the duration at key. Strings are parsed with
// time.ParseDuration and bare numbers are seconds.
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	switch v := c.data[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return defaultVal
}

// Strings returns the string list at key. A list holding anything other
// than strings yields defaultVal.
func (c Config) Strings(key string, defaultVal []string) []string {
	switch v := c.data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			out = append(out, s)
		}
		return out
	}
	return defaultVal
}

// Sub returns the nested object at key as a Config, or an empty Config.
func (c Config) Sub(key string) Config {
	if m, ok := lookup[map[string]any](c, key); ok {
		return New(m)
	}
	return New(nil)
}

// Any returns the raw value at key.
func (c Config) Any(key string, defaultVal any) any {
	if v, ok := c.data[key]; ok {
		return v
	}
	return defaultVal
}

// Has reports whether key is present.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Keys returns the keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of c with key set to value. c is not modified.
func (c Config) With(key string, value any) Config {
	out := make(map[string]any, len(c.data)+1)
	for k, v := range c.data {
		out[k] = v
	}
	out[key] = value
	return Config{data: out}
}

// Raw returns the underlying map. It must not be modified.
func (c Config) Raw() map[string]any {
	return c.data
}
