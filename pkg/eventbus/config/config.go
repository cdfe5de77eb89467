package config

import (
	"fmt"
	"slices"
	"time"
)

// Config is a parsed settings document, or one section of it. Accessors
// return the default for a missing key and an ErrInvalidSettings error
// naming the full key path for a value of the wrong type, so a typo'd
// value fails loudly instead of silently falling back.
type Config struct {
	path string // dotted prefix of this section, "" at the root
	data map[string]any
}

// New creates a root Config from the given map.
// If data is nil, an empty Config is returned.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

func (c Config) keyPath(key string) string {
	if c.path == "" {
		return key
	}
	return c.path + "." + key
}

func (c Config) wrongType(key, want string, got any) error {
	return fmt.Errorf("%w: %s must be %s, got %T", ErrInvalidSettings, c.keyPath(key), want, got)
}

// String returns the string at key.
func (c Config) String(key, defaultVal string) (string, error) {
	v, ok := c.data[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal, c.wrongType(key, "a string", v)
	}
	return s, nil
}

// Duration returns the duration at key. Strings are parsed with
// time.ParseDuration; whole or fractional numbers are seconds.
func (c Config) Duration(key string, defaultVal time.Duration) (time.Duration, error) {
	v, ok := c.data[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	switch val := v.(type) {
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return defaultVal, fmt.Errorf("%w: %s: %v", ErrInvalidSettings, c.keyPath(key), err)
		}
		return d, nil
	case int:
		return time.Duration(val) * time.Second, nil
	case int64:
		return time.Duration(val) * time.Second, nil
	case float64:
		return time.Duration(val * float64(time.Second)), nil
	case time.Duration:
		return val, nil
	}
	return defaultVal, c.wrongType(key, "a duration", v)
}

// Bool returns the boolean at key.
func (c Config) Bool(key string, defaultVal bool) (bool, error) {
	v, ok := c.data[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal, c.wrongType(key, "a boolean", v)
	}
	return b, nil
}

// Int returns the integer at key. JSON numbers arrive as float64 and
// convert only when whole.
func (c Config) Int(key string, defaultVal int) (int, error) {
	v, ok := c.data[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		if val == float64(int(val)) {
			return int(val), nil
		}
	}
	return defaultVal, c.wrongType(key, "an integer", v)
}

// Section returns the nested map at key. A missing key yields an empty
// section. yaml.v3 may decode nested maps as map[any]any; non-string keys
// are reported.
func (c Config) Section(key string) (Config, error) {
	sub := Config{path: c.keyPath(key), data: map[string]any{}}
	v, ok := c.data[key]
	if !ok || v == nil {
		return sub, nil
	}
	switch val := v.(type) {
	case map[string]any:
		sub.data = val
		return sub, nil
	case map[any]any:
		for k, item := range val {
			s, ok := k.(string)
			if !ok {
				return sub, fmt.Errorf("%w: %s has non-string key %v", ErrInvalidSettings, sub.path, k)
			}
			sub.data[s] = item
		}
		return sub, nil
	}
	return sub, c.wrongType(key, "a section", v)
}

// Unknown returns the keys of c not listed in known, sorted, as full
// dotted paths.
func (c Config) Unknown(known ...string) []string {
	var out []string
	for k := range c.data {
		if !slices.Contains(known, k) {
			out = append(out, c.keyPath(k))
		}
	}
	slices.Sort(out)
	return out
}

// Has returns true if the key exists in the config.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}
