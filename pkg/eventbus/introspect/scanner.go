package introspect

import (
	"reflect"
	"strings"
)

// TagKey is the struct tag read by TagScanner.
const TagKey = "subscribe"

var handlersType = reflect.TypeFor[Handlers]()

// Scanner discovers the handlers one struct level declares. Scan must
// only report handlers declared at level itself, not at levels it embeds;
// the resolver walks embedded levels separately.
type Scanner interface {
	Scan(level reflect.Type) (*Table, error)
}

// ScannerFunc adapts a function to Scanner.
type ScannerFunc func(level reflect.Type) (*Table, error)

// Scan calls f(level).
func (f ScannerFunc) Scan(level reflect.Type) (*Table, error) {
	return f(level)
}

// TagScanner reads subscribe tags on Handlers fields. Each tag is a
// comma-separated list of Method or Method=policy entries.
type TagScanner struct{}

// Scan implements Scanner.
func (TagScanner) Scan(level reflect.Type) (*Table, error) {
	if level.Kind() != reflect.Struct {
		return NewTable(level, nil), nil
	}

	var descriptors []*Descriptor
	seen := make(map[string]bool)
	for i := range level.NumField() {
		f := level.Field(i)
		if f.Type != handlersType {
			continue
		}
		tag, ok := f.Tag.Lookup(TagKey)
		if !ok {
			return nil, &ConfigurationError{Type: level, Reason: "Handlers field " + f.Name + " has no " + TagKey + " tag"}
		}

		entries, err := parseTag(level, tag)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if seen[e.method] {
				return nil, &ConfigurationError{Type: level, Method: e.method, Reason: "declared more than once"}
			}
			seen[e.method] = true

			d, err := NewDescriptor(level, e.method, e.delivery)
			if err != nil {
				return nil, err
			}
			descriptors = append(descriptors, d)
		}
	}
	return NewTable(level, descriptors), nil
}

type tagEntry struct {
	method   string
	delivery Delivery
}

func parseTag(level reflect.Type, tag string) ([]tagEntry, error) {
	if strings.TrimSpace(tag) == "" {
		return nil, &ConfigurationError{Type: level, Reason: "empty " + TagKey + " tag"}
	}

	var entries []tagEntry
	for _, item := range strings.Split(tag, ",") {
		name, policy, hasPolicy := strings.Cut(strings.TrimSpace(item), "=")
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, " \t=") {
			return nil, &ConfigurationError{Type: level, Reason: "malformed " + TagKey + " tag entry " + `"` + item + `"`}
		}
		if hasPolicy && strings.Contains(policy, "=") {
			return nil, &ConfigurationError{Type: level, Method: name, Reason: "malformed delivery"}
		}

		d, err := ParseDelivery(policy)
		if err != nil {
			return nil, &ConfigurationError{Type: level, Method: name, Reason: "bad delivery", Err: err}
		}
		entries = append(entries, tagEntry{method: name, delivery: d})
	}
	return entries, nil
}
