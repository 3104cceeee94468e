package device

import (
	"fmt"
	"reflect"
)

// Payload is the raw key/value document returned by one poll cycle,
// exactly as decoded from the gateway response. Values are strings,
// numbers or nested maps.
type Payload map[string]any

// Set writes a raw field and reports whether the stored value changed.
func (p Payload) Set(key string, value any) bool {
	old, ok := p[key]
	if ok && reflect.DeepEqual(old, value) {
		return false
	}
	p[key] = value
	return true
}

// lookup returns the first non-nil value found under any of the alias
// keys, descending through nested maps when the raw value is itself a
// map (newer API versions wrap fields in per-field objects).
func (p Payload) lookup(keys []string) any {
	for _, key := range keys {
		value, ok := p[key]
		if !ok || value == nil {
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			if inner := Payload(nested).lookup(keys); inner != nil {
				return inner
			}
			continue
		}
		return value
	}
	return nil
}

// fieldString renders a raw field value as the string the vocabulary
// tables are matched against. Nil and empty values render as "".
func fieldString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
