package models

import (
	"encoding/json"
	"sort"
)

// Params is one raw layer of element parameters as it arrives from a product
// definition, a view default layer or a UI command.
type Params map[string]any

// Has reports whether key is present, even with a nil value.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float returns the numeric value of key, accepting any JSON/YAML number type.
func (p Params) Float(key string) (float64, bool) {
	return toFloat(p[key])
}

// String returns the string value of key.
func (p Params) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Bool returns the boolean value of key.
func (p Params) Bool(key string) (bool, bool) {
	b, ok := p[key].(bool)
	return b, ok
}

// Map returns the nested object stored under key.
func (p Params) Map(key string) (Params, bool) {
	switch v := p[key].(type) {
	case Params:
		return v, true
	case map[string]any:
		return Params(v), true
	}
	return nil, false
}

// Clone returns a deep copy of nested objects and slices.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// Without returns a copy of p minus the given keys.
func (p Params) Without(keys ...string) Params {
	out := p.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Params:
		return t.Clone()
	case map[string]any:
		return Params(t).Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}

// ToFloat converts JSON, YAML and Go numeric values to float64.
func ToFloat(v any) (float64, bool) {
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ParamsOf converts any JSON-serializable value into a Params layer.
func ParamsOf(v any) (Params, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out Params
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
