// Package normalize cleans raw backend output into presentable results.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the shape of a backend value.
type Kind int

const (
	KindScalar Kind = iota
	KindList
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is a backend result: a scalar, an ordered list or a keyed mapping.
// The shape is fixed when the value is built and never inspected again at runtime.
type Value struct {
	kind   Kind
	text   string
	float  bool
	items  []Value
	keys   []string
	fields map[string]Value
}

var decimalPattern = regexp.MustCompile(`^[+-]?[0-9]+\.[0-9]*$`)

// Scalar builds a textual scalar. Text scalars are never zero-trimmed.
func Scalar(text string) Value {
	return Value{kind: KindScalar, text: text}
}

// Number builds a floating scalar from its decimal text, keeping the digits as given.
func Number(text string) Value {
	return Value{kind: KindScalar, text: text, float: true}
}

// Float builds a floating scalar from f.
func Float(f float64) Value {
	return Number(strconv.FormatFloat(f, 'f', -1, 64))
}

// List builds an ordered list value.
func List(items ...Value) Value {
	return Value{kind: KindList, items: items}
}

// Mapping builds a keyed value. Keys are kept in sorted order.
func Mapping(fields map[string]Value) Value {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Value{kind: KindMapping, keys: keys, fields: fields}
}

// FromAny converts a decoded JSON value into a Value. This is the only place a
// backend payload's shape is examined.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Scalar("None")
	case json.Number:
		if strings.ContainsAny(t.String(), ".eE") {
			return Number(t.String())
		}
		return Scalar(t.String())
	case float64:
		return Float(t)
	case string:
		return Scalar(t)
	case bool:
		return Scalar(strconv.FormatBool(t))
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, FromAny(item))
		}
		return List(items...)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromAny(item)
		}
		return Mapping(fields)
	default:
		return Scalar(fmt.Sprint(t))
	}
}

// Kind returns the value's shape.
func (v Value) Kind() Kind { return v.kind }

// IsFloat reports whether v is a floating scalar.
func (v Value) IsFloat() bool { return v.kind == KindScalar && v.float }

// Items returns the elements of a list value.
func (v Value) Items() []Value { return v.items }

// Field returns a mapping entry.
func (v Value) Field(key string) (Value, bool) {
	f, ok := v.fields[key]
	return f, ok
}

// TrimZeroes strips redundant trailing zeroes from every floating scalar inside v.
func (v Value) TrimZeroes() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.items))
		for i, item := range v.items {
			items[i] = item.TrimZeroes()
		}
		return List(items...)
	case KindMapping:
		fields := make(map[string]Value, len(v.fields))
		for k, item := range v.fields {
			fields[k] = item.TrimZeroes()
		}
		return Mapping(fields)
	default:
		if v.float {
			return Number(TrimFloatZeroes(v.text))
		}
		return v
	}
}

// String renders v for display.
func (v Value) String() string {
	switch v.kind {
	case KindList:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMapping:
		return "{" + strings.Join(v.entries(), ", ") + "}"
	default:
		return v.text
	}
}

// Strings flattens v into result lines: a list yields one line per element and a
// mapping one "key = value" line per entry.
func (v Value) Strings() []string {
	switch v.kind {
	case KindList:
		out := make([]string, 0, len(v.items))
		for _, item := range v.items {
			out = append(out, item.String())
		}
		return out
	case KindMapping:
		return v.entries()
	default:
		return []string{v.text}
	}
}

func (v Value) entries() []string {
	out := make([]string, 0, len(v.keys))
	for _, k := range v.keys {
		out = append(out, k+" = "+v.fields[k].String())
	}
	return out
}

// TrimFloatZeroes strips redundant trailing zero digits from a decimal string.
// Non-decimal input is returned unchanged.
func TrimFloatZeroes(s string) string {
	if !decimalPattern.MatchString(s) {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "+0" {
		return "0"
	}
	return s
}

// FormatNumber prints f without a fractional part when it is integral.
func FormatNumber(f float64) string {
	if f == float64(int64(f)) && f > -1e15 && f < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
