// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"bytes"
	"sort"

	"github.com/segmentio/encoding/json"
)

// Kind identifies the shape of a Value, mirroring the "null, boolean,
// number, string, array, object" closed set the JSON lexer/tree is
// assumed to expose (§1, "Out of scope").
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is the typed JSON tree node every codec reads from and writes to.
// It is the concrete stand-in this module provides for the externally
// assumed JSON lexer/tree (§1).
//
// Exactly one of the typed fields is meaningful, selected by Kind; Array
// and Object hold child Values so the tree can be walked without further
// type assertions.
type Value struct {
	Kind Kind

	Bool   bool
	Number float64
	// NumberRaw preserves the original numeric literal text (so integers
	// that overflow float64 precision, e.g. int64 handles, round-trip
	// exactly) when non-empty; callers that need exact integers should
	// prefer NumberRaw over Number.
	NumberRaw string
	Str       string
	Elems     []*Value
	// Fields preserves insertion order for deterministic marshal output;
	// Members is the order-independent lookup index.
	Fields  []string
	Members map[string]*Value
}

// Null returns the null Value.
func Null() *Value { return &Value{Kind: KindNull} }

// Bool returns a boolean Value.
func Bool(b bool) *Value { return &Value{Kind: KindBool, Bool: b} }

// Number returns a numeric Value.
func Number(f float64) *Value { return &Value{Kind: KindNumber, Number: f} }

// String returns a string Value.
func String(s string) *Value { return &Value{Kind: KindString, Str: s} }

// Array returns an array Value with the given elements.
func Array(elems ...*Value) *Value { return &Value{Kind: KindArray, Elems: elems} }

// Object returns an empty object Value.
func Object() *Value {
	return &Value{Kind: KindObject, Members: make(map[string]*Value)}
}

// IsNull reports whether v is nil or the JSON null value.
func (v *Value) IsNull() bool { return v == nil || v.Kind == KindNull }

// Set inserts or replaces a field on an object Value, preserving first
// insertion order in Fields.
func (v *Value) Set(key string, val *Value) {
	if v.Members == nil {
		v.Members = make(map[string]*Value)
	}
	if _, exists := v.Members[key]; !exists {
		v.Fields = append(v.Fields, key)
	}
	v.Members[key] = val
}

// Get looks up a field on an object Value; ok is false if v is not an
// object or the key is absent.
func (v *Value) Get(key string) (val *Value, ok bool) {
	if v == nil || v.Kind != KindObject {
		return nil, false
	}
	val, ok = v.Members[key]
	return val, ok
}

// Append adds an element to an array Value.
func (v *Value) Append(elem *Value) {
	v.Elems = append(v.Elems, elem)
}

// MarshalJSON implements json.Marshaler using the escaping rules of §6:
// '"' and '\\' are backslash-escaped, and control characters and all
// non-ASCII code points are escaped (\n, \r, \t in short form, the rest as
// \uXXXX) so the wire stays ASCII-clean.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf []byte
	buf = appendValue(buf, v)
	return buf, nil
}

func appendValue(buf []byte, v *Value) []byte {
	if v == nil {
		return append(buf, "null"...)
	}
	switch v.Kind {
	case KindNull:
		return append(buf, "null"...)
	case KindBool:
		if v.Bool {
			return append(buf, "true"...)
		}
		return append(buf, "false"...)
	case KindNumber:
		if v.NumberRaw != "" {
			return append(buf, v.NumberRaw...)
		}
		data, _ := json.Marshal(v.Number)
		return append(buf, data...)
	case KindString:
		return appendEscapedString(buf, v.Str)
	case KindArray:
		buf = append(buf, '[')
		for i, e := range v.Elems {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendValue(buf, e)
		}
		return append(buf, ']')
	case KindObject:
		buf = append(buf, '{')
		for i, k := range v.Fields {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendEscapedString(buf, k)
			buf = append(buf, ':')
			buf = appendValue(buf, v.Members[k])
		}
		return append(buf, '}')
	}
	return append(buf, "null"...)
}

const hexDigits = "0123456789abcdef"

// appendEscapedString writes s as a JSON string literal (§6 "String
// escaping"): '"' and '\\' become \" and \\, newline, carriage return and
// tab become \n, \r and \t, and any other rune outside 0x20..0x7E becomes
// \uXXXX (a surrogate pair above U+FFFF).
func appendEscapedString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			buf = append(buf, '\\', byte(r))
		case r >= 0x20 && r <= 0x7E:
			buf = append(buf, byte(r))
		case r == '\n':
			buf = append(buf, '\\', 'n')
		case r == '\r':
			buf = append(buf, '\\', 'r')
		case r == '\t':
			buf = append(buf, '\\', 't')
		case r <= 0xFFFF:
			buf = appendUnicodeEscape(buf, uint16(r))
		default:
			r -= 0x10000
			hi := uint16(0xD800 + (r >> 10))
			lo := uint16(0xDC00 + (r & 0x3FF))
			buf = appendUnicodeEscape(buf, hi)
			buf = appendUnicodeEscape(buf, lo)
		}
	}
	return append(buf, '"')
}

func appendUnicodeEscape(buf []byte, u uint16) []byte {
	buf = append(buf, '\\', 'u')
	buf = append(buf, hexDigits[(u>>12)&0xF], hexDigits[(u>>8)&0xF], hexDigits[(u>>4)&0xF], hexDigits[u&0xF])
	return buf
}

// UnmarshalJSON implements json.Unmarshaler by decoding into the
// segmentio decoder's generic interface{} representation and converting.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return errParse("decoding json tree: %v", err)
	}
	*v = *fromNative(raw)
	return nil
}

func fromNative(raw interface{}) *Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case json.Number:
		f, _ := t.Float64()
		return &Value{Kind: KindNumber, Number: f, NumberRaw: string(t)}
	case float64:
		return Number(t)
	case string:
		return String(t)
	case []interface{}:
		elems := make([]*Value, len(t))
		for i, e := range t {
			elems[i] = fromNative(e)
		}
		return &Value{Kind: KindArray, Elems: elems}
	case map[string]interface{}:
		obj := Object()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			obj.Set(k, fromNative(t[k]))
		}
		return obj
	default:
		return Null()
	}
}

// ParseValue decodes a JSON byte slice into a Value tree.
func ParseValue(data []byte) (*Value, error) {
	v := new(Value)
	if err := v.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return v, nil
}
