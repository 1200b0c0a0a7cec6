package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueKind tags the concrete type held by a Value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueNumber
	ValueString
	ValueSeq
	ValueMap
)

// Value is a tagged union replacing the free-form dictionaries the
// original system uses for evidence payloads, so hashing stays stable
// and every payload round-trips through a known shape. Construct one
// with the package-level helpers (Str, Num, Bool, ...) rather than the
// struct literal directly.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
	seq  []Value
	m    map[string]Value
}

func Null() Value               { return Value{kind: ValueNull} }
func Bool(v bool) Value         { return Value{kind: ValueBool, b: v} }
func Num(v float64) Value       { return Value{kind: ValueNumber, n: v} }
func Str(v string) Value        { return Value{kind: ValueString, s: v} }
func Seq(v ...Value) Value      { return Value{kind: ValueSeq, seq: v} }
func Map(v map[string]Value) Value {
	return Value{kind: ValueMap, m: v}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == ValueBool }
func (v Value) AsNumber() (float64, bool)  { return v.n, v.kind == ValueNumber }
func (v Value) AsString() (string, bool)   { return v.s, v.kind == ValueString }
func (v Value) AsSeq() ([]Value, bool)     { return v.seq, v.kind == ValueSeq }
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == ValueMap }

// Canonical renders the value as a deterministic string: map keys are
// sorted, so two Values built from the same logical content always
// produce the same canonical form regardless of construction order.
// This is the representation fed into hash computation.
func (v Value) Canonical() string {
	var sb strings.Builder
	v.writeCanonical(&sb)
	return sb.String()
}

func (v Value) writeCanonical(sb *strings.Builder) {
	switch v.kind {
	case ValueNull:
		sb.WriteString("null")
	case ValueBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case ValueNumber:
		sb.WriteString(strconv.FormatFloat(v.n, 'g', -1, 64))
	case ValueString:
		sb.WriteString(strconv.Quote(v.s))
	case ValueSeq:
		sb.WriteByte('[')
		for i, e := range v.seq {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.writeCanonical(sb)
		}
		sb.WriteByte(']')
	case ValueMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte(':')
			v.m[k].writeCanonical(sb)
		}
		sb.WriteByte('}')
	default:
		sb.WriteString(fmt.Sprintf("<unknown kind %d>", v.kind))
	}
}
