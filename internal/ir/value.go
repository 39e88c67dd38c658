package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Value is a sealed interface over the value types a field can hold.
// Only Null, Text, Bool, Int, Date and List implement it.
// There is deliberately no float variant.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null is the absence of a value (e.g. a time-slot selector with no choice).
type Null struct{}

func (Null) irValue() {}

// Text is free text.
type Text string

func (Text) irValue() {}

// Bool is a boolean (checkbox state).
type Bool bool

func (Bool) irValue() {}

// Int is an integer value. Always int64.
type Int int64

func (Int) irValue() {}

// Date is a calendar day in ISO form "2006-01-02".
// Construct with ParseDate or NewDate so the layout is guaranteed.
type Date string

func (Date) irValue() {}

// List is an ordered sequence of values (e.g. derived time-slot options).
type List []Value

func (List) irValue() {}

// DateLayout is the only accepted textual form of a Date.
const DateLayout = "2006-01-02"

// NewDate creates a Date from a time, discarding the clock portion.
func NewDate(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// ParseDate parses s as a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: want %s", s, DateLayout)
	}
	return NewDate(t), nil
}

// Time returns the date at midnight UTC.
// Returns the zero time if the Date was not built by ParseDate/NewDate.
func (d Date) Time() time.Time {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// TypeName returns the variant name of v ("null", "text", "bool", "int",
// "date", "list"). A nil Value reports "null".
func TypeName(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case Text:
		return "text"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Date:
		return "date"
	case List:
		return "list"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// OrNull returns Null{} for a nil Value and v otherwise.
func OrNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}

// Truthy reports whether v counts as "on" for boolean-driven reactions.
// Bool is itself; Null is false; Text and List are true when non-empty;
// Int is true when non-zero; a Date is always true.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return false
	case Bool:
		return bool(val)
	case Text:
		return val != ""
	case Int:
		return val != 0
	case Date:
		return true
	case List:
		return len(val) > 0
	default:
		return false
	}
}

// Equal reports whether two values are the same variant with the same content.
func Equal(a, b Value) bool {
	a, b = OrNull(a), OrNull(b)
	la, aIsList := a.(List)
	lb, bIsList := b.(List)
	if aIsList || bIsList {
		if !aIsList || !bIsList || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !Equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// FromNative converts a decoded YAML/JSON value into a Value.
// Integral float64 values (YAML/JSON numbers) become Int; other floats are
// rejected. time.Time becomes Date. nil becomes Null.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return Text(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("floats are not allowed in values: %v", val)
		}
		return Int(int64(val)), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not allowed in values: %s", val)
		}
		return Int(n), nil
	case time.Time:
		return NewDate(val), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			item, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = item
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// ToNative converts a Value into plain Go values suitable for text output
// and YAML/JSON encoding (Date becomes its string form).
func ToNative(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Text:
		return string(val)
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Date:
		return string(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToNative(elem)
		}
		return out
	default:
		return nil
	}
}

// valueEnvelope is the tagged storage form of a Value.
// Tagging keeps Date and Text distinguishable after a round trip.
type valueEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// EncodeValue serializes v as a tagged canonical JSON envelope, e.g.
// {"type":"date","value":"2024-05-01"}.
func EncodeValue(v Value) ([]byte, error) {
	v = OrNull(v)
	var payload []byte
	switch val := v.(type) {
	case Null:
		return []byte(`{"type":"null"}`), nil
	case List:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			elemBytes, err := EncodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			buf.Write(elemBytes)
		}
		buf.WriteByte(']')
		payload = buf.Bytes()
	default:
		var err error
		payload, err = MarshalCanonical(val)
		if err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	typeBytes, err := marshalCanonicalString(TypeName(v))
	if err != nil {
		return nil, err
	}
	buf.Write(typeBytes)
	buf.WriteString(`,"value":`)
	buf.Write(payload)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeValue parses a tagged envelope produced by EncodeValue.
func DecodeValue(data []byte) (Value, error) {
	var env valueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}

	switch env.Type {
	case "null":
		return Null{}, nil
	case "text":
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, fmt.Errorf("decode text: %w", err)
		}
		return Text(s), nil
	case "bool":
		var b bool
		if err := json.Unmarshal(env.Value, &b); err != nil {
			return nil, fmt.Errorf("decode bool: %w", err)
		}
		return Bool(b), nil
	case "int":
		dec := json.NewDecoder(bytes.NewReader(env.Value))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return nil, fmt.Errorf("decode int: %w", err)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("decode int: %w", err)
		}
		return Int(i), nil
	case "date":
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, fmt.Errorf("decode date: %w", err)
		}
		return ParseDate(s)
	case "list":
		var raw []json.RawMessage
		if err := json.Unmarshal(env.Value, &raw); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		list := make(List, len(raw))
		for i, elem := range raw {
			item, err := DecodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = item
		}
		return list, nil
	default:
		return nil, fmt.Errorf("decode value: unknown type %q", env.Type)
	}
}

// MarshalJSON renders Null as JSON null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}
