package models

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// CollectionTimestampField is stamped on every row with the snapshot fetch time.
	CollectionTimestampField = "collection_timestamp"
	// DefaultIdentityField identifies the asset a row describes.
	DefaultIdentityField = "symbol"
)

// Kind is the scalar type of a Value.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
)

// ParseKind validates a kind name read back from persisted data.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindString, KindNumber, KindBool, KindTime:
		return k, nil
	default:
		return "", fmt.Errorf("unknown value kind %q", s)
	}
}

// Value is a flat scalar held by a Row field.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

func String(s string) Value       { return Value{Kind: KindString, Str: s} }
func Number(f float64) Value      { return Value{Kind: KindNumber, Num: f} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func Timestamp(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// Float returns the numeric value and whether the value is a number.
func (v Value) Float() (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// Text renders the value losslessly: numbers in shortest round-trip form,
// times as RFC3339Nano.
func (v Value) Text() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	default:
		return v.Str
	}
}

// Interface returns the value as a plain Go scalar for JSON and spreadsheet encoders.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindTime:
		return v.Time
	default:
		return v.Str
	}
}

// Equal compares kind and payload; times compare by instant.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	case KindTime:
		return v.Time.Equal(o.Time)
	default:
		return v.Str == o.Str
	}
}

// ParseValue decodes text produced by Value.Text for the given kind.
func ParseValue(kind Kind, s string) (Value, error) {
	switch kind {
	case KindNumber:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse number %q: %w", s, err)
		}
		return Number(f), nil
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("parse bool %q: %w", s, err)
		}
		return Bool(b), nil
	case KindTime:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Value{}, fmt.Errorf("parse time %q: %w", s, err)
		}
		return Timestamp(t), nil
	case KindString:
		return String(s), nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %q", kind)
	}
}

// Field is one named scalar of a Row.
type Field struct {
	Name  string
	Value Value
}

// Row is a flat record. Field order is the order the fields were produced in.
type Row struct {
	Fields []Field
}

// Get looks up a field by name.
func (r Row) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Float returns the named field when it holds a number.
func (r Row) Float(name string) (float64, bool) {
	v, ok := r.Get(name)
	if !ok {
		return 0, false
	}
	return v.Float()
}

// Text returns the named field rendered as text.
func (r Row) Text(name string) (string, bool) {
	v, ok := r.Get(name)
	if !ok {
		return "", false
	}
	return v.Text(), true
}

// CollectedAt returns the collection timestamp of the row.
func (r Row) CollectedAt() (time.Time, bool) {
	v, ok := r.Get(CollectionTimestampField)
	if !ok || v.Kind != KindTime {
		return time.Time{}, false
	}
	return v.Time, true
}

// Equal reports whether both rows hold the same fields in the same order.
func (r Row) Equal(o Row) bool {
	if len(r.Fields) != len(o.Fields) {
		return false
	}
	for i := range r.Fields {
		if r.Fields[i].Name != o.Fields[i].Name || !r.Fields[i].Value.Equal(o.Fields[i].Value) {
			return false
		}
	}
	return true
}

// Map flattens the row into a name → scalar map.
func (r Row) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = f.Value.Interface()
	}
	return m
}
