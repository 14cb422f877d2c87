package program

import (
	"fmt"
	"math/big"
	"strings"
)

// Type is a primitive value type.
type Type string

const (
	TypeU8    Type = "u8"
	TypeU16   Type = "u16"
	TypeU32   Type = "u32"
	TypeU64   Type = "u64"
	TypeU128  Type = "u128"
	TypeField Type = "field"
)

var literalTypes = []Type{TypeField, TypeU128, TypeU16, TypeU32, TypeU64, TypeU8}

// ParseType resolves a type name.
func ParseType(raw string) (Type, bool) {
	switch t := Type(strings.TrimSpace(raw)); t {
	case TypeU8, TypeU16, TypeU32, TypeU64, TypeU128, TypeField:
		return t, true
	default:
		return "", false
	}
}

// Bits returns the bit width for unsigned types and 0 for field.
func (t Type) Bits() int {
	switch t {
	case TypeU8:
		return 8
	case TypeU16:
		return 16
	case TypeU32:
		return 32
	case TypeU64:
		return 64
	case TypeU128:
		return 128
	default:
		return 0
	}
}

// Unsigned reports whether t is a fixed-width unsigned integer.
func (t Type) Unsigned() bool {
	return t.Bits() > 0
}

// Max returns the largest value representable by an unsigned type.
func (t Type) Max() *big.Int {
	bits := t.Bits()
	if bits == 0 {
		return nil
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	return limit.Sub(limit, big.NewInt(1))
}

// Value is a typed literal such as "5u32" or "7field".
type Value struct {
	Type Type
	Int  *big.Int
}

// NewValue builds a value, checking unsigned bounds.
func NewValue(t Type, v *big.Int) (Value, error) {
	if v == nil || v.Sign() < 0 {
		return Value{}, fmt.Errorf("%w: negative or empty %s", ErrInvalidValue, t)
	}
	if limit := t.Max(); limit != nil && v.Cmp(limit) > 0 {
		return Value{}, fmt.Errorf("%w: %s overflows %s", ErrInvalidValue, v.String(), t)
	}
	return Value{Type: t, Int: new(big.Int).Set(v)}, nil
}

// ParseValue parses a literal of the form "<digits><type>". An optional
// ".public" or ".private" suffix is accepted and ignored.
func ParseValue(raw string) (Value, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "."+string(Public))
	s = strings.TrimSuffix(s, "."+string(Private))
	for _, t := range literalTypes {
		digits, ok := strings.CutSuffix(s, string(t))
		if !ok {
			continue
		}
		digits = strings.ReplaceAll(digits, "_", "")
		if digits == "" {
			break
		}
		n, ok := new(big.Int).SetString(digits, 10)
		if !ok {
			break
		}
		return NewValue(t, n)
	}
	return Value{}, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
}

func (v Value) String() string {
	if v.Int == nil {
		return "0" + string(v.Type)
	}
	return v.Int.String() + string(v.Type)
}

// Equal compares type and magnitude.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	if v.Int == nil || o.Int == nil {
		return v.Int == o.Int
	}
	return v.Int.Cmp(o.Int) == 0
}
