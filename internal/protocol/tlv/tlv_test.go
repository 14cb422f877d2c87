package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		String(1, "hello.aleo"),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestRepeatedFieldsKeepOrder(t *testing.T) {
	in := []Field{String(3, "5u32"), String(1, "x"), String(3, "10u32"), String(3, "")}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	got := GetFields(out, 3)
	if len(got) != 3 || string(got[0].Value) != "5u32" || string(got[1].Value) != "10u32" || len(got[2].Value) != 0 {
		t.Fatalf("repeated fields: %+v", got)
	}
	if len(GetFields(out, 77)) != 0 {
		t.Fatalf("expected no fields for absent id")
	}
}

func TestScalarHelpers(t *testing.T) {
	v, err := U64FromBytes(U64(1, 1_500_000).Value)
	if err != nil || v != 1_500_000 {
		t.Fatalf("u64: %d %v", v, err)
	}
	b, err := BoolFromBytes(Bool(2, true).Value)
	if err != nil || !b {
		t.Fatalf("bool: %v %v", b, err)
	}
	if _, err := BoolFromBytes([]byte{2}); err == nil {
		t.Fatalf("expected invalid bool error")
	}
	if err := MustType(String(1, "x"), TypeU64); err == nil {
		t.Fatalf("expected type mismatch")
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}
