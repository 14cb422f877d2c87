package schema

import (
	"testing"

	"github.com/danmuck/provectl/internal/protocol/tlv"
	"github.com/danmuck/provectl/internal/testutil/testlog"
)

func localExecuteFields() []tlv.Field {
	return []tlv.Field{
		tlv.String(FieldProgram, "program hello.aleo;"),
		tlv.String(FieldFunction, "hello"),
		tlv.String(FieldInput, "5u32"),
		tlv.String(FieldPrivateKey, "APrivateKey1abc"),
	}
}

func TestValidateLocalExecuteRequiredFields(t *testing.T) {
	testlog.Start(t)
	if err := Validate(MsgLocalExecute, localExecuteFields()); err != nil {
		t.Fatalf("validate local execute: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := append(localExecuteFields(), tlv.Field{ID: 9999, Type: tlv.TypeBytes, Value: []byte{0x01}})
	if err := Validate(MsgLocalExecute, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.String(FieldProgram, "program hello.aleo;")}
	err := Validate(MsgLocalExecute, fields)
	if err == nil {
		t.Fatalf("expected error")
	}
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldFunction || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldTransactionID, "at1xyz"),
		tlv.U64(FieldTransaction, 7),
	}
	err := Validate(MsgDeployTransaction, fields)
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	if ve.FieldID != FieldTransaction || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	if err := Validate(4242, nil); err == nil {
		t.Fatalf("expected unknown message_type error")
	}
	if IsRequest(MsgError) || !IsRequest(MsgJoin) || IsRequest(4242) {
		t.Fatalf("IsRequest classification wrong")
	}
}
