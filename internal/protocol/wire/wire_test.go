package wire

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/provectl/internal/message"
	"github.com/danmuck/provectl/internal/protocol/frame"
	"github.com/danmuck/provectl/internal/protocol/schema"
	"github.com/danmuck/provectl/internal/protocol/tlv"
	"github.com/danmuck/provectl/internal/testutil/testlog"
)

func readBack(t *testing.T, b []byte) frame.Frame {
	t.Helper()
	f, err := frame.ReadFrame(bytes.NewReader(b), frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestEveryRequestTagHasMessageType(t *testing.T) {
	for _, tag := range message.RequestTags() {
		mt, ok := MessageType(tag)
		if !ok || !schema.IsRequest(mt) {
			t.Fatalf("%s: message type %v ok=%v", tag, mt, ok)
		}
		if back, ok := TagOf(mt); !ok || back != tag {
			t.Fatalf("%s: reverse lookup gave %s ok=%v", tag, back, ok)
		}
	}
}

func TestRequestRoundTripPreservesFields(t *testing.T) {
	testlog.Start(t)
	requests := []message.Request{
		message.LocalExecute{Program: "program hello.aleo;", Function: "hello", Inputs: []string{"5u32", "10u32"}, PrivateKey: "APrivateKey1x"},
		message.OnChainExecute{ProgramRef: "hello.aleo", Function: "hello", Inputs: []string{"1u32"}, PrivateKey: "k", Fee: "0.5", FeeRecord: "{rec}", Host: "http://h"},
		message.EstimateExecutionFee{ProgramRef: "hello.aleo", Function: "hello", Inputs: []string{"1u32", "2u32"}, Host: "http://h"},
		message.EstimateDeploymentFee{Program: "program a.aleo;"},
		message.Transfer{PrivateKey: "k", Amount: "1.5", Recipient: "aleo1x", TransferKind: "private", AmountRecord: "{a}", Fee: "0.1", FeeRecord: "{f}", Host: "http://h"},
		message.Deploy{Program: "program a.aleo;", PrivateKey: "k", Fee: "2", FeeRecord: "{f}"},
		message.Split{SplitAmount: "3", Record: "{r}", PrivateKey: "k", Host: "http://h"},
		message.Join{RecordOne: "{1}", RecordTwo: "{2}", Fee: "0.2", PrivateKey: "k"},
		message.NewPrivateKey{},
	}
	for i, req := range requests {
		b, err := EncodeRequestFrame(uint64(i+1), req)
		if err != nil {
			t.Fatalf("%s: encode: %v", req.Tag(), err)
		}
		f := readBack(t, b)
		if f.Header.MessageID != uint64(i+1) || f.Header.IsResponse() {
			t.Fatalf("%s: unexpected header %+v", req.Tag(), f.Header)
		}
		got, err := DecodeRequest(f)
		if err != nil {
			t.Fatalf("%s: decode: %v", req.Tag(), err)
		}
		if !reflect.DeepEqual(req, got) {
			t.Fatalf("%s: got %#v want %#v", req.Tag(), got, req)
		}
	}
}

func TestResponseRoundTripAndFlags(t *testing.T) {
	testlog.Start(t)
	responses := []message.Response{
		message.ExecutionResult{Outputs: []string{"15u32"}, Execution: `{"program":"hello.aleo"}`},
		message.ExecutionResult{},
		message.TransactionResult{ResponseTag: message.TagDeployTransaction, TransactionID: "at1abc", Transaction: "{}"},
		message.FeeEstimate{ResponseTag: message.TagExecutionFeeEstimation, Credits: message.FeeCredits(1_234_567), Microcredits: 1_234_567},
		message.PrivateKeyResult{PrivateKey: "APrivateKey1x", Address: "aleo1x"},
		message.Ready{WorkerID: "w-1"},
	}
	for _, resp := range responses {
		b, err := EncodeResponseFrame(9, resp)
		if err != nil {
			t.Fatalf("%s: encode: %v", resp.Tag(), err)
		}
		f := readBack(t, b)
		if !f.Header.IsResponse() || f.Header.IsError() {
			t.Fatalf("%s: unexpected flags %+v", resp.Tag(), f.Header)
		}
		got, err := DecodeResponse(f)
		if err != nil {
			t.Fatalf("%s: decode: %v", resp.Tag(), err)
		}
		if !reflect.DeepEqual(resp, got) {
			t.Fatalf("%s: got %#v want %#v", resp.Tag(), got, resp)
		}
	}

	b, err := EncodeResponseFrame(3, message.Failure{Message: "could not get verifying key"})
	if err != nil {
		t.Fatalf("encode failure: %v", err)
	}
	f := readBack(t, b)
	if !f.Header.IsError() {
		t.Fatalf("failure frame missing error flag")
	}
	got, err := DecodeResponse(f)
	if err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	if got != (message.Failure{Message: "could not get verifying key"}) {
		t.Fatalf("unexpected failure %#v", got)
	}
}

func TestDecodeRequestRejectsMissingRequiredField(t *testing.T) {
	testlog.Start(t)
	payload := tlv.EncodeFields([]tlv.Field{tlv.String(schema.FieldProgram, "program a.aleo;")})
	var buf bytes.Buffer
	if err := frame.WriteFrame(&buf, frame.Frame{
		Header:  frame.Header{MessageID: 1, MessageType: schema.MsgDeploy},
		Payload: payload,
	}, frame.DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	_, err := DecodeRequest(readBack(t, buf.Bytes()))
	var ve schema.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.FieldID != schema.FieldPrivateKey {
		t.Fatalf("missing field %v want %v", ve.FieldID, schema.FieldPrivateKey)
	}
}

func TestDecodeRequestRejectsReplyType(t *testing.T) {
	b, err := EncodeResponseFrame(1, message.Ready{WorkerID: "w"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRequest(readBack(t, b)); err == nil {
		t.Fatalf("reply frame decoded as request")
	}

	b, err = EncodeRequestFrame(1, message.NewPrivateKey{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeResponse(readBack(t, b)); err == nil {
		t.Fatalf("request frame decoded as response")
	}
}
