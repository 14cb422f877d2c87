// Package wire maps worker requests and replies onto framed TLV payloads.
package wire

import (
	"bytes"
	"fmt"
	"math"

	"github.com/danmuck/provectl/internal/message"
	"github.com/danmuck/provectl/internal/protocol/frame"
	"github.com/danmuck/provectl/internal/protocol/schema"
	"github.com/danmuck/provectl/internal/protocol/tlv"
)

var tagTypes = map[message.Tag]uint32{
	message.TagLocalExecute:          schema.MsgLocalExecute,
	message.TagOnChainExecute:        schema.MsgOnChainExecute,
	message.TagEstimateExecutionFee:  schema.MsgEstimateExecutionFee,
	message.TagEstimateDeploymentFee: schema.MsgEstimateDeploymentFee,
	message.TagTransfer:              schema.MsgTransfer,
	message.TagDeploy:                schema.MsgDeploy,
	message.TagSplit:                 schema.MsgSplit,
	message.TagJoin:                  schema.MsgJoin,
	message.TagNewPrivateKey:         schema.MsgNewPrivateKey,

	message.TagOfflineExecutionCompleted: schema.MsgOfflineExecutionCompleted,
	message.TagExecutionTransaction:      schema.MsgExecutionTransaction,
	message.TagExecutionFeeEstimation:    schema.MsgExecutionFeeEstimation,
	message.TagDeploymentFeeEstimation:   schema.MsgDeploymentFeeEstimation,
	message.TagTransferTransaction:       schema.MsgTransferTransaction,
	message.TagDeployTransaction:         schema.MsgDeployTransaction,
	message.TagSplitTransaction:          schema.MsgSplitTransaction,
	message.TagJoinTransaction:           schema.MsgJoinTransaction,
	message.TagPrivateKeyGenerated:       schema.MsgPrivateKeyGenerated,
	message.TagError:                     schema.MsgError,
	message.TagWorkerReady:               schema.MsgWorkerReady,
}

var typeTags = func() map[uint32]message.Tag {
	out := make(map[uint32]message.Tag, len(tagTypes))
	for tag, mt := range tagTypes {
		out[mt] = tag
	}
	return out
}()

// MessageType returns the wire message type for tag.
func MessageType(tag message.Tag) (uint32, bool) {
	mt, ok := tagTypes[tag]
	return mt, ok
}

// TagOf returns the tag carried by a wire message type.
func TagOf(messageType uint32) (message.Tag, bool) {
	tag, ok := typeTags[messageType]
	return tag, ok
}

func EncodeRequestFrame(messageID uint64, req message.Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("wire: nil request")
	}
	var fields []tlv.Field
	switch r := req.(type) {
	case message.LocalExecute:
		fields = []tlv.Field{
			tlv.String(schema.FieldProgram, r.Program),
			tlv.String(schema.FieldFunction, r.Function),
			tlv.String(schema.FieldPrivateKey, r.PrivateKey),
		}
		fields = appendRepeated(fields, schema.FieldInput, r.Inputs)
	case message.OnChainExecute:
		fields = []tlv.Field{
			tlv.String(schema.FieldProgramRef, r.ProgramRef),
			tlv.String(schema.FieldFunction, r.Function),
			tlv.String(schema.FieldPrivateKey, r.PrivateKey),
			tlv.String(schema.FieldFee, r.Fee),
			tlv.String(schema.FieldFeeRecord, r.FeeRecord),
		}
		fields = appendRepeated(fields, schema.FieldInput, r.Inputs)
		fields = appendOptional(fields, schema.FieldHost, r.Host)
	case message.EstimateExecutionFee:
		fields = []tlv.Field{
			tlv.String(schema.FieldProgramRef, r.ProgramRef),
			tlv.String(schema.FieldFunction, r.Function),
		}
		fields = appendRepeated(fields, schema.FieldInput, r.Inputs)
		fields = appendOptional(fields, schema.FieldHost, r.Host)
	case message.EstimateDeploymentFee:
		fields = []tlv.Field{tlv.String(schema.FieldProgram, r.Program)}
		fields = appendOptional(fields, schema.FieldHost, r.Host)
	case message.Transfer:
		fields = []tlv.Field{
			tlv.String(schema.FieldPrivateKey, r.PrivateKey),
			tlv.String(schema.FieldAmount, r.Amount),
			tlv.String(schema.FieldRecipient, r.Recipient),
			tlv.String(schema.FieldTransferKind, r.TransferKind),
			tlv.String(schema.FieldFee, r.Fee),
		}
		fields = appendOptional(fields, schema.FieldAmountRecord, r.AmountRecord)
		fields = appendOptional(fields, schema.FieldFeeRecord, r.FeeRecord)
		fields = appendOptional(fields, schema.FieldHost, r.Host)
	case message.Deploy:
		fields = []tlv.Field{
			tlv.String(schema.FieldProgram, r.Program),
			tlv.String(schema.FieldPrivateKey, r.PrivateKey),
			tlv.String(schema.FieldFee, r.Fee),
		}
		fields = appendOptional(fields, schema.FieldFeeRecord, r.FeeRecord)
		fields = appendOptional(fields, schema.FieldHost, r.Host)
	case message.Split:
		fields = []tlv.Field{
			tlv.String(schema.FieldSplitAmount, r.SplitAmount),
			tlv.String(schema.FieldRecord, r.Record),
			tlv.String(schema.FieldPrivateKey, r.PrivateKey),
		}
		fields = appendOptional(fields, schema.FieldHost, r.Host)
	case message.Join:
		fields = []tlv.Field{
			tlv.String(schema.FieldRecordOne, r.RecordOne),
			tlv.String(schema.FieldRecordTwo, r.RecordTwo),
			tlv.String(schema.FieldFee, r.Fee),
			tlv.String(schema.FieldPrivateKey, r.PrivateKey),
		}
		fields = appendOptional(fields, schema.FieldFeeRecord, r.FeeRecord)
		fields = appendOptional(fields, schema.FieldHost, r.Host)
	case message.NewPrivateKey:
	default:
		return nil, fmt.Errorf("wire: unsupported request %T", req)
	}
	return encode(messageID, req.Tag(), 0, fields)
}

func DecodeRequest(f frame.Frame) (message.Request, error) {
	tag, ok := TagOf(f.Header.MessageType)
	if !ok || !schema.IsRequest(f.Header.MessageType) {
		return nil, fmt.Errorf("wire: message_type=%d is not a request", f.Header.MessageType)
	}
	fields, err := decodeFields(f)
	if err != nil {
		return nil, err
	}
	get := func(id uint16) string { return getString(fields, id) }

	switch tag {
	case message.TagLocalExecute:
		return message.LocalExecute{
			Program:    get(schema.FieldProgram),
			Function:   get(schema.FieldFunction),
			Inputs:     getRepeated(fields, schema.FieldInput),
			PrivateKey: get(schema.FieldPrivateKey),
		}, nil
	case message.TagOnChainExecute:
		return message.OnChainExecute{
			ProgramRef: get(schema.FieldProgramRef),
			Function:   get(schema.FieldFunction),
			Inputs:     getRepeated(fields, schema.FieldInput),
			PrivateKey: get(schema.FieldPrivateKey),
			Fee:        get(schema.FieldFee),
			FeeRecord:  get(schema.FieldFeeRecord),
			Host:       get(schema.FieldHost),
		}, nil
	case message.TagEstimateExecutionFee:
		return message.EstimateExecutionFee{
			ProgramRef: get(schema.FieldProgramRef),
			Function:   get(schema.FieldFunction),
			Inputs:     getRepeated(fields, schema.FieldInput),
			Host:       get(schema.FieldHost),
		}, nil
	case message.TagEstimateDeploymentFee:
		return message.EstimateDeploymentFee{
			Program: get(schema.FieldProgram),
			Host:    get(schema.FieldHost),
		}, nil
	case message.TagTransfer:
		return message.Transfer{
			PrivateKey:   get(schema.FieldPrivateKey),
			Amount:       get(schema.FieldAmount),
			Recipient:    get(schema.FieldRecipient),
			TransferKind: get(schema.FieldTransferKind),
			AmountRecord: get(schema.FieldAmountRecord),
			Fee:          get(schema.FieldFee),
			FeeRecord:    get(schema.FieldFeeRecord),
			Host:         get(schema.FieldHost),
		}, nil
	case message.TagDeploy:
		return message.Deploy{
			Program:    get(schema.FieldProgram),
			PrivateKey: get(schema.FieldPrivateKey),
			Fee:        get(schema.FieldFee),
			FeeRecord:  get(schema.FieldFeeRecord),
			Host:       get(schema.FieldHost),
		}, nil
	case message.TagSplit:
		return message.Split{
			SplitAmount: get(schema.FieldSplitAmount),
			Record:      get(schema.FieldRecord),
			PrivateKey:  get(schema.FieldPrivateKey),
			Host:        get(schema.FieldHost),
		}, nil
	case message.TagJoin:
		return message.Join{
			RecordOne:  get(schema.FieldRecordOne),
			RecordTwo:  get(schema.FieldRecordTwo),
			Fee:        get(schema.FieldFee),
			FeeRecord:  get(schema.FieldFeeRecord),
			PrivateKey: get(schema.FieldPrivateKey),
			Host:       get(schema.FieldHost),
		}, nil
	case message.TagNewPrivateKey:
		return message.NewPrivateKey{}, nil
	}
	return nil, fmt.Errorf("wire: unhandled request tag %s", tag)
}

// EncodeResponseFrame marks every reply with FlagIsResponse and failures
// additionally with FlagIsError.
func EncodeResponseFrame(messageID uint64, resp message.Response) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("wire: nil response")
	}
	flags := frame.FlagIsResponse
	var fields []tlv.Field
	switch r := resp.(type) {
	case message.ExecutionResult:
		fields = appendRepeated(fields, schema.FieldOutput, r.Outputs)
		fields = appendOptional(fields, schema.FieldExecution, r.Execution)
	case message.TransactionResult:
		fields = []tlv.Field{
			tlv.String(schema.FieldTransactionID, r.TransactionID),
			tlv.String(schema.FieldTransaction, r.Transaction),
		}
	case message.FeeEstimate:
		fields = []tlv.Field{
			tlv.U64(schema.FieldCredits, math.Float64bits(r.Credits)),
			tlv.U64(schema.FieldMicrocredits, r.Microcredits),
		}
	case message.PrivateKeyResult:
		fields = []tlv.Field{
			tlv.String(schema.FieldPrivateKey, r.PrivateKey),
			tlv.String(schema.FieldAddress, r.Address),
		}
	case message.Failure:
		flags |= frame.FlagIsError
		fields = []tlv.Field{tlv.String(schema.FieldMessage, r.Message)}
	case message.Ready:
		fields = []tlv.Field{tlv.String(schema.FieldWorkerID, r.WorkerID)}
	default:
		return nil, fmt.Errorf("wire: unsupported response %T", resp)
	}
	return encode(messageID, resp.Tag(), flags, fields)
}

func DecodeResponse(f frame.Frame) (message.Response, error) {
	tag, ok := TagOf(f.Header.MessageType)
	if !ok || schema.IsRequest(f.Header.MessageType) {
		return nil, fmt.Errorf("wire: message_type=%d is not a response", f.Header.MessageType)
	}
	if !f.Header.IsResponse() {
		return nil, fmt.Errorf("wire: message_type=%d missing response flag", f.Header.MessageType)
	}
	fields, err := decodeFields(f)
	if err != nil {
		return nil, err
	}

	switch tag {
	case message.TagOfflineExecutionCompleted:
		return message.ExecutionResult{
			Outputs:   getRepeated(fields, schema.FieldOutput),
			Execution: getString(fields, schema.FieldExecution),
		}, nil
	case message.TagExecutionFeeEstimation, message.TagDeploymentFeeEstimation:
		bits, err := getU64(fields, schema.FieldCredits)
		if err != nil {
			return nil, err
		}
		micro, err := getU64(fields, schema.FieldMicrocredits)
		if err != nil {
			return nil, err
		}
		return message.FeeEstimate{ResponseTag: tag, Credits: math.Float64frombits(bits), Microcredits: micro}, nil
	case message.TagPrivateKeyGenerated:
		return message.PrivateKeyResult{
			PrivateKey: getString(fields, schema.FieldPrivateKey),
			Address:    getString(fields, schema.FieldAddress),
		}, nil
	case message.TagError:
		if !f.Header.IsError() {
			return nil, fmt.Errorf("wire: error reply missing error flag")
		}
		return message.Failure{Message: getString(fields, schema.FieldMessage)}, nil
	case message.TagWorkerReady:
		return message.Ready{WorkerID: getString(fields, schema.FieldWorkerID)}, nil
	default:
		return message.TransactionResult{
			ResponseTag:   tag,
			TransactionID: getString(fields, schema.FieldTransactionID),
			Transaction:   getString(fields, schema.FieldTransaction),
		}, nil
	}
}

func encode(messageID uint64, tag message.Tag, flags uint32, fields []tlv.Field) ([]byte, error) {
	mt, ok := MessageType(tag)
	if !ok {
		return nil, fmt.Errorf("wire: no message type for tag %s", tag)
	}
	if err := tlv.CheckSizes(fields); err != nil {
		return nil, err
	}
	if err := schema.Validate(mt, fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: mt,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFields(f frame.Frame) ([]tlv.Field, error) {
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(f.Header.MessageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func appendOptional(fields []tlv.Field, id uint16, v string) []tlv.Field {
	if v == "" {
		return fields
	}
	return append(fields, tlv.String(id, v))
}

func appendRepeated(fields []tlv.Field, id uint16, values []string) []tlv.Field {
	for _, v := range values {
		fields = append(fields, tlv.String(id, v))
	}
	return fields
}

func getString(fields []tlv.Field, id uint16) string {
	f, _ := tlv.GetField(fields, id)
	return string(f.Value)
}

func getRepeated(fields []tlv.Field, id uint16) []string {
	found := tlv.GetFields(fields, id)
	if len(found) == 0 {
		return nil
	}
	out := make([]string, len(found))
	for i, f := range found {
		out[i] = string(f.Value)
	}
	return out
}

func getU64(fields []tlv.Field, id uint16) (uint64, error) {
	f, _ := tlv.GetField(fields, id)
	return tlv.U64FromBytes(f.Value)
}
