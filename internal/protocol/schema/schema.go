package schema

import (
	"fmt"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/provectl/internal/protocol/tlv"
)

// Message type IDs. Requests sit below 100, replies at 100 and above.
const (
	MsgLocalExecute          uint32 = 1
	MsgOnChainExecute        uint32 = 2
	MsgEstimateExecutionFee  uint32 = 3
	MsgEstimateDeploymentFee uint32 = 4
	MsgTransfer              uint32 = 5
	MsgDeploy                uint32 = 6
	MsgSplit                 uint32 = 7
	MsgJoin                  uint32 = 8
	MsgNewPrivateKey         uint32 = 9

	MsgOfflineExecutionCompleted uint32 = 101
	MsgExecutionTransaction      uint32 = 102
	MsgExecutionFeeEstimation    uint32 = 103
	MsgDeploymentFeeEstimation   uint32 = 104
	MsgTransferTransaction       uint32 = 105
	MsgDeployTransaction         uint32 = 106
	MsgSplitTransaction          uint32 = 107
	MsgJoinTransaction           uint32 = 108
	MsgPrivateKeyGenerated       uint32 = 109
	MsgError                     uint32 = 110
	MsgWorkerReady               uint32 = 111
)

// Field IDs.
const (
	FieldProgram    uint16 = 1
	FieldFunction   uint16 = 2
	FieldInput      uint16 = 3 // repeated
	FieldPrivateKey uint16 = 4
	FieldProgramRef uint16 = 5
	FieldHost       uint16 = 6

	FieldFee          uint16 = 10
	FieldFeeRecord    uint16 = 11
	FieldAmount       uint16 = 12
	FieldRecipient    uint16 = 13
	FieldTransferKind uint16 = 14
	FieldAmountRecord uint16 = 15
	FieldSplitAmount  uint16 = 16
	FieldRecord       uint16 = 17
	FieldRecordOne    uint16 = 18
	FieldRecordTwo    uint16 = 19

	FieldOutput        uint16 = 100 // repeated
	FieldExecution     uint16 = 101
	FieldTransactionID uint16 = 102
	FieldTransaction   uint16 = 103
	FieldCredits       uint16 = 104 // float64 bits
	FieldMicrocredits  uint16 = 105
	FieldAddress       uint16 = 106

	FieldMessage  uint16 = 200
	FieldWorkerID uint16 = 201
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

func str(id uint16) Requirement { return Requirement{ID: id, Type: tlv.TypeString} }

var transactionReply = []Requirement{str(FieldTransactionID), str(FieldTransaction)}

var feeReply = []Requirement{
	{FieldCredits, tlv.TypeU64},
	{FieldMicrocredits, tlv.TypeU64},
}

// Optional fields (host, records that only some kinds use, repeated
// inputs and outputs) are absent from these lists.
var requirements = map[uint32][]Requirement{
	MsgLocalExecute: {
		str(FieldProgram), str(FieldFunction), str(FieldPrivateKey),
	},
	MsgOnChainExecute: {
		str(FieldProgramRef), str(FieldFunction), str(FieldPrivateKey), str(FieldFee), str(FieldFeeRecord),
	},
	MsgEstimateExecutionFee: {
		str(FieldProgramRef), str(FieldFunction),
	},
	MsgEstimateDeploymentFee: {
		str(FieldProgram),
	},
	MsgTransfer: {
		str(FieldPrivateKey), str(FieldAmount), str(FieldRecipient), str(FieldTransferKind), str(FieldFee),
	},
	MsgDeploy: {
		str(FieldProgram), str(FieldPrivateKey), str(FieldFee),
	},
	MsgSplit: {
		str(FieldSplitAmount), str(FieldRecord), str(FieldPrivateKey),
	},
	MsgJoin: {
		str(FieldRecordOne), str(FieldRecordTwo), str(FieldFee), str(FieldPrivateKey),
	},
	MsgNewPrivateKey: {},

	MsgOfflineExecutionCompleted: {},
	MsgExecutionTransaction:      transactionReply,
	MsgExecutionFeeEstimation:    feeReply,
	MsgDeploymentFeeEstimation:   feeReply,
	MsgTransferTransaction:       transactionReply,
	MsgDeployTransaction:         transactionReply,
	MsgSplitTransaction:          transactionReply,
	MsgJoinTransaction:           transactionReply,
	MsgPrivateKeyGenerated:       {str(FieldPrivateKey), str(FieldAddress)},
	MsgError:                     {str(FieldMessage)},
	MsgWorkerReady:               {str(FieldWorkerID)},
}

// Known reports whether messageType has a schema.
func Known(messageType uint32) bool {
	_, ok := requirements[messageType]
	return ok
}

// IsRequest reports whether messageType is a request the worker accepts.
func IsRequest(messageType uint32) bool {
	return messageType < 100 && Known(messageType)
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	logs.Zerolog().Debug().Uint32("message_type", messageType).Int("fields", len(fields)).Msg("schema.Validate")
	reqs, ok := requirements[messageType]
	if !ok {
		logs.Zerolog().Warn().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			logs.Zerolog().Warn().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			logs.Zerolog().Warn().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
