package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danmuck/provectl/internal/account"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const TransactionIDPrefix = "at1"

// Execution is a provable run of one function.
type Execution struct {
	ProgramID    string   `json:"program"`
	Function     string   `json:"function"`
	PublicInputs []string `json:"public_inputs"`
	Outputs      []string `json:"outputs"`
	Proof        []byte   `json:"proof"`
	VKChecksum   string   `json:"vk_checksum"`
}

func (e *Execution) String() string {
	if e == nil {
		return ""
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(raw)
}

// ParseExecution decodes the form produced by Execution.String.
func ParseExecution(raw string) (*Execution, error) {
	var exec Execution
	if err := json.Unmarshal([]byte(raw), &exec); err != nil {
		return nil, fmt.Errorf("%w: decode execution: %v", ErrVerificationFailed, err)
	}
	return &exec, nil
}

// Checksum returns the hex blake2b-256 digest of b.
func Checksum(b []byte) string {
	sum := blake2b.Sum256(b)
	return fmt.Sprintf("%x", sum[:])
}

// TransferKind selects the record/public-balance direction of a transfer.
type TransferKind string

const (
	TransferPrivate         TransferKind = "private"
	TransferPublic          TransferKind = "public"
	TransferPrivateToPublic TransferKind = "private_to_public"
	TransferPublicToPrivate TransferKind = "public_to_private"
)

func ParseTransferKind(raw string) (TransferKind, bool) {
	switch k := TransferKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case TransferPrivate, TransferPublic, TransferPrivateToPublic, TransferPublicToPrivate:
		return k, true
	default:
		return "", false
	}
}

// RequiresRecord reports whether the amount is spent from a record.
func (k TransferKind) RequiresRecord() bool {
	return k == TransferPrivate || k == TransferPrivateToPublic
}

// Transaction is a signed, broadcastable payload.
type Transaction struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Owner     string          `json:"owner"`
	Body      json.RawMessage `json:"body"`
	Signature string          `json:"signature"`
}

// NewTransaction encodes body, signs it with key and derives the id.
func NewTransaction(key account.PrivateKey, txType string, body any) (*Transaction, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s body: %v", ErrEngineExecution, txType, err)
	}
	sum := blake2b.Sum256(raw)
	return &Transaction{
		ID:        TransactionIDPrefix + base58.Encode(sum[:]),
		Type:      txType,
		Owner:     key.Address().String(),
		Body:      raw,
		Signature: base58.Encode(key.Sign(raw)),
	}, nil
}

// Verify checks the id digest and owner signature.
func (t *Transaction) Verify() error {
	sum := blake2b.Sum256(t.Body)
	if t.ID != TransactionIDPrefix+base58.Encode(sum[:]) {
		return fmt.Errorf("%w: transaction id does not match body", ErrVerificationFailed)
	}
	owner, err := account.ParseAddress(t.Owner)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	sig, err := base58.Decode(t.Signature)
	if err != nil || !owner.Verify(t.Body, sig) {
		return fmt.Errorf("%w: bad transaction signature", ErrVerificationFailed)
	}
	return nil
}

func (t *Transaction) String() string {
	if t == nil {
		return ""
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return ""
	}
	return string(raw)
}

func ParseTransaction(raw string) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal([]byte(raw), &tx); err != nil {
		return nil, fmt.Errorf("engine: decode transaction: %w", err)
	}
	return &tx, nil
}
