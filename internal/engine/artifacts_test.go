package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/provectl/internal/account"
)

func TestParseTransferKind(t *testing.T) {
	k, ok := ParseTransferKind(" Private_To_Public ")
	if !ok || k != TransferPrivateToPublic {
		t.Fatalf("parse: got %q ok=%v", k, ok)
	}
	if !k.RequiresRecord() {
		t.Fatalf("private_to_public must require a record")
	}
	if TransferPublic.RequiresRecord() || TransferPublicToPrivate.RequiresRecord() {
		t.Fatalf("public sources must not require a record")
	}
	if _, ok := ParseTransferKind("sideways"); ok {
		t.Fatalf("unknown kind accepted")
	}
}

func TestTransactionSignature(t *testing.T) {
	key, err := account.Generate(nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tx, err := NewTransaction(key, "split", map[string]any{"amount": 5})
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if !strings.HasPrefix(tx.ID, TransactionIDPrefix) {
		t.Fatalf("unexpected id %q", tx.ID)
	}
	if tx.Owner != key.Address().String() {
		t.Fatalf("owner %q want %q", tx.Owner, key.Address().String())
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}

	tampered := *tx
	tampered.Body = []byte(`{"amount":6}`)
	if err := tampered.Verify(); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("tampered body: got %v", err)
	}

	other, err := account.Generate(nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	stolen := *tx
	stolen.Owner = other.Address().String()
	if err := stolen.Verify(); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("swapped owner: got %v", err)
	}
}
