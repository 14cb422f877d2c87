package groth

import (
	"fmt"
	"sort"
	"strings"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/provectl/internal/account"
	"github.com/danmuck/provectl/internal/engine"
)

// Fee schedule in microcredits.
const (
	feePerConstraint  uint64 = 1_000
	feePerPublicValue uint64 = 10_000
	feeExecutionBase  uint64 = 100_000
	feePerByte        uint64 = 1_000
	feePerFunction    uint64 = 50_000
)

func (e *Engine) EstimateExecutionFee(p engine.ExecutionFeeParams) (uint64, error) {
	pk, err := provingKeyFor(p.Keys, p.Program.ID(), p.Function)
	if err != nil {
		return 0, err
	}
	fn, _, err := e.run(p.Program, p.Function, p.Inputs)
	if err != nil {
		return 0, err
	}
	publicValues := uint64(len(fn.PublicInputs()) + len(fn.Outputs))
	fee := feePerConstraint*uint64(pk.ccs.GetNbConstraints()) + feePerPublicValue*publicValues + feeExecutionBase
	logs.Zerolog().Debug().
		Str("program_id", p.Program.ID()).
		Str("function", p.Function).
		Uint64("microcredits", fee).
		Msg("groth.Engine.EstimateExecutionFee")
	return fee, nil
}

func (e *Engine) EstimateDeploymentFee(p engine.DeploymentFeeParams) (uint64, error) {
	size := uint64(len(p.Program.Source()))
	for _, id := range p.Program.Imports() {
		src, ok := p.Imports[id]
		if !ok {
			return 0, fmt.Errorf("%w: missing import %s", engine.ErrEngineExecution, id)
		}
		size += uint64(len(src))
	}
	fee := feePerByte*size + feePerFunction*uint64(len(p.Program.FunctionNames()))
	return fee, nil
}

type executionBody struct {
	Program   string            `json:"program"`
	Function  string            `json:"function"`
	Execution *engine.Execution `json:"execution"`
	Fee       uint64            `json:"fee"`
	FeeRecord string            `json:"fee_record,omitempty"`
}

func (e *Engine) BuildExecution(p engine.ExecutionTxParams) (*engine.Transaction, error) {
	key, err := signer(p.PrivateKey)
	if err != nil {
		return nil, err
	}
	if p.Fee == 0 {
		return nil, fmt.Errorf("%w: execution fee must be positive", engine.ErrEngineExecution)
	}
	fn, tr, err := e.run(p.Program, p.Function, p.Inputs)
	if err != nil {
		return nil, err
	}
	exec, err := e.prove(p.Program, fn, tr, p.Keys)
	if err != nil {
		return nil, err
	}
	return engine.NewTransaction(key, "execute", executionBody{
		Program:   p.Program.ID(),
		Function:  fn.Name,
		Execution: exec,
		Fee:       p.Fee,
		FeeRecord: p.FeeRecord,
	})
}

type deploymentBody struct {
	Program   string   `json:"program"`
	Source    string   `json:"source"`
	Imports   []string `json:"imports,omitempty"`
	Functions []string `json:"functions"`
	Fee       uint64   `json:"fee"`
	FeeRecord string   `json:"fee_record,omitempty"`
}

func (e *Engine) BuildDeployment(p engine.DeploymentTxParams) (*engine.Transaction, error) {
	key, err := signer(p.PrivateKey)
	if err != nil {
		return nil, err
	}
	if p.Fee == 0 {
		return nil, fmt.Errorf("%w: deployment fee must be positive", engine.ErrEngineExecution)
	}
	imports := p.Program.Imports()
	for _, id := range imports {
		if _, ok := p.Imports[id]; !ok {
			return nil, fmt.Errorf("%w: missing import %s", engine.ErrEngineExecution, id)
		}
	}
	sort.Strings(imports)
	return engine.NewTransaction(key, "deploy", deploymentBody{
		Program:   p.Program.ID(),
		Source:    p.Program.Source(),
		Imports:   imports,
		Functions: p.Program.FunctionNames(),
		Fee:       p.Fee,
		FeeRecord: p.FeeRecord,
	})
}

type transferBody struct {
	Kind         engine.TransferKind `json:"kind"`
	Recipient    string              `json:"recipient"`
	Amount       uint64              `json:"amount"`
	AmountRecord string              `json:"amount_record,omitempty"`
	Fee          uint64              `json:"fee"`
	FeeRecord    string              `json:"fee_record,omitempty"`
}

func (e *Engine) BuildTransfer(p engine.TransferParams) (*engine.Transaction, error) {
	key, err := signer(p.PrivateKey)
	if err != nil {
		return nil, err
	}
	recipient, err := account.ParseAddress(p.Recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient: %v", engine.ErrEngineExecution, err)
	}
	if _, ok := engine.ParseTransferKind(string(p.Kind)); !ok {
		return nil, fmt.Errorf("%w: unknown transfer kind %q", engine.ErrEngineExecution, p.Kind)
	}
	if p.Kind.RequiresRecord() && strings.TrimSpace(p.AmountRecord) == "" {
		return nil, fmt.Errorf("%w: %s transfer requires an amount record", engine.ErrEngineExecution, p.Kind)
	}
	if p.Amount == 0 {
		return nil, fmt.Errorf("%w: transfer amount must be positive", engine.ErrEngineExecution)
	}
	return engine.NewTransaction(key, "transfer_"+string(p.Kind), transferBody{
		Kind:         p.Kind,
		Recipient:    recipient.String(),
		Amount:       p.Amount,
		AmountRecord: p.AmountRecord,
		Fee:          p.Fee,
		FeeRecord:    p.FeeRecord,
	})
}

type splitBody struct {
	Record string `json:"record"`
	Amount uint64 `json:"amount"`
}

func (e *Engine) BuildSplit(p engine.SplitParams) (*engine.Transaction, error) {
	key, err := signer(p.PrivateKey)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Record) == "" {
		return nil, fmt.Errorf("%w: split requires a record", engine.ErrEngineExecution)
	}
	if p.Amount == 0 {
		return nil, fmt.Errorf("%w: split amount must be positive", engine.ErrEngineExecution)
	}
	return engine.NewTransaction(key, "split", splitBody{Record: p.Record, Amount: p.Amount})
}

type joinBody struct {
	Records   [2]string `json:"records"`
	Fee       uint64    `json:"fee"`
	FeeRecord string    `json:"fee_record,omitempty"`
}

func (e *Engine) BuildJoin(p engine.JoinParams) (*engine.Transaction, error) {
	key, err := signer(p.PrivateKey)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.RecordOne) == "" || strings.TrimSpace(p.RecordTwo) == "" {
		return nil, fmt.Errorf("%w: join requires two records", engine.ErrEngineExecution)
	}
	return engine.NewTransaction(key, "join", joinBody{
		Records:   [2]string{p.RecordOne, p.RecordTwo},
		Fee:       p.Fee,
		FeeRecord: p.FeeRecord,
	})
}

func signer(raw string) (account.PrivateKey, error) {
	key, err := account.ParsePrivateKey(raw)
	if err != nil {
		return account.PrivateKey{}, fmt.Errorf("%w: %v", engine.ErrEngineExecution, err)
	}
	return key, nil
}
