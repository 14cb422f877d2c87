// Package engine defines the call contract between the worker and the
// execution engine that synthesizes keys, runs functions, and builds
// transactions.
//
// All operations are blocking and CPU bound. They take no context: once an
// engine call starts it runs to completion or failure.
package engine

import (
	"errors"
	"io"

	"github.com/danmuck/provectl/internal/account"
	"github.com/danmuck/provectl/internal/program"
)

var (
	ErrEngineExecution    = errors.New("engine: execution failed")
	ErrVerificationFailed = errors.New("engine: verification failed")
)

// ProvingKey is an opaque engine artifact.
type ProvingKey interface {
	io.WriterTo
}

// VerifyingKey is an opaque engine artifact.
type VerifyingKey interface {
	io.WriterTo
}

// KeyPair is replaced wholesale on resynthesis, never mutated.
type KeyPair struct {
	ProvingKey   ProvingKey
	VerifyingKey VerifyingKey
}

// Imports maps imported program ids to their sources.
type Imports map[string]string

type ExecuteParams struct {
	Program    *program.Program
	Function   string
	Inputs     []string
	Prove      bool
	Imports    Imports
	Keys       KeyPair
	PrivateKey string
}

type ExecuteResult struct {
	Outputs []string
	// Execution is nil when the function ran without proving.
	Execution *Execution
}

type ExecutionFeeParams struct {
	PrivateKey account.PrivateKey
	Program    *program.Program
	Function   string
	Inputs     []string
	Host       string
	Imports    Imports
	Keys       KeyPair
}

type DeploymentFeeParams struct {
	Program *program.Program
	Imports Imports
}

type ExecutionTxParams struct {
	Program    *program.Program
	Function   string
	Inputs     []string
	PrivateKey string
	Fee        uint64
	FeeRecord  string
	Host       string
	Imports    Imports
	Keys       KeyPair
}

type DeploymentTxParams struct {
	Program    *program.Program
	PrivateKey string
	Fee        uint64
	FeeRecord  string
	Host       string
	Imports    Imports
}

type TransferParams struct {
	PrivateKey   string
	Amount       uint64
	Recipient    string
	Kind         TransferKind
	AmountRecord string
	Fee          uint64
	FeeRecord    string
	Host         string
}

type SplitParams struct {
	PrivateKey string
	Amount     uint64
	Record     string
	Host       string
}

type JoinParams struct {
	PrivateKey string
	RecordOne  string
	RecordTwo  string
	Fee        uint64
	FeeRecord  string
	Host       string
}

// Engine is the execution engine contract. Fees are in microcredits.
type Engine interface {
	SynthesizeKeyPair(prog *program.Program, function string) (KeyPair, error)
	ExecuteOffline(p ExecuteParams) (ExecuteResult, error)
	VerifyExecution(exec *Execution, prog *program.Program, function string, vk VerifyingKey) error
	EstimateExecutionFee(p ExecutionFeeParams) (uint64, error)
	EstimateDeploymentFee(p DeploymentFeeParams) (uint64, error)
	BuildExecution(p ExecutionTxParams) (*Transaction, error)
	BuildDeployment(p DeploymentTxParams) (*Transaction, error)
	BuildTransfer(p TransferParams) (*Transaction, error)
	BuildSplit(p SplitParams) (*Transaction, error)
	BuildJoin(p JoinParams) (*Transaction, error)
	NewPrivateKey() (account.PrivateKey, error)
}
