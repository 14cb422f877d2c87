// Package message defines the worker protocol: a closed set of request
// variants, their typed responses, and the single-string failure envelope.
package message

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRequest      = errors.New("message: invalid request")
	ErrInvalidNumericInput = errors.New("message: invalid numeric input")
)

// Request is implemented only by the variants in this package.
type Request interface {
	Tag() Tag
	Validate() error
	isRequest()
}

type LocalExecute struct {
	Program    string
	Function   string
	Inputs     []string
	PrivateKey string
}

func (LocalExecute) Tag() Tag   { return TagLocalExecute }
func (LocalExecute) isRequest() {}

func (r LocalExecute) Validate() error {
	return requireFields(r.Tag(),
		field{"program", r.Program},
		field{"function", r.Function},
		field{"private_key", r.PrivateKey},
	)
}

type OnChainExecute struct {
	ProgramRef string
	Function   string
	Inputs     []string
	PrivateKey string
	Fee        string
	FeeRecord  string
	Host       string
}

func (OnChainExecute) Tag() Tag   { return TagOnChainExecute }
func (OnChainExecute) isRequest() {}

func (r OnChainExecute) Validate() error {
	return requireFields(r.Tag(),
		field{"program_ref", r.ProgramRef},
		field{"function", r.Function},
		field{"private_key", r.PrivateKey},
		field{"fee", r.Fee},
		field{"fee_record", r.FeeRecord},
	)
}

type EstimateExecutionFee struct {
	ProgramRef string
	Function   string
	Inputs     []string
	Host       string
}

func (EstimateExecutionFee) Tag() Tag   { return TagEstimateExecutionFee }
func (EstimateExecutionFee) isRequest() {}

func (r EstimateExecutionFee) Validate() error {
	return requireFields(r.Tag(),
		field{"program_ref", r.ProgramRef},
		field{"function", r.Function},
	)
}

type EstimateDeploymentFee struct {
	Program string
	Host    string
}

func (EstimateDeploymentFee) Tag() Tag   { return TagEstimateDeploymentFee }
func (EstimateDeploymentFee) isRequest() {}

func (r EstimateDeploymentFee) Validate() error {
	return requireFields(r.Tag(), field{"program", r.Program})
}

type Transfer struct {
	PrivateKey   string
	Amount       string
	Recipient    string
	TransferKind string
	AmountRecord string
	Fee          string
	FeeRecord    string
	Host         string
}

func (Transfer) Tag() Tag   { return TagTransfer }
func (Transfer) isRequest() {}

func (r Transfer) Validate() error {
	return requireFields(r.Tag(),
		field{"private_key", r.PrivateKey},
		field{"amount", r.Amount},
		field{"recipient", r.Recipient},
		field{"transfer_kind", r.TransferKind},
		field{"fee", r.Fee},
	)
}

type Deploy struct {
	Program    string
	PrivateKey string
	Fee        string
	FeeRecord  string
	Host       string
}

func (Deploy) Tag() Tag   { return TagDeploy }
func (Deploy) isRequest() {}

func (r Deploy) Validate() error {
	return requireFields(r.Tag(),
		field{"program", r.Program},
		field{"private_key", r.PrivateKey},
		field{"fee", r.Fee},
	)
}

type Split struct {
	SplitAmount string
	Record      string
	PrivateKey  string
	Host        string
}

func (Split) Tag() Tag   { return TagSplit }
func (Split) isRequest() {}

func (r Split) Validate() error {
	return requireFields(r.Tag(),
		field{"split_amount", r.SplitAmount},
		field{"record", r.Record},
		field{"private_key", r.PrivateKey},
	)
}

type Join struct {
	RecordOne  string
	RecordTwo  string
	Fee        string
	FeeRecord  string
	PrivateKey string
	Host       string
}

func (Join) Tag() Tag   { return TagJoin }
func (Join) isRequest() {}

func (r Join) Validate() error {
	return requireFields(r.Tag(),
		field{"record_one", r.RecordOne},
		field{"record_two", r.RecordTwo},
		field{"fee", r.Fee},
		field{"private_key", r.PrivateKey},
	)
}

// NewPrivateKey asks the engine for a fresh account key.
type NewPrivateKey struct{}

func (NewPrivateKey) Tag() Tag        { return TagNewPrivateKey }
func (NewPrivateKey) isRequest()      {}
func (NewPrivateKey) Validate() error { return nil }

// HostOf returns the host override carried by r, if any.
func HostOf(r Request) string {
	switch v := r.(type) {
	case OnChainExecute:
		return v.Host
	case EstimateExecutionFee:
		return v.Host
	case EstimateDeploymentFee:
		return v.Host
	case Transfer:
		return v.Host
	case Deploy:
		return v.Host
	case Split:
		return v.Host
	case Join:
		return v.Host
	default:
		return ""
	}
}

type field struct {
	name  string
	value string
}

func requireFields(tag Tag, fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s missing %s", ErrInvalidRequest, tag, f.name)
		}
	}
	return nil
}
