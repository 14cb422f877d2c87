package worker

import (
	"errors"

	"github.com/danmuck/provectl/internal/engine"
	"github.com/danmuck/provectl/internal/keycache"
	"github.com/danmuck/provectl/internal/message"
	"github.com/danmuck/provectl/internal/network"
	"github.com/danmuck/provectl/internal/program"
)

var ErrProgramAlreadyDeployed = errors.New("worker: program already deployed")

// failure kinds used as metric and log labels
const (
	KindNone                = ""
	KindInvalidRequest      = "invalid_request"
	KindInvalidProgram      = "invalid_program"
	KindFunctionNotFound    = "function_not_found"
	KindKeySynthesis        = "key_synthesis"
	KindKeysNotFound        = "keys_not_found"
	KindEngineExecution     = "engine_execution"
	KindVerificationFailed  = "verification_failed"
	KindAlreadyDeployed     = "program_already_deployed"
	KindNetwork             = "network"
	KindInvalidNumericInput = "invalid_numeric_input"
	KindInternal            = "internal"
)

var kinds = []struct {
	target error
	kind   string
}{
	// ErrProgramNotFound wraps ErrNetwork; both map to network.
	{ErrProgramAlreadyDeployed, KindAlreadyDeployed},
	{message.ErrInvalidNumericInput, KindInvalidNumericInput},
	{message.ErrInvalidRequest, KindInvalidRequest},
	{program.ErrFunctionNotFound, KindFunctionNotFound},
	{program.ErrInvalidProgram, KindInvalidProgram},
	{keycache.ErrKeySynthesis, KindKeySynthesis},
	{keycache.ErrKeysNotFound, KindKeysNotFound},
	{engine.ErrVerificationFailed, KindVerificationFailed},
	{engine.ErrEngineExecution, KindEngineExecution},
	{network.ErrNetwork, KindNetwork},
}

// KindOf maps err onto its taxonomy label.
func KindOf(err error) string {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.kind
		}
	}
	return KindInternal
}
