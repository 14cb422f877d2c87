package program

import (
	"context"
	"fmt"
	"strings"

	logs "github.com/danmuck/smplog"
)

// Fetcher resolves a remote program reference to its source text.
type Fetcher interface {
	Program(ctx context.Context, host string, id string) (string, error)
}

// Validator resolves program handles and confirms function existence.
type Validator struct {
	fetcher Fetcher
}

func NewValidator(fetcher Fetcher) *Validator {
	return &Validator{fetcher: fetcher}
}

// Local parses source and requires fn to exist.
func (v *Validator) Local(source string, fn string) (*Program, error) {
	prog, err := Parse(source)
	if err != nil {
		return nil, err
	}
	if _, err := prog.RequireFunction(strings.TrimSpace(fn)); err != nil {
		return nil, err
	}
	logs.Zerolog().Debug().
		Str("program_id", prog.ID()).
		Str("function", fn).
		Msg("program.Validator.Local ok")
	return prog, nil
}

// Remote resolves ref and requires fn to exist. A bare "<name>.aleo" id is
// fetched from host; anything else is treated as inline source.
func (v *Validator) Remote(ctx context.Context, host string, ref string, fn string) (*Program, error) {
	ref = strings.TrimSpace(ref)
	if !IsProgramID(ref) {
		return v.Local(ref, fn)
	}
	if v.fetcher == nil {
		return nil, fmt.Errorf("program: no fetcher configured for %s", ref)
	}
	source, err := v.fetcher.Program(ctx, host, ref)
	if err != nil {
		return nil, err
	}
	prog, err := Parse(source)
	if err != nil {
		return nil, err
	}
	if prog.ID() != ref {
		return nil, fmt.Errorf("%w: fetched %s but source declares %s", ErrInvalidProgram, ref, prog.ID())
	}
	if _, err := prog.RequireFunction(strings.TrimSpace(fn)); err != nil {
		return nil, err
	}
	logs.Zerolog().Debug().
		Str("program_id", prog.ID()).
		Str("function", fn).
		Str("host", host).
		Msg("program.Validator.Remote ok")
	return prog, nil
}
