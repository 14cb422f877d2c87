// Package program owns the program model accepted by the worker.
//
// Ownership boundary:
// - source parsing and static checks
// - typed literal values
// - program/function identity validation (local source or remote reference)
//
// Arithmetic semantics and proving live in the engine; this package only
// guarantees that a parsed program is well formed.
package program

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalidProgram   = errors.New("program: invalid program")
	ErrFunctionNotFound = errors.New("program: function not found")
	ErrInvalidValue     = errors.New("program: invalid value")
)

// Visibility marks whether a value is part of the public witness.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Operand is either a register reference or an inline literal.
type Operand struct {
	Register string
	Literal  *Value
}

func (o Operand) String() string {
	if o.Literal != nil {
		return o.Literal.String()
	}
	return o.Register
}

// Input declares one function parameter.
type Input struct {
	Register   string
	Type       Type
	Visibility Visibility
}

// Output declares one returned register.
type Output struct {
	Register   string
	Type       Type
	Visibility Visibility
}

// Instruction is one statement in a function body. Dest is empty for assertions.
type Instruction struct {
	Op       Opcode
	Operands []Operand
	Dest     string
	Type     Type
}

// Function is one named entry point of a program.
type Function struct {
	Name         string
	Inputs       []Input
	Instructions []Instruction
	Outputs      []Output
}

// PublicInputs returns inputs in declaration order filtered by visibility.
func (f *Function) PublicInputs() []Input {
	return f.inputsWith(Public)
}

// PrivateInputs returns inputs in declaration order filtered by visibility.
func (f *Function) PrivateInputs() []Input {
	return f.inputsWith(Private)
}

func (f *Function) inputsWith(v Visibility) []Input {
	out := make([]Input, 0, len(f.Inputs))
	for _, in := range f.Inputs {
		if in.Visibility == v {
			out = append(out, in)
		}
	}
	return out
}

// Program is a parsed, statically checked program.
type Program struct {
	id        string
	source    string
	imports   []string
	functions []*Function
	byName    map[string]*Function
}

// ID returns the program identifier, e.g. "hello.aleo".
func (p *Program) ID() string {
	return p.id
}

// Source returns the exact text the program was parsed from.
func (p *Program) Source() string {
	return p.source
}

// Imports returns imported program identifiers in declaration order.
func (p *Program) Imports() []string {
	out := make([]string, len(p.imports))
	copy(out, p.imports)
	return out
}

func (p *Program) HasFunction(name string) bool {
	_, ok := p.byName[name]
	return ok
}

func (p *Program) Function(name string) (*Function, bool) {
	fn, ok := p.byName[name]
	return fn, ok
}

// FunctionNames returns function names sorted for deterministic output.
func (p *Program) FunctionNames() []string {
	names := make([]string, 0, len(p.functions))
	for _, fn := range p.functions {
		names = append(names, fn.Name)
	}
	sort.Strings(names)
	return names
}

// RequireFunction returns the named function or ErrFunctionNotFound carrying
// the program id and function name.
func (p *Program) RequireFunction(name string) (*Function, error) {
	fn, ok := p.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: program %s does not contain function %s", ErrFunctionNotFound, p.id, name)
	}
	return fn, nil
}
