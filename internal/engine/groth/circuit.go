package groth

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"

	"github.com/danmuck/provectl/internal/program"
)

// circuit is the R1CS rendering of one program function. Public inputs and
// outputs form the public witness, in that order.
type circuit struct {
	Public  []frontend.Variable `gnark:",public"`
	Private []frontend.Variable `gnark:",secret"`
	Outputs []frontend.Variable `gnark:",public"`

	Fn *program.Function `gnark:"-"`
}

func newCircuit(fn *program.Function) *circuit {
	return &circuit{
		Public:  make([]frontend.Variable, len(fn.PublicInputs())),
		Private: make([]frontend.Variable, len(fn.PrivateInputs())),
		Outputs: make([]frontend.Variable, len(fn.Outputs)),
		Fn:      fn,
	}
}

// Define implements frontend.Circuit.
func (c *circuit) Define(api frontend.API) error {
	regs := make(map[string]frontend.Variable, len(c.Fn.Inputs)+len(c.Fn.Instructions))

	bind := func(inputs []program.Input, vars []frontend.Variable) error {
		if len(inputs) != len(vars) {
			return fmt.Errorf("witness has %d slots for %d inputs", len(vars), len(inputs))
		}
		for i, in := range inputs {
			rangeCheck(api, in.Type, vars[i])
			regs[in.Register] = vars[i]
		}
		return nil
	}
	if err := bind(c.Fn.PublicInputs(), c.Public); err != nil {
		return err
	}
	if err := bind(c.Fn.PrivateInputs(), c.Private); err != nil {
		return err
	}

	for _, ins := range c.Fn.Instructions {
		a, err := operandVariable(regs, ins.Operands[0])
		if err != nil {
			return err
		}
		b, err := operandVariable(regs, ins.Operands[1])
		if err != nil {
			return err
		}

		var v frontend.Variable
		switch ins.Op {
		case program.OpAdd:
			v = api.Add(a, b)
		case program.OpSub:
			v = api.Sub(a, b)
		case program.OpMul:
			v = api.Mul(a, b)
		case program.OpAssertEq:
			api.AssertIsEqual(a, b)
			continue
		default:
			return fmt.Errorf("unsupported opcode %s", ins.Op)
		}
		// wraparound in the field shows up as a value wider than the type
		rangeCheck(api, ins.Type, v)
		regs[ins.Dest] = v
	}

	if len(c.Outputs) != len(c.Fn.Outputs) {
		return fmt.Errorf("witness has %d output slots for %d outputs", len(c.Outputs), len(c.Fn.Outputs))
	}
	for i, out := range c.Fn.Outputs {
		v, ok := regs[out.Register]
		if !ok {
			return fmt.Errorf("output register %s undefined", out.Register)
		}
		api.AssertIsEqual(c.Outputs[i], v)
	}
	return nil
}

func rangeCheck(api frontend.API, t program.Type, v frontend.Variable) {
	if t.Unsigned() {
		api.ToBinary(v, t.Bits())
	}
}

func operandVariable(regs map[string]frontend.Variable, op program.Operand) (frontend.Variable, error) {
	if op.Literal != nil {
		return new(big.Int).Set(op.Literal.Int), nil
	}
	v, ok := regs[op.Register]
	if !ok {
		return nil, fmt.Errorf("register %s undefined", op.Register)
	}
	return v, nil
}

// assignment fills a witness for fn. A nil private slice fills the secret
// slots with zero, which is enough for a public-only witness.
func assignment(fn *program.Function, public, private, outputs []program.Value) *circuit {
	c := newCircuit(fn)
	fill(c.Public, public)
	fill(c.Private, private)
	fill(c.Outputs, outputs)
	return c
}

func fill(dst []frontend.Variable, vals []program.Value) {
	for i := range dst {
		if i < len(vals) && vals[i].Int != nil {
			dst[i] = new(big.Int).Set(vals[i].Int)
			continue
		}
		dst[i] = big.NewInt(0)
	}
}
