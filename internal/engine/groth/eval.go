package groth

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"

	"github.com/danmuck/provectl/internal/program"
)

var (
	errOverflow  = errors.New("arithmetic overflow")
	errUnderflow = errors.New("arithmetic underflow")
)

// trace is the native result of running a function.
type trace struct {
	public  []program.Value
	private []program.Value
	outputs []program.Value
}

// parseInputs checks raw inputs against fn's declared types.
func parseInputs(fn *program.Function, raw []string) ([]program.Value, error) {
	if len(raw) != len(fn.Inputs) {
		return nil, fmt.Errorf("function %s takes %d inputs, got %d", fn.Name, len(fn.Inputs), len(raw))
	}
	out := make([]program.Value, len(raw))
	for i, in := range fn.Inputs {
		v, err := program.ParseValue(raw[i])
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if v.Type != in.Type {
			return nil, fmt.Errorf("input %d: expected %s, got %s", i, in.Type, v.Type)
		}
		if err := checkField(v); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// parseTyped decodes values that must match types one for one.
func parseTyped(raw []string, types []program.Type) ([]program.Value, error) {
	if len(raw) != len(types) {
		return nil, fmt.Errorf("expected %d values, got %d", len(types), len(raw))
	}
	out := make([]program.Value, len(raw))
	for i, r := range raw {
		v, err := program.ParseValue(r)
		if err != nil {
			return nil, err
		}
		if v.Type != types[i] {
			return nil, fmt.Errorf("value %d: expected %s, got %s", i, types[i], v.Type)
		}
		if err := checkField(v); err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func checkField(v program.Value) error {
	if v.Type == program.TypeField && v.Int.Cmp(ecc.BN254.ScalarField()) >= 0 {
		return fmt.Errorf("%s exceeds the scalar field", v)
	}
	return nil
}

// evaluate runs fn natively with checked unsigned arithmetic and field
// arithmetic modulo the BN254 scalar field.
func evaluate(fn *program.Function, inputs []program.Value) (trace, error) {
	regs := make(map[string]program.Value, len(inputs)+len(fn.Instructions))
	var tr trace
	for i, in := range fn.Inputs {
		regs[in.Register] = inputs[i]
		if in.Visibility == program.Public {
			tr.public = append(tr.public, inputs[i])
		} else {
			tr.private = append(tr.private, inputs[i])
		}
	}

	modulus := ecc.BN254.ScalarField()
	for _, ins := range fn.Instructions {
		a := operandValue(regs, ins.Operands[0])
		b := operandValue(regs, ins.Operands[1])
		if ins.Op == program.OpAssertEq {
			if !a.Equal(b) {
				return trace{}, fmt.Errorf("assert.eq failed: %s != %s", a, b)
			}
			continue
		}

		r := new(big.Int)
		switch ins.Op {
		case program.OpAdd:
			r.Add(a.Int, b.Int)
		case program.OpSub:
			r.Sub(a.Int, b.Int)
		case program.OpMul:
			r.Mul(a.Int, b.Int)
		default:
			return trace{}, fmt.Errorf("unsupported opcode %s", ins.Op)
		}

		if ins.Type == program.TypeField {
			r.Mod(r, modulus)
		} else if r.Sign() < 0 {
			return trace{}, fmt.Errorf("%w: %s %s %s", errUnderflow, ins.Op, a, b)
		} else if r.Cmp(ins.Type.Max()) > 0 {
			return trace{}, fmt.Errorf("%w: %s %s %s", errOverflow, ins.Op, a, b)
		}
		regs[ins.Dest] = program.Value{Type: ins.Type, Int: r}
	}

	tr.outputs = make([]program.Value, len(fn.Outputs))
	for i, out := range fn.Outputs {
		tr.outputs[i] = regs[out.Register]
	}
	return tr, nil
}

func operandValue(regs map[string]program.Value, op program.Operand) program.Value {
	if op.Literal != nil {
		return *op.Literal
	}
	return regs[op.Register]
}

func strs(vals []program.Value) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String()
	}
	return out
}
