// Package groth is the reference execution engine. Each program function is
// compiled to an R1CS circuit over BN254 and proven with groth16.
package groth

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	gnarklogger "github.com/consensys/gnark/logger"
	logs "github.com/danmuck/smplog"

	"github.com/danmuck/provectl/internal/account"
	"github.com/danmuck/provectl/internal/engine"
	"github.com/danmuck/provectl/internal/program"
)

var routeLoggerOnce sync.Once

type provingKey struct {
	programID string
	function  string
	ccs       constraint.ConstraintSystem
	pk        groth16.ProvingKey
}

func (k *provingKey) WriteTo(w io.Writer) (int64, error) {
	return k.pk.WriteTo(w)
}

type verifyingKey struct {
	vk       groth16.VerifyingKey
	checksum string
}

func (k *verifyingKey) WriteTo(w io.Writer) (int64, error) {
	return k.vk.WriteTo(w)
}

// Engine implements engine.Engine.
type Engine struct {
	rand io.Reader
}

var _ engine.Engine = (*Engine)(nil)

// New returns an engine. rand feeds key generation; nil means crypto/rand.
func New(rand io.Reader) *Engine {
	routeLoggerOnce.Do(routeGnarkLogger)
	return &Engine{rand: rand}
}

// gnark logs compile and setup progress at info; keep it out of runtime logs.
func routeGnarkLogger() {
	level := logs.WarnLevel
	if logs.Configured().Level <= logs.DebugLevel {
		level = logs.DebugLevel
	}
	gnarklogger.Set(logs.With().Str("component", "gnark").Logger().Level(level))
}

func (e *Engine) SynthesizeKeyPair(prog *program.Program, function string) (pair engine.KeyPair, err error) {
	fn, err := prog.RequireFunction(function)
	if err != nil {
		return engine.KeyPair{}, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: compile %s:%s: %v", engine.ErrEngineExecution, prog.ID(), function, r)
		}
	}()

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, newCircuit(fn))
	if err != nil {
		return engine.KeyPair{}, fmt.Errorf("%w: compile %s:%s: %v", engine.ErrEngineExecution, prog.ID(), function, err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return engine.KeyPair{}, fmt.Errorf("%w: setup %s:%s: %v", engine.ErrEngineExecution, prog.ID(), function, err)
	}
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return engine.KeyPair{}, fmt.Errorf("%w: encode verifying key: %v", engine.ErrEngineExecution, err)
	}

	logs.Zerolog().Debug().
		Str("program_id", prog.ID()).
		Str("function", function).
		Int("constraints", ccs.GetNbConstraints()).
		Msg("groth.Engine.SynthesizeKeyPair")
	return engine.KeyPair{
		ProvingKey:   &provingKey{programID: prog.ID(), function: function, ccs: ccs, pk: pk},
		VerifyingKey: &verifyingKey{vk: vk, checksum: engine.Checksum(buf.Bytes())},
	}, nil
}

func (e *Engine) ExecuteOffline(p engine.ExecuteParams) (engine.ExecuteResult, error) {
	if p.PrivateKey != "" {
		if _, err := account.ParsePrivateKey(p.PrivateKey); err != nil {
			return engine.ExecuteResult{}, fmt.Errorf("%w: %v", engine.ErrEngineExecution, err)
		}
	}
	fn, tr, err := e.run(p.Program, p.Function, p.Inputs)
	if err != nil {
		return engine.ExecuteResult{}, err
	}
	result := engine.ExecuteResult{Outputs: strs(tr.outputs)}
	if !p.Prove {
		return result, nil
	}
	exec, err := e.prove(p.Program, fn, tr, p.Keys)
	if err != nil {
		return engine.ExecuteResult{}, err
	}
	result.Execution = exec
	return result, nil
}

func (e *Engine) run(prog *program.Program, function string, raw []string) (*program.Function, trace, error) {
	fn, err := prog.RequireFunction(function)
	if err != nil {
		return nil, trace{}, err
	}
	inputs, err := parseInputs(fn, raw)
	if err != nil {
		return nil, trace{}, fmt.Errorf("%w: %s:%s: %v", engine.ErrEngineExecution, prog.ID(), function, err)
	}
	tr, err := evaluate(fn, inputs)
	if err != nil {
		return nil, trace{}, fmt.Errorf("%w: %s:%s: %v", engine.ErrEngineExecution, prog.ID(), function, err)
	}
	return fn, tr, nil
}

func (e *Engine) prove(prog *program.Program, fn *program.Function, tr trace, keys engine.KeyPair) (*engine.Execution, error) {
	pk, err := provingKeyFor(keys, prog.ID(), fn.Name)
	if err != nil {
		return nil, err
	}
	vk, ok := keys.VerifyingKey.(*verifyingKey)
	if !ok {
		return nil, fmt.Errorf("%w: verifying key not produced by this engine", engine.ErrEngineExecution)
	}

	w, err := frontend.NewWitness(assignment(fn, tr.public, tr.private, tr.outputs), ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("%w: witness: %v", engine.ErrEngineExecution, err)
	}
	proof, err := groth16.Prove(pk.ccs, pk.pk, w)
	if err != nil {
		return nil, fmt.Errorf("%w: prove %s:%s: %v", engine.ErrEngineExecution, prog.ID(), fn.Name, err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: encode proof: %v", engine.ErrEngineExecution, err)
	}

	return &engine.Execution{
		ProgramID:    prog.ID(),
		Function:     fn.Name,
		PublicInputs: strs(tr.public),
		Outputs:      strs(tr.outputs),
		Proof:        buf.Bytes(),
		VKChecksum:   vk.checksum,
	}, nil
}

func (e *Engine) VerifyExecution(exec *engine.Execution, prog *program.Program, function string, vk engine.VerifyingKey) error {
	if exec == nil {
		return fmt.Errorf("%w: no execution", engine.ErrVerificationFailed)
	}
	if exec.ProgramID != prog.ID() || exec.Function != function {
		return fmt.Errorf("%w: execution is for %s:%s, not %s:%s",
			engine.ErrVerificationFailed, exec.ProgramID, exec.Function, prog.ID(), function)
	}
	key, ok := vk.(*verifyingKey)
	if !ok {
		return fmt.Errorf("%w: verifying key not produced by this engine", engine.ErrVerificationFailed)
	}
	if exec.VKChecksum != key.checksum {
		return fmt.Errorf("%w: execution was proven under a different key", engine.ErrVerificationFailed)
	}
	fn, err := prog.RequireFunction(function)
	if err != nil {
		return err
	}

	public, err := parseTyped(exec.PublicInputs, inputTypes(fn.PublicInputs()))
	if err != nil {
		return fmt.Errorf("%w: public inputs: %v", engine.ErrVerificationFailed, err)
	}
	outputs, err := parseTyped(exec.Outputs, outputTypes(fn.Outputs))
	if err != nil {
		return fmt.Errorf("%w: outputs: %v", engine.ErrVerificationFailed, err)
	}
	w, err := frontend.NewWitness(assignment(fn, public, nil, outputs), ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("%w: public witness: %v", engine.ErrVerificationFailed, err)
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(exec.Proof)); err != nil {
		return fmt.Errorf("%w: decode proof: %v", engine.ErrVerificationFailed, err)
	}
	if err := groth16.Verify(proof, key.vk, w); err != nil {
		return fmt.Errorf("%w: %s:%s: %v", engine.ErrVerificationFailed, prog.ID(), function, err)
	}
	return nil
}

func (e *Engine) NewPrivateKey() (account.PrivateKey, error) {
	key, err := account.Generate(e.rand)
	if err != nil {
		return account.PrivateKey{}, fmt.Errorf("%w: %v", engine.ErrEngineExecution, err)
	}
	return key, nil
}

func provingKeyFor(keys engine.KeyPair, programID, function string) (*provingKey, error) {
	pk, ok := keys.ProvingKey.(*provingKey)
	if !ok {
		return nil, fmt.Errorf("%w: proving key not produced by this engine", engine.ErrEngineExecution)
	}
	if pk.programID != programID || pk.function != function {
		return nil, fmt.Errorf("%w: proving key is for %s:%s", engine.ErrEngineExecution, pk.programID, pk.function)
	}
	return pk, nil
}

func inputTypes(inputs []program.Input) []program.Type {
	out := make([]program.Type, len(inputs))
	for i, in := range inputs {
		out[i] = in.Type
	}
	return out
}

func outputTypes(outputs []program.Output) []program.Type {
	out := make([]program.Type, len(outputs))
	for i, o := range outputs {
		out[i] = o.Type
	}
	return out
}
