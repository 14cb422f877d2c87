package worker

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/provectl/internal/account"
	"github.com/danmuck/provectl/internal/engine"
	"github.com/danmuck/provectl/internal/network"
	"github.com/danmuck/provectl/internal/program"
)

const (
	testHost  = "https://api.test"
	helloSrc  = "program hello.aleo; function hello: input r0 as u32.public; input r1 as u32.private; add r0 r1 into r2; output r2 as u32.private;"
	helloSrc2 = "program hello.aleo; function hello: input r0 as u32.public; input r1 as u32.private; mul r0 r1 into r2; output r2 as u32.private;"
	tokenSrc  = "import hello.aleo; program token.aleo; function mint: input r0 as u64.public; add r0 r0 into r1; output r1 as u64.public;"
)

type fakeKey struct{ n int }

func (fakeKey) WriteTo(io.Writer) (int64, error) { return 0, nil }

// fakeEngine records calls and never proves anything.
type fakeEngine struct {
	mu        sync.Mutex
	calls     map[string]int
	verifyErr error
	execErr   error
	fee       uint64
	delay     time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{calls: make(map[string]int), fee: 1_234_567}
}

func (e *fakeEngine) count(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[name]++
}

func (e *fakeEngine) Calls(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

func (e *fakeEngine) enter() func() {
	n := e.inflight.Add(1)
	for {
		peak := e.maxInflight.Load()
		if n <= peak || e.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	return func() { e.inflight.Add(-1) }
}

func (e *fakeEngine) SynthesizeKeyPair(_ *program.Program, _ string) (engine.KeyPair, error) {
	e.count("synthesize")
	n := e.Calls("synthesize")
	return engine.KeyPair{ProvingKey: fakeKey{n}, VerifyingKey: fakeKey{n}}, nil
}

func (e *fakeEngine) ExecuteOffline(p engine.ExecuteParams) (engine.ExecuteResult, error) {
	defer e.enter()()
	e.count("execute")
	if e.execErr != nil {
		return engine.ExecuteResult{}, e.execErr
	}
	res := engine.ExecuteResult{Outputs: []string{"15u32"}}
	if p.Prove {
		res.Execution = &engine.Execution{ProgramID: p.Program.ID(), Function: p.Function, Outputs: res.Outputs}
	}
	return res, nil
}

func (e *fakeEngine) VerifyExecution(_ *engine.Execution, _ *program.Program, _ string, _ engine.VerifyingKey) error {
	e.count("verify")
	return e.verifyErr
}

func (e *fakeEngine) EstimateExecutionFee(engine.ExecutionFeeParams) (uint64, error) {
	e.count("estimate_execution")
	return e.fee, nil
}

func (e *fakeEngine) EstimateDeploymentFee(p engine.DeploymentFeeParams) (uint64, error) {
	e.count("estimate_deployment")
	if len(p.Program.Imports()) != len(p.Imports) {
		return 0, errors.New("imports not resolved")
	}
	return e.fee, nil
}

func (e *fakeEngine) sign(raw, txType string, body any) (*engine.Transaction, error) {
	e.count("build")
	key, err := account.ParsePrivateKey(raw)
	if err != nil {
		return nil, err
	}
	return engine.NewTransaction(key, txType, body)
}

func (e *fakeEngine) BuildExecution(p engine.ExecutionTxParams) (*engine.Transaction, error) {
	return e.sign(p.PrivateKey, "execute", map[string]any{"program": p.Program.ID(), "fee": p.Fee})
}

func (e *fakeEngine) BuildDeployment(p engine.DeploymentTxParams) (*engine.Transaction, error) {
	return e.sign(p.PrivateKey, "deploy", map[string]any{"program": p.Program.ID(), "source": p.Program.Source(), "fee": p.Fee})
}

func (e *fakeEngine) BuildTransfer(p engine.TransferParams) (*engine.Transaction, error) {
	return e.sign(p.PrivateKey, "transfer_"+string(p.Kind), map[string]any{"amount": p.Amount, "recipient": p.Recipient})
}

func (e *fakeEngine) BuildSplit(p engine.SplitParams) (*engine.Transaction, error) {
	return e.sign(p.PrivateKey, "split", map[string]any{"amount": p.Amount})
}

func (e *fakeEngine) BuildJoin(p engine.JoinParams) (*engine.Transaction, error) {
	return e.sign(p.PrivateKey, "join", map[string]any{"fee": p.Fee})
}

func (e *fakeEngine) NewPrivateKey() (account.PrivateKey, error) {
	defer e.enter()()
	e.count("new_key")
	return account.Generate(nil)
}

type fixture struct {
	eng  *fakeEngine
	net  *network.Memory
	d    *Dispatcher
	key  string
	addr string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	eng := newFakeEngine()
	mem := network.NewMemory()
	d, err := NewDispatcher(eng, mem, DispatcherConfig{
		WorkerID:    "w-test",
		DefaultHost: testHost,
		ProveLocal:  true,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	key, err := account.Generate(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &fixture{eng: eng, net: mem, d: d, key: key.String(), addr: key.Address().String()}
}
