package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/provectl/internal/engine"
	"github.com/danmuck/provectl/internal/hoststate"
	"github.com/danmuck/provectl/internal/keycache"
	"github.com/danmuck/provectl/internal/message"
	"github.com/danmuck/provectl/internal/network"
	"github.com/danmuck/provectl/internal/observability"
	"github.com/danmuck/provectl/internal/program"
)

// DispatcherConfig configures one Dispatcher.
type DispatcherConfig struct {
	WorkerID    string
	DefaultHost string
	ProveLocal  bool
	CacheSize   int
	HistorySize int
}

// Dispatcher turns one request into one response. It is not safe for
// concurrent Dispatch calls; Worker serializes them.
type Dispatcher struct {
	engine     engine.Engine
	net        network.Client
	validator  *program.Validator
	cache      *keycache.Cache
	hosts      *hoststate.State
	history    *History
	proveLocal bool
	logger     logs.Logger
	now        func() time.Time
}

func NewDispatcher(eng engine.Engine, net network.Client, cfg DispatcherConfig) (*Dispatcher, error) {
	if eng == nil {
		return nil, errors.New("worker: nil engine")
	}
	if net == nil {
		return nil, errors.New("worker: nil network client")
	}
	cache, err := keycache.New(eng, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		engine:     eng,
		net:        net,
		validator:  program.NewValidator(net),
		cache:      cache,
		hosts:      hoststate.New(cfg.DefaultHost),
		history:    NewHistory(cfg.HistorySize),
		proveLocal: cfg.ProveLocal,
		logger:     observability.ComponentLogger(cfg.WorkerID, "dispatcher"),
		now:        time.Now,
	}, nil
}

func (d *Dispatcher) Cache() *keycache.Cache  { return d.cache }
func (d *Dispatcher) Hosts() *hoststate.State { return d.hosts }
func (d *Dispatcher) History() *History       { return d.history }

// trace carries the in-flight record and the host lease of one request.
type trace struct {
	d     *Dispatcher
	rec   ExecutionRecord
	host  string
	start time.Time
}

func (t *trace) mark(p Phase) {
	t.rec.mark(p, t.d.now())
}

func (t *trace) program(prog *program.Program, function string) {
	t.rec.ProgramID = prog.ID()
	t.rec.Function = strings.TrimSpace(function)
}

// Dispatch never returns nil and never panics; every error becomes a
// message.Failure. The host override is reset on every exit path.
func (d *Dispatcher) Dispatch(ctx context.Context, requestID string, req message.Request) (resp message.Response) {
	lease := d.hosts.Acquire(message.HostOf(req))
	defer lease.Release()

	t := &trace{d: d, host: lease.Host(), start: d.now()}
	t.rec.RequestID = requestID
	t.rec.Host = t.host
	if req != nil {
		t.rec.Tag = req.Tag()
	}
	t.mark(PhaseReceived)

	defer func() {
		if r := recover(); r != nil {
			resp = d.fail(t, fmt.Errorf("worker: panic during %s: %v", t.rec.Tag, r))
		}
		t.rec.Duration = d.now().Sub(t.start)
		d.history.Add(t.rec)
		observability.RecordWorkerRequest(string(t.rec.Tag), outcomeOf(resp), t.rec.Kind, t.rec.Duration)
	}()

	if req == nil {
		return d.fail(t, fmt.Errorf("%w: nil request", message.ErrInvalidRequest))
	}
	if err := req.Validate(); err != nil {
		return d.fail(t, err)
	}
	resp, err := d.route(ctx, t, req)
	if err != nil {
		return d.fail(t, err)
	}
	t.rec.ResponseTag = resp.Tag()
	t.mark(PhaseResponded)
	d.logger.Info().
		Str("request_id", requestID).
		Str("tag", string(t.rec.Tag)).
		Str("host", t.host).
		Str("program_id", t.rec.ProgramID).
		Dur("duration", d.now().Sub(t.start)).
		Msg("worker.Dispatcher.Dispatch ok")
	return resp
}

func (d *Dispatcher) fail(t *trace, err error) message.Response {
	t.rec.Kind = KindOf(err)
	t.rec.Error = err.Error()
	t.rec.ResponseTag = message.TagError
	t.mark(PhaseFailed)
	d.logger.Warn().
		Str("request_id", t.rec.RequestID).
		Str("tag", string(t.rec.Tag)).
		Str("host", t.host).
		Str("kind", t.rec.Kind).
		Err(err).
		Msg("worker.Dispatcher.Dispatch failed")
	return message.Failure{Message: err.Error()}
}

func outcomeOf(resp message.Response) string {
	if _, ok := resp.(message.Failure); ok {
		return "failure"
	}
	return "success"
}

func (d *Dispatcher) route(ctx context.Context, t *trace, req message.Request) (message.Response, error) {
	switch r := req.(type) {
	case message.LocalExecute:
		return d.localExecute(ctx, t, r)
	case message.OnChainExecute:
		return d.onChainExecute(ctx, t, r)
	case message.EstimateExecutionFee:
		return d.estimateExecutionFee(ctx, t, r)
	case message.EstimateDeploymentFee:
		return d.estimateDeploymentFee(ctx, t, r)
	case message.Transfer:
		return d.transfer(ctx, t, r)
	case message.Deploy:
		return d.deploy(ctx, t, r)
	case message.Split:
		return d.split(ctx, t, r)
	case message.Join:
		return d.join(ctx, t, r)
	case message.NewPrivateKey:
		return d.newPrivateKey(t)
	default:
		return nil, fmt.Errorf("%w: unsupported request %T", message.ErrInvalidRequest, req)
	}
}

func (d *Dispatcher) localExecute(ctx context.Context, t *trace, r message.LocalExecute) (message.Response, error) {
	fn := strings.TrimSpace(r.Function)
	prog, err := d.validator.Local(r.Program, fn)
	if err != nil {
		return nil, err
	}
	t.program(prog, fn)
	t.mark(PhaseValidated)

	imports, err := network.ProgramImports(ctx, d.net, t.host, prog.Source())
	if err != nil {
		return nil, err
	}
	key := keycache.Key(prog.ID(), fn)
	if err := d.cache.EnsureLocal(prog, fn, key); err != nil {
		return nil, err
	}
	pair, err := d.cache.Get(key)
	if err != nil {
		return nil, fmt.Errorf("could not get verifying key: %w", err)
	}
	t.mark(PhaseKeysReady)

	res, err := d.engine.ExecuteOffline(engine.ExecuteParams{
		Program:    prog,
		Function:   fn,
		Inputs:     r.Inputs,
		Prove:      d.proveLocal,
		Imports:    imports,
		Keys:       pair,
		PrivateKey: r.PrivateKey,
	})
	if err != nil {
		return nil, engineErr(err)
	}
	t.mark(PhaseEngineInvoked)

	if res.Execution != nil {
		if err := d.engine.VerifyExecution(res.Execution, prog, fn, pair.VerifyingKey); err != nil {
			if !errors.Is(err, engine.ErrVerificationFailed) {
				err = fmt.Errorf("%w: %v", engine.ErrVerificationFailed, err)
			}
			return nil, err
		}
	}
	return message.ExecutionResult{Outputs: res.Outputs, Execution: res.Execution.String()}, nil
}

// remoteKeys resolves ref on the request host and ensures its keys.
func (d *Dispatcher) remoteKeys(ctx context.Context, t *trace, ref, function string) (*program.Program, engine.Imports, engine.KeyPair, error) {
	fn := strings.TrimSpace(function)
	prog, err := d.validator.Remote(ctx, t.host, ref, fn)
	if err != nil {
		return nil, nil, engine.KeyPair{}, err
	}
	t.program(prog, fn)
	t.mark(PhaseValidated)

	imports, err := network.ProgramImports(ctx, d.net, t.host, prog.Source())
	if err != nil {
		return nil, nil, engine.KeyPair{}, err
	}
	key := keycache.Key(prog.ID(), fn)
	if err := d.cache.EnsureRemote(prog, fn, key); err != nil {
		return nil, nil, engine.KeyPair{}, err
	}
	pair, err := d.cache.Get(key)
	if err != nil {
		return nil, nil, engine.KeyPair{}, fmt.Errorf("could not get proving key: %w", err)
	}
	t.mark(PhaseKeysReady)
	return prog, imports, pair, nil
}

func (d *Dispatcher) onChainExecute(ctx context.Context, t *trace, r message.OnChainExecute) (message.Response, error) {
	prog, imports, pair, err := d.remoteKeys(ctx, t, r.ProgramRef, r.Function)
	if err != nil {
		return nil, err
	}
	fee, err := message.ParseCredits("fee", r.Fee)
	if err != nil {
		return nil, err
	}
	tx, err := d.engine.BuildExecution(engine.ExecutionTxParams{
		Program:    prog,
		Function:   t.rec.Function,
		Inputs:     r.Inputs,
		PrivateKey: r.PrivateKey,
		Fee:        fee,
		FeeRecord:  r.FeeRecord,
		Host:       t.host,
		Imports:    imports,
		Keys:       pair,
	})
	if err != nil {
		return nil, engineErr(err)
	}
	t.mark(PhaseEngineInvoked)
	return d.broadcast(ctx, t, message.TagExecutionTransaction, tx)
}

func (d *Dispatcher) estimateExecutionFee(ctx context.Context, t *trace, r message.EstimateExecutionFee) (message.Response, error) {
	prog, imports, pair, err := d.remoteKeys(ctx, t, r.ProgramRef, r.Function)
	if err != nil {
		return nil, err
	}
	// estimation signs nothing that is broadcast
	key, err := d.engine.NewPrivateKey()
	if err != nil {
		return nil, engineErr(err)
	}
	fee, err := d.engine.EstimateExecutionFee(engine.ExecutionFeeParams{
		PrivateKey: key,
		Program:    prog,
		Function:   t.rec.Function,
		Inputs:     r.Inputs,
		Host:       t.host,
		Imports:    imports,
		Keys:       pair,
	})
	if err != nil {
		return nil, engineErr(err)
	}
	t.mark(PhaseEngineInvoked)
	return message.FeeEstimate{
		ResponseTag:  message.TagExecutionFeeEstimation,
		Credits:      message.FeeCredits(fee),
		Microcredits: fee,
	}, nil
}

func (d *Dispatcher) estimateDeploymentFee(ctx context.Context, t *trace, r message.EstimateDeploymentFee) (message.Response, error) {
	prog, err := program.Parse(r.Program)
	if err != nil {
		return nil, err
	}
	t.rec.ProgramID = prog.ID()
	t.mark(PhaseValidated)

	imports, err := network.ProgramImports(ctx, d.net, t.host, prog.Source())
	if err != nil {
		return nil, err
	}
	fee, err := d.engine.EstimateDeploymentFee(engine.DeploymentFeeParams{Program: prog, Imports: imports})
	if err != nil {
		return nil, engineErr(err)
	}
	t.mark(PhaseEngineInvoked)
	return message.FeeEstimate{
		ResponseTag:  message.TagDeploymentFeeEstimation,
		Credits:      message.FeeCredits(fee),
		Microcredits: fee,
	}, nil
}

func (d *Dispatcher) transfer(ctx context.Context, t *trace, r message.Transfer) (message.Response, error) {
	amount, err := message.ParseCredits("amount", r.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := message.ParseCredits("fee", r.Fee)
	if err != nil {
		return nil, err
	}
	kind, ok := engine.ParseTransferKind(r.TransferKind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown transfer kind %q", message.ErrInvalidRequest, r.TransferKind)
	}
	if kind.RequiresRecord() && strings.TrimSpace(r.AmountRecord) == "" {
		return nil, fmt.Errorf("%w: %s transfer requires amount_record", message.ErrInvalidRequest, kind)
	}
	t.mark(PhaseValidated)

	tx, err := d.engine.BuildTransfer(engine.TransferParams{
		PrivateKey:   r.PrivateKey,
		Amount:       amount,
		Recipient:    strings.TrimSpace(r.Recipient),
		Kind:         kind,
		AmountRecord: r.AmountRecord,
		Fee:          fee,
		FeeRecord:    r.FeeRecord,
		Host:         t.host,
	})
	if err != nil {
		return nil, engineErr(err)
	}
	t.mark(PhaseEngineInvoked)
	return d.broadcast(ctx, t, message.TagTransferTransaction, tx)
}

// deploy asks the host for the program id before any fee parsing or
// engine work.
func (d *Dispatcher) deploy(ctx context.Context, t *trace, r message.Deploy) (message.Response, error) {
	prog, err := program.Parse(r.Program)
	if err != nil {
		return nil, err
	}
	t.rec.ProgramID = prog.ID()

	_, err = d.net.Program(ctx, t.host, prog.ID())
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s exists on %s", ErrProgramAlreadyDeployed, prog.ID(), t.host)
	case !errors.Is(err, network.ErrProgramNotFound):
		return nil, err
	}
	t.mark(PhaseValidated)

	fee, err := message.ParseCredits("fee", r.Fee)
	if err != nil {
		return nil, err
	}
	imports, err := network.ProgramImports(ctx, d.net, t.host, prog.Source())
	if err != nil {
		return nil, err
	}
	tx, err := d.engine.BuildDeployment(engine.DeploymentTxParams{
		Program:    prog,
		PrivateKey: r.PrivateKey,
		Fee:        fee,
		FeeRecord:  r.FeeRecord,
		Host:       t.host,
		Imports:    imports,
	})
	if err != nil {
		return nil, engineErr(err)
	}
	t.mark(PhaseEngineInvoked)
	return d.broadcast(ctx, t, message.TagDeployTransaction, tx)
}

func (d *Dispatcher) split(ctx context.Context, t *trace, r message.Split) (message.Response, error) {
	amount, err := message.ParseCredits("split_amount", r.SplitAmount)
	if err != nil {
		return nil, err
	}
	t.mark(PhaseValidated)
	tx, err := d.engine.BuildSplit(engine.SplitParams{
		PrivateKey: r.PrivateKey,
		Amount:     amount,
		Record:     r.Record,
		Host:       t.host,
	})
	if err != nil {
		return nil, engineErr(err)
	}
	t.mark(PhaseEngineInvoked)
	return d.broadcast(ctx, t, message.TagSplitTransaction, tx)
}

func (d *Dispatcher) join(ctx context.Context, t *trace, r message.Join) (message.Response, error) {
	fee, err := message.ParseCredits("fee", r.Fee)
	if err != nil {
		return nil, err
	}
	t.mark(PhaseValidated)
	tx, err := d.engine.BuildJoin(engine.JoinParams{
		PrivateKey: r.PrivateKey,
		RecordOne:  r.RecordOne,
		RecordTwo:  r.RecordTwo,
		Fee:        fee,
		FeeRecord:  r.FeeRecord,
		Host:       t.host,
	})
	if err != nil {
		return nil, engineErr(err)
	}
	t.mark(PhaseEngineInvoked)
	return d.broadcast(ctx, t, message.TagJoinTransaction, tx)
}

func (d *Dispatcher) newPrivateKey(t *trace) (message.Response, error) {
	key, err := d.engine.NewPrivateKey()
	if err != nil {
		return nil, engineErr(err)
	}
	t.mark(PhaseEngineInvoked)
	return message.PrivateKeyResult{PrivateKey: key.String(), Address: key.Address().String()}, nil
}

func (d *Dispatcher) broadcast(ctx context.Context, t *trace, tag message.Tag, tx *engine.Transaction) (message.Response, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: engine returned no transaction", engine.ErrEngineExecution)
	}
	payload := tx.String()
	id, err := d.net.Broadcast(ctx, t.host, []byte(payload))
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = tx.ID
	}
	return message.TransactionResult{ResponseTag: tag, TransactionID: id, Transaction: payload}, nil
}

func engineErr(err error) error {
	if errors.Is(err, engine.ErrEngineExecution) || errors.Is(err, engine.ErrVerificationFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", engine.ErrEngineExecution, err)
}
