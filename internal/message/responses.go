package message

// Response is a typed reply to one request.
type Response interface {
	Tag() Tag
}

// ExecutionResult answers LocalExecute. Execution is empty when the engine
// ran without producing a provable execution.
type ExecutionResult struct {
	Outputs   []string
	Execution string
}

func (ExecutionResult) Tag() Tag { return TagOfflineExecutionCompleted }

// TransactionResult answers every broadcasting request; ResponseTag carries
// the variant-specific completion tag.
type TransactionResult struct {
	ResponseTag   Tag
	TransactionID string
	Transaction   string
}

func (r TransactionResult) Tag() Tag { return r.ResponseTag }

type FeeEstimate struct {
	ResponseTag  Tag
	Credits      float64
	Microcredits uint64
}

func (r FeeEstimate) Tag() Tag { return r.ResponseTag }

type PrivateKeyResult struct {
	PrivateKey string
	Address    string
}

func (PrivateKeyResult) Tag() Tag { return TagPrivateKeyGenerated }

// Failure is the only error shape that crosses the worker boundary.
type Failure struct {
	Message string
}

func (Failure) Tag() Tag { return TagError }

func (f Failure) Error() string { return f.Message }

// Ready is emitted once per worker before any request is accepted.
type Ready struct {
	WorkerID string
}

func (Ready) Tag() Tag { return TagWorkerReady }
