package t8n

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"gopkg.in/inconshreveable/log15.v2"

	"github.com/ethereum/fixturegen/forks"
)

// Transport invocation timeouts. Computation-heavy blocks get the slow
// budget.
const (
	normalTimeout = 20 * time.Second
	slowTimeout   = 180 * time.Second
)

// Mode selects how the external tool is invoked.
type Mode int

const (
	// ModeFilesystem runs the tool as a subprocess with file-based inputs
	// and outputs.
	ModeFilesystem Mode = iota
	// ModeStream runs the tool as a subprocess exchanging one JSON
	// document over stdin/stdout.
	ModeStream
	// ModeServer posts the request to a long-lived server process.
	ModeServer
)

// Config describes one external transition tool instance.
type Config struct {
	// Binary is the tool executable. Required for the filesystem and
	// stream modes.
	Binary string
	// Subcommand is inserted before the tool arguments, for multi-tool
	// binaries ("evm t8n").
	Subcommand string
	Mode       Mode
	// ServerURL is the endpoint of a running server-mode tool. Required
	// for ModeServer.
	ServerURL string
	// Trace enables opcode-by-opcode tracing. Traces accumulate in the
	// tool's buffer until ResetTraces.
	Trace bool
	// DebugDir, when set, receives a dump of every request and response
	// plus a replay script. Purely diagnostic.
	DebugDir string

	Logger log15.Logger
}

// Tool invokes an external state transition tool through one of the three
// transports. Tools are not safe for concurrent use: each chain build owns
// its instance and its trace buffer.
type Tool struct {
	cfg       Config
	transport transport
	log       log15.Logger

	traces *TraceBuffer
	// calls counts evaluations, naming the per-call debug subdirectory.
	calls int
}

// Request is one evaluation of the state transition function. Transactions
// must already be signed.
type Request struct {
	Alloc Alloc
	Txs   []*types.Transaction
	Env   *Environment
	Fork  *forks.Fork

	ChainID uint64
	// Reward is the block mining reward. It is forced to -1 when the
	// environment describes block 0, since genesis pays no reward.
	Reward *big.Int
	// SlowRequest extends the server transport's timeout for
	// execution-heavy blocks.
	SlowRequest bool
}

// transport is one invocation strategy. All three are observationally
// equivalent to the caller of Evaluate.
type transport interface {
	evaluate(ctx context.Context, req *toolRequest) (*Output, error)
}

// toolRequest is the fully resolved request handed to a transport.
type toolRequest struct {
	input        *toolInput
	forkName     string
	chainID      uint64
	reward       *big.Int
	blobSchedule *forks.BlobSchedule
	trace        bool
	slow         bool
	debugDir     string
}

func (r *toolRequest) serverRequest() *serverRequest {
	return &serverRequest{
		State: serverContext{
			Fork:         r.forkName,
			ChainID:      r.chainID,
			Reward:       r.reward.Int64(),
			BlobSchedule: r.blobSchedule,
		},
		Input: r.input,
	}
}

// NewTool creates a tool instance from its configuration.
func NewTool(cfg Config) (*Tool, error) {
	if cfg.Logger == nil {
		cfg.Logger = log15.New("module", "t8n")
	}
	t := &Tool{cfg: cfg, log: cfg.Logger, traces: &TraceBuffer{}}
	switch cfg.Mode {
	case ModeFilesystem:
		if cfg.Binary == "" {
			return nil, errors.New("t8n: filesystem mode needs a binary")
		}
		t.transport = &filesystemTransport{tool: t}
	case ModeStream:
		if cfg.Binary == "" {
			return nil, errors.New("t8n: stream mode needs a binary")
		}
		t.transport = &streamTransport{tool: t}
	case ModeServer:
		if cfg.ServerURL == "" {
			return nil, errors.New("t8n: server mode needs a server URL")
		}
		t.transport = &serverTransport{tool: t, client: &http.Client{}}
	default:
		return nil, errors.Errorf("t8n: unknown mode %d", cfg.Mode)
	}
	return t, nil
}

// knownTools maps tool identifiers to their construction defaults. The table
// is static: adding a tool means adding a row, not registering at runtime.
var knownTools = map[string]func(cfg *Config){
	"geth":   func(cfg *Config) { cfg.Subcommand = "t8n"; cfg.Mode = ModeStream },
	"evmone": func(cfg *Config) { cfg.Mode = ModeFilesystem },
	"besu":   func(cfg *Config) { cfg.Mode = ModeServer },
	"nimbus": func(cfg *Config) { cfg.Mode = ModeStream },
	"ethjs":  func(cfg *Config) { cfg.Mode = ModeStream },
}

// NewKnownTool creates a tool by identifier, applying that tool's invocation
// defaults before the caller's binary/server settings take effect.
func NewKnownTool(name string, cfg Config) (*Tool, error) {
	apply, ok := knownTools[name]
	if !ok {
		return nil, errors.Errorf("t8n: unknown tool %q", name)
	}
	apply(&cfg)
	return NewTool(cfg)
}

// KnownTools returns the identifiers accepted by NewKnownTool.
func KnownTools() []string {
	names := make([]string, 0, len(knownTools))
	for name := range knownTools {
		names = append(names, name)
	}
	return names
}

// Evaluate runs the state transition function over one block's transactions.
func (t *Tool) Evaluate(ctx context.Context, req *Request) (*Output, error) {
	number, timestamp := uint64(req.Env.Number), uint64(req.Env.Timestamp)
	reward := req.Reward
	if reward == nil {
		reward = new(big.Int)
	}
	if number == 0 {
		reward = big.NewInt(-1)
	}

	tr := &toolRequest{
		input: &toolInput{
			Alloc: req.Alloc,
			Txs:   req.Txs,
			Env:   req.Env,
		},
		forkName:     req.Fork.TransitionToolName(number, timestamp),
		chainID:      req.ChainID,
		reward:       reward,
		blobSchedule: req.Fork.BlobSchedule(number, timestamp),
		trace:        t.cfg.Trace,
		slow:         req.SlowRequest,
		debugDir:     t.callDebugDir(),
	}

	t.log.Debug("evaluating block", "fork", tr.forkName, "number", number, "txs", len(req.Txs))
	out, err := t.transport.evaluate(ctx, tr)
	if err != nil {
		return nil, err
	}
	if out.Result == nil {
		return nil, errors.New("t8n: tool returned no result")
	}
	out.Alloc.PruneEmpty()
	return out, nil
}

// callDebugDir returns the debug dump directory for the next call, or empty
// when debugging is off.
func (t *Tool) callDebugDir() string {
	if t.cfg.DebugDir == "" {
		return ""
	}
	dir := callDir(t.cfg.DebugDir, t.calls)
	t.calls++
	return dir
}

// Traces returns the trace buffer accumulated since the last reset.
func (t *Tool) Traces() *TraceBuffer {
	return t.traces
}

// ResetTraces clears the trace buffer. Chain builds call this at session
// start so traces never leak between unrelated tests.
func (t *Tool) ResetTraces() {
	t.traces.Reset()
	t.calls = 0
}
