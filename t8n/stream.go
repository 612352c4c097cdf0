package t8n

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strconv"

	"github.com/pkg/errors"
)

// streamTransport runs the tool as a subprocess, streaming one JSON document
// in on stdin and reading one JSON document back from stdout.
type streamTransport struct {
	tool *Tool
}

func (st *streamTransport) evaluate(ctx context.Context, req *toolRequest) (*Output, error) {
	// Trace files still go through the filesystem even in stream mode.
	var traceDir string
	if req.trace {
		dir, err := os.MkdirTemp("", "t8n-trace-")
		if err != nil {
			return nil, errors.Wrap(err, "t8n: creating trace dir")
		}
		defer os.RemoveAll(dir)
		traceDir = dir
	}

	cfg := st.tool.cfg
	var args []string
	if cfg.Subcommand != "" {
		args = append(args, cfg.Subcommand)
	}
	args = append(args,
		"--input.alloc=stdin",
		"--input.txs=stdin",
		"--input.env=stdin",
		"--output.result=stdout",
		"--output.alloc=stdout",
		"--output.body=stdout",
		"--state.fork="+req.forkName,
		"--state.chainid="+strconv.FormatUint(req.chainID, 10),
		"--state.reward="+req.reward.String(),
	)
	if req.trace {
		args = append(args, "--trace", "--output.basedir="+traceDir)
	}

	stdin, err := json.Marshal(req.input)
	if err != nil {
		return nil, errors.Wrap(err, "t8n: encoding input")
	}
	cmd := exec.CommandContext(ctx, cfg.Binary, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	if req.debugDir != "" {
		if err := dumpStreamDebug(req.debugDir, traceDir, cfg.Binary, args, req, stdin, runErr, &stdout, &stderr); err != nil {
			st.tool.log.Warn("debug dump failed", "err", err)
		}
	}
	if runErr != nil {
		return nil, errors.Errorf("t8n: tool failed: %v, stderr: %s", runErr, stderr.String())
	}

	out := &Output{}
	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return nil, errors.Wrap(err, "t8n: decoding tool output")
	}
	if req.trace && out.Result != nil {
		if err := st.tool.collectTraces(traceDir, req.debugDir, out.Result.Receipts); err != nil {
			return nil, err
		}
	}
	return out, nil
}
