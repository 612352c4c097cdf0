package t8n

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// filesystemTransport runs the tool as a subprocess, exchanging inputs and
// outputs through temporary files.
type filesystemTransport struct {
	tool *Tool
}

func (ft *filesystemTransport) evaluate(ctx context.Context, req *toolRequest) (*Output, error) {
	tmp, err := os.MkdirTemp("", "t8n-")
	if err != nil {
		return nil, errors.Wrap(err, "t8n: creating scratch dir")
	}
	defer os.RemoveAll(tmp)

	inputDir := filepath.Join(tmp, "input")
	outputDir := filepath.Join(tmp, "output")
	for _, dir := range []string{inputDir, outputDir} {
		if err := os.Mkdir(dir, 0755); err != nil {
			return nil, err
		}
	}
	inputFiles := map[string]interface{}{
		"alloc.json": req.input.Alloc,
		"env.json":   req.input.Env,
		"txs.json":   req.input.Txs,
	}
	for name, v := range inputFiles {
		if err := writeJSONFile(filepath.Join(inputDir, name), v); err != nil {
			return nil, err
		}
	}

	cfg := ft.tool.cfg
	var args []string
	if cfg.Subcommand != "" {
		args = append(args, cfg.Subcommand)
	}
	args = append(args,
		"--state.fork", req.forkName,
		"--input.alloc", filepath.Join(inputDir, "alloc.json"),
		"--input.env", filepath.Join(inputDir, "env.json"),
		"--input.txs", filepath.Join(inputDir, "txs.json"),
		"--output.basedir", tmp,
		"--output.result", filepath.Join("output", "result.json"),
		"--output.alloc", filepath.Join("output", "alloc.json"),
		"--output.body", filepath.Join("output", "txs.rlp"),
		"--state.reward", req.reward.String(),
		"--state.chainid", strconv.FormatUint(req.chainID, 10),
	)
	if req.trace {
		args = append(args, "--trace")
	}

	cmd := exec.CommandContext(ctx, cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	if req.debugDir != "" {
		if err := dumpFilesystemDebug(req.debugDir, tmp, cfg.Binary, args, runErr, &stdout, &stderr); err != nil {
			ft.tool.log.Warn("debug dump failed", "err", err)
		}
	}
	if runErr != nil {
		return nil, errors.Errorf("t8n: tool failed: %v, stderr: %s", runErr, stderr.String())
	}

	out := &Output{}
	if err := readJSONFile(filepath.Join(outputDir, "alloc.json"), &out.Alloc); err != nil {
		return nil, err
	}
	if err := readJSONFile(filepath.Join(outputDir, "result.json"), &out.Result); err != nil {
		return nil, err
	}
	// The body file holds a JSON-quoted hex string. It is optional: not
	// every tool writes it.
	if data, err := os.ReadFile(filepath.Join(outputDir, "txs.rlp")); err == nil {
		if err := json.Unmarshal(bytes.TrimSpace(data), &out.Body); err != nil {
			return nil, errors.Wrap(err, "t8n: decoding txs.rlp")
		}
	}
	if req.trace && out.Result != nil {
		if err := ft.tool.collectTraces(tmp, req.debugDir, out.Result.Receipts); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "t8n: encoding input")
	}
	return os.WriteFile(path, data, 0644)
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "t8n: reading tool output")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "t8n: decoding %s", filepath.Base(path))
	}
	return nil
}
