package t8n

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// TraceBuffer accumulates opcode traces across the blocks of one chain
// build. The shape is blocks, then transactions, then trace steps.
type TraceBuffer struct {
	blocks [][][]json.RawMessage
}

// Append adds one block's traces.
func (b *TraceBuffer) Append(blockTraces [][]json.RawMessage) {
	b.blocks = append(b.blocks, blockTraces)
}

// Blocks returns the accumulated traces, or nil when tracing never ran.
func (b *TraceBuffer) Blocks() [][][]json.RawMessage {
	return b.blocks
}

// Reset drops everything.
func (b *TraceBuffer) Reset() {
	b.blocks = nil
}

// collectTraces reads the per-transaction trace files the tool wrote into
// baseDir and appends them to the buffer. Trace files are JSON lines, one
// file per receipt, named after the transaction index and hash.
func (t *Tool) collectTraces(baseDir, debugDir string, receipts []*Receipt) error {
	blockTraces := make([][]json.RawMessage, 0, len(receipts))
	for i, r := range receipts {
		name := fmt.Sprintf("trace-%d-%s.jsonl", i, r.TxHash.Hex())
		path := filepath.Join(baseDir, name)
		steps, err := readTraceFile(path)
		if err != nil {
			return err
		}
		if debugDir != "" {
			if err := copyFile(path, filepath.Join(debugDir, name)); err != nil {
				return err
			}
		}
		blockTraces = append(blockTraces, steps)
	}
	t.traces.Append(blockTraces)
	return nil
}

func readTraceFile(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "t8n: opening trace file")
	}
	defer f.Close()

	var steps []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		steps = append(steps, json.RawMessage(append([]byte(nil), line...)))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "t8n: reading trace file")
	}
	return steps, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
