package t8n

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// The debug dump is a diagnostic side channel: every evaluation writes its
// inputs, the raw tool output and a replay script into a numbered
// subdirectory, and none of it affects the returned Output.

func callDir(base string, call int) string {
	return filepath.Join(base, fmt.Sprintf("call-%03d", call))
}

func dumpFilesystemDebug(dir, tmp, binary string, args []string, runErr error, stdout, stderr *bytes.Buffer) error {
	if err := copyTree(tmp, dir); err != nil {
		return err
	}
	replayOut := filepath.Join(dir, "t8n.sh.out")
	call := binary + " " + strings.Join(args, " ")
	call = strings.ReplaceAll(call, filepath.Join(tmp, "input"), filepath.Join(dir, "input"))
	call = strings.ReplaceAll(call, tmp, replayOut)
	script := fmt.Sprintf(`#!/bin/bash
rm -rf %[1]s/t8n.sh.out  # hard-coded to avoid surprises
mkdir -p %[1]s/t8n.sh.out/output
%[2]s
`, dir, call)

	return dumpFiles(dir, map[string][]byte{
		"exit.txt":   exitStatus(runErr),
		"stdout.txt": stdout.Bytes(),
		"stderr.txt": stderr.Bytes(),
		"t8n.sh":     []byte(script),
	})
}

func dumpStreamDebug(dir, traceDir, binary string, args []string, req *toolRequest, stdin []byte, runErr error, stdout, stderr *bytes.Buffer) error {
	if err := dumpInput(dir, req); err != nil {
		return err
	}
	call := binary + " " + strings.Join(args, " ")
	if traceDir != "" {
		call = strings.ReplaceAll(call, traceDir, filepath.Join(dir, "t8n.sh.out"))
	}
	script := fmt.Sprintf(`#!/bin/bash
rm -rf %[1]s/t8n.sh.out  # hard-coded to avoid surprises
mkdir %[1]s/t8n.sh.out  # unused if tracing is not enabled
%[2]s < %[1]s/stdin.txt
`, dir, call)

	return dumpFiles(dir, map[string][]byte{
		"stdin.txt":  stdin,
		"exit.txt":   exitStatus(runErr),
		"stdout.txt": stdout.Bytes(),
		"stderr.txt": stderr.Bytes(),
		"t8n.sh":     []byte(script),
	})
}

func dumpServerDebug(dir, url string, req *toolRequest, body, respBody []byte, status int) error {
	if err := dumpInput(dir, req); err != nil {
		return err
	}
	info := fmt.Sprintf("Server URL: %s\nStatus: %d\n", url, status)
	return dumpFiles(dir, map[string][]byte{
		"request.json":  body,
		"response.json": respBody,
		"info.txt":      []byte(info),
	})
}

func dumpInput(dir string, req *toolRequest) error {
	for name, v := range map[string]interface{}{
		"alloc.json": req.input.Alloc,
		"env.json":   req.input.Env,
		"txs.json":   req.input.Txs,
	} {
		path := filepath.Join(dir, "input", name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := writeJSONFile(path, v); err != nil {
			return err
		}
	}
	return nil
}

func dumpFiles(dir string, files map[string][]byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for name, data := range files {
		mode := os.FileMode(0644)
		if strings.HasSuffix(name, ".sh") {
			mode = 0755
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, mode); err != nil {
			return err
		}
	}
	return nil
}

func exitStatus(err error) []byte {
	if err == nil {
		return []byte("0\n")
	}
	return []byte(err.Error() + "\n")
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}
