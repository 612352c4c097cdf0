// The t8nserver command exposes a stream-mode transition tool binary over
// HTTP, giving the server transport a long-lived counterpart:
//
//	t8nserver -addr :8551 -bin ./evm -subcommand t8n
//
// Each POST / carries one evaluation request; the tool runs once per request
// and its output document is relayed back verbatim.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/inconshreveable/log15.v2"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:8551", "Listen address")
		binary     = flag.String("bin", "", "Path to the transition tool binary")
		subcommand = flag.String("subcommand", "t8n", "Subcommand of the tool binary")
		timeout    = flag.Uint("timeout", 180, "Per-request tool timeout in seconds")
	)
	flag.Parse()
	if *binary == "" {
		fmt.Fprintln(os.Stderr, "Missing -bin option, please supply a transition tool binary.")
		os.Exit(1)
	}

	log := log15.New("module", "t8nserver")
	srv := &server{
		binary:     *binary,
		subcommand: *subcommand,
		timeout:    time.Duration(*timeout) * time.Second,
		log:        log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/", srv.handleEvaluate).Methods("POST")

	log.Info("listening", "addr", *addr, "binary", *binary)
	if err := http.ListenAndServe(*addr, router); err != nil {
		log.Crit("server stopped", "err", err)
		os.Exit(1)
	}
}

type server struct {
	binary     string
	subcommand string
	timeout    time.Duration
	log        log15.Logger
}

// request is the wire format of one evaluation. The input document is
// relayed to the tool untouched; only the state envelope becomes arguments.
type request struct {
	State struct {
		Fork    string `json:"fork"`
		ChainID uint64 `json:"chainid"`
		Reward  int64  `json:"reward"`
	} `json:"state"`
	Input json.RawMessage `json:"input"`

	Trace         bool   `json:"trace,omitempty"`
	OutputBasedir string `json:"output-basedir,omitempty"`
}

func (s *server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.State.Fork == "" {
		http.Error(w, "missing state.fork", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	args := []string{}
	if s.subcommand != "" {
		args = append(args, s.subcommand)
	}
	args = append(args,
		"--input.alloc=stdin",
		"--input.env=stdin",
		"--input.txs=stdin",
		"--output.result=stdout",
		"--output.alloc=stdout",
		"--output.body=stdout",
		"--state.fork="+req.State.Fork,
		fmt.Sprintf("--state.chainid=%d", req.State.ChainID),
		fmt.Sprintf("--state.reward=%d", req.State.Reward),
	)
	if req.Trace {
		args = append(args, "--trace")
		if req.OutputBasedir != "" {
			args = append(args, "--output.basedir="+req.OutputBasedir)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Stdin = bytes.NewReader(req.Input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	s.log.Debug("tool finished", "fork", req.State.Fork, "elapsed", time.Since(start), "err", err)
	if err != nil {
		http.Error(w, fmt.Sprintf("tool failed: %v\n%s", err, stderr.String()), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(stdout.Bytes())
}
