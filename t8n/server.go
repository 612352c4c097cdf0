package t8n

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Connection retry budget for the server transport. Only transport-level
// failures are retried; HTTP error statuses are fatal.
const (
	serverRetries    = 5
	serverRetryDelay = 100 * time.Millisecond
)

// serverTransport posts requests to a long-lived server-mode tool.
type serverTransport struct {
	tool   *Tool
	client *http.Client
}

func (sv *serverTransport) evaluate(ctx context.Context, req *toolRequest) (*Output, error) {
	var traceDir string
	if req.trace {
		dir, err := os.MkdirTemp("", "t8n-trace-")
		if err != nil {
			return nil, errors.Wrap(err, "t8n: creating trace dir")
		}
		defer os.RemoveAll(dir)
		traceDir = dir
	}

	sreq := req.serverRequest()
	sreq.Trace = req.trace
	sreq.OutputBasedir = traceDir
	body, err := json.Marshal(sreq)
	if err != nil {
		return nil, errors.Wrap(err, "t8n: encoding request")
	}

	timeout := normalTimeout
	if req.slow {
		timeout = slowTimeout
	}
	respBody, status, err := sv.post(ctx, body, timeout)

	if req.debugDir != "" {
		if derr := dumpServerDebug(req.debugDir, sv.tool.cfg.ServerURL, req, body, respBody, status); derr != nil {
			sv.tool.log.Warn("debug dump failed", "err", derr)
		}
	}
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("t8n: server returned status %d, response: %s", status, respBody)
	}

	out := &Output{}
	if err := json.Unmarshal(respBody, out); err != nil {
		return nil, errors.Wrap(err, "t8n: decoding server response")
	}
	if req.trace && out.Result != nil {
		if err := sv.tool.collectTraces(traceDir, req.debugDir, out.Result.Receipts); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// post sends the request, retrying connection failures with doubling delay
// up to the retry budget.
func (sv *serverTransport) post(ctx context.Context, body []byte, timeout time.Duration) ([]byte, int, error) {
	retries := serverRetries
	delay := serverRetryDelay
	for {
		respBody, status, err := sv.postOnce(ctx, body, timeout)
		if err == nil || !isConnectionError(err) {
			return respBody, status, err
		}
		retries--
		if retries == 0 {
			return nil, 0, err
		}
		sv.tool.log.Debug("t8n server connection failed, retrying", "delay", delay, "err", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
		delay *= 2
	}
}

func (sv *serverTransport) postOnce(ctx context.Context, body []byte, timeout time.Duration) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sv.tool.cfg.ServerURL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, errors.Wrap(err, "t8n: building request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := sv.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "t8n: posting to server")
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "t8n: reading server response")
	}
	return respBody, resp.StatusCode, nil
}

// isConnectionError reports whether err is a transport-level failure worth
// retrying. Timeouts and cancellations are fatal: a request that made it to
// the server must not be replayed on the computation budget.
func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
