package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tasoskalogero/blackboxchain/internal/result"
)

// Client talks to a Docker-style runtime API over a unix socket or TCP.
type Client struct {
	baseURL     string        // baseURL is the control-plane URL used in requests
	client      *http.Client  // client is the underlying HTTP client
	callTimeout time.Duration // callTimeout bounds every single call
}

// NewClient creates a runtime client for the given address.
// An address starting with "/" or "unix://" is treated as a unix socket
// path; anything else as a TCP base URL.
func NewClient(address string, callTimeout time.Duration) *Client {
	if socket, ok := socketPath(address); ok {
		transport := &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		}

		return &Client{
			baseURL:     "http://runtime",
			client:      &http.Client{Transport: transport},
			callTimeout: callTimeout,
		}
	}

	return &Client{
		baseURL:     address,
		client:      &http.Client{},
		callTimeout: callTimeout,
	}
}

// socketPath extracts the unix socket path from an address, if any.
func socketPath(address string) (string, bool) {
	if path, ok := strings.CutPrefix(address, "unix://"); ok {
		return path, true
	}

	if strings.HasPrefix(address, "/") {
		return address, true
	}

	return "", false
}

// CreateExec submits a one-shot exec to the runtime and returns its handle.
// A response status in the known-error-code set resolves to a Failure: the
// runtime rejected the exec before anything ran.
func (c *Client) CreateExec(ctx context.Context, unit, dataset, software, pubKey string) (string, error) {
	body := map[string]any{
		"Cmd":          []string{wrapperEntrypoint, dataset, software, pubKey},
		"AttachStdout": true,
	}

	path := "/containers/" + url.PathEscape(unit) + "/exec"

	status, raw, err := c.post(ctx, path, body)
	if err != nil {
		return "", fmt.Errorf("create exec on %s: %w", unit, err)
	}

	if result.IsErrorCode(status) {
		return "", &Failure{Code: status, Message: result.ErrorMessage(status)}
	}

	if status < 200 || status >= 300 {
		return "", &Failure{Code: result.CodeCreateExecFailed, Message: result.ErrorMessage(result.CodeCreateExecFailed)}
	}

	var created struct {
		ID string `json:"Id"`
	}

	if err := json.Unmarshal(raw, &created); err != nil || created.ID == "" {
		return "", &Failure{Code: result.CodeCreateExecFailed, Message: result.ErrorMessage(result.CodeCreateExecFailed)}
	}

	return created.ID, nil
}

// RunExec starts a previously created exec and returns its combined output.
// The full buffer is returned once the stream ends; no partial consumption.
func (c *Client) RunExec(ctx context.Context, handle string) (string, error) {
	path := "/exec/" + url.PathEscape(handle) + "/start"

	status, raw, err := c.post(ctx, path, struct{}{})
	if err != nil {
		return "", fmt.Errorf("run exec %s: %w", handle, err)
	}

	if status < 200 || status >= 300 {
		code := result.CodeRunExecFailed
		if result.IsErrorCode(status) {
			code = status
		}

		return "", &Failure{Code: code, Message: result.ErrorMessage(code)}
	}

	return string(raw), nil
}

// Alive probes whether the execution unit is currently running.
func (c *Client) Alive(ctx context.Context, unit string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	path := "/containers/" + url.PathEscape(unit) + "/json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", unit, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("probe %s: status %d", unit, resp.StatusCode)
	}

	var inspect struct {
		State struct {
			Running bool `json:"Running"`
		} `json:"State"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&inspect); err != nil {
		return false, fmt.Errorf("decode inspect response: %w", err)
	}

	return inspect.State.Running, nil
}

// post sends a JSON body and returns the response status and full body.
func (c *Client) post(ctx context.Context, path string, body any) (int, []byte, error) {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, raw, nil
}
