// Package client connects to a running oracle over HTTP. It is used by
// the command-line tooling and by requester-side integrations that drive
// the synchronous execution endpoints.
package client

import (
	"fmt"
)

// Client connects to an oracle via HTTP.
type Client struct {
	oracleAddr string // oracleAddr is the HTTP address (e.g. "127.0.0.1:8080")
	backend    string // backend is the runtime reported by the oracle
}

// Status holds the oracle's settlement progress.
type Status struct {
	Cursor    uint64 `json:"cursor"`    // Cursor is the last processed event sequence
	Committed uint64 `json:"committed"` // Committed counts successful settlements
	Reverted  uint64 `json:"reverted"`  // Reverted counts failed settlements
	Backend   string `json:"backend"`   // Backend names the runtime in use
}

// NewClient creates a client connected to an oracle.
// It fetches the oracle's /status endpoint to confirm reachability.
func NewClient(oracleAddr string) (*Client, error) {
	var status Status

	if err := httpGet("http://"+oracleAddr+"/status", &status); err != nil {
		return nil, fmt.Errorf("get status:\n%w", err)
	}

	return &Client{oracleAddr: oracleAddr, backend: status.Backend}, nil
}

// Backend returns the runtime backend the oracle reported at connect time.
func (c *Client) Backend() string {
	return c.backend
}

// CreateExec asks the oracle to prepare an execution inside the given
// container. It returns the execution handle for RunExec.
func (c *Client) CreateExec(containerID, swHash, datasetRef, pubUserKey string) (string, error) {
	body := map[string]string{
		"containerID": containerID,
		"swHash":      swHash,
		"datasetRef":  datasetRef,
		"pubUserKey":  pubUserKey,
	}

	var pair [2]string
	if err := httpPostJSON("http://"+c.oracleAddr+"/exec/create", body, &pair); err != nil {
		return "", fmt.Errorf("create exec:\n%w", err)
	}

	if pair[0] != "SUCCESS" {
		return "", fmt.Errorf("create exec refused: %s", pair[1])
	}

	return pair[1], nil
}

// RunExec runs a prepared execution and settles it against the payment.
// It blocks until settlement and returns the result content address.
func (c *Client) RunExec(execID, paymentID string) (string, error) {
	body := map[string]string{
		"execID":    execID,
		"paymentID": paymentID,
	}

	var pair [2]string
	if err := httpPostJSON("http://"+c.oracleAddr+"/exec/run", body, &pair); err != nil {
		return "", fmt.Errorf("run exec:\n%w", err)
	}

	if pair[0] != "Success" {
		return "", fmt.Errorf("computation failed: %s", pair[1])
	}

	return pair[1], nil
}

// Status fetches the oracle's current settlement progress.
func (c *Client) Status() (*Status, error) {
	var status Status
	if err := httpGet("http://"+c.oracleAddr+"/status", &status); err != nil {
		return nil, fmt.Errorf("get status:\n%w", err)
	}

	return &status, nil
}
