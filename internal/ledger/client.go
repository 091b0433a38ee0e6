package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrRejected is returned when the ledger contract refuses a write.
	// Rejections are definitive and must not be retried.
	ErrRejected = errors.New("ledger rejected the operation")

	// ErrNotFound is returned when a registry entry does not exist.
	ErrNotFound = errors.New("not found in registry")
)

// Client exposes the ledger operations the settlement core consumes.
type Client interface {
	// Computation reads one computation request by ID.
	Computation(ctx context.Context, id string) (*ComputationRequest, error)

	// Dataset, Software and Container read resource descriptors.
	Dataset(ctx context.Context, id string) (*ResourceDescriptor, error)
	Software(ctx context.Context, id string) (*ResourceDescriptor, error)
	Container(ctx context.Context, id string) (*ResourceDescriptor, error)

	// CommitPayment releases the posted funds to the providers.
	CommitPayment(ctx context.Context, id string) error

	// RevertPayment returns the posted funds to the requester.
	// Idempotent: an already-settled response counts as success.
	RevertPayment(ctx context.Context, id string) error

	// StoreResult records the fixed-width result identifier for the owner.
	StoreResult(ctx context.Context, owner string, result [32]byte) error

	// RecordError records a failure message for the owner.
	RecordError(ctx context.Context, owner, message string) error

	// Events returns submitted-computation events with seq >= from.
	Events(ctx context.Context, from uint64) ([]ComputationEvent, error)
}

// HTTPClient talks JSON over HTTP to a chain node.
type HTTPClient struct {
	baseURL     string        // baseURL is the chain node address, e.g. "http://localhost:9545"
	client      *http.Client  // client is the underlying HTTP client
	callTimeout time.Duration // callTimeout bounds every single call
	retries     int           // retries is the write retry bound
	retryDelay  time.Duration // retryDelay is the initial delay between write retries
}

// NewHTTPClient creates a ledger client for the given chain node URL.
func NewHTTPClient(baseURL string, callTimeout time.Duration, retries int, retryDelay time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:     baseURL,
		client:      &http.Client{},
		callTimeout: callTimeout,
		retries:     retries,
		retryDelay:  retryDelay,
	}
}

// Computation reads one computation request by ID.
func (c *HTTPClient) Computation(ctx context.Context, id string) (*ComputationRequest, error) {
	var req ComputationRequest
	if err := c.getJSON(ctx, "/computations/"+url.PathEscape(id), &req); err != nil {
		return nil, fmt.Errorf("read computation %s: %w", id, err)
	}

	return &req, nil
}

// Dataset reads a dataset descriptor.
func (c *HTTPClient) Dataset(ctx context.Context, id string) (*ResourceDescriptor, error) {
	return c.descriptor(ctx, "/datasets/", id)
}

// Software reads a software descriptor.
func (c *HTTPClient) Software(ctx context.Context, id string) (*ResourceDescriptor, error) {
	return c.descriptor(ctx, "/software/", id)
}

// Container reads a container descriptor.
func (c *HTTPClient) Container(ctx context.Context, id string) (*ResourceDescriptor, error) {
	return c.descriptor(ctx, "/containers/", id)
}

func (c *HTTPClient) descriptor(ctx context.Context, prefix, id string) (*ResourceDescriptor, error) {
	var desc ResourceDescriptor
	if err := c.getJSON(ctx, prefix+url.PathEscape(id), &desc); err != nil {
		return nil, fmt.Errorf("read descriptor %s%s: %w", prefix, id, err)
	}

	return &desc, nil
}

// CommitPayment releases the posted funds to the providers.
func (c *HTTPClient) CommitPayment(ctx context.Context, id string) error {
	return c.settle(ctx, id, "succeed")
}

// RevertPayment returns the posted funds to the requester.
func (c *HTTPClient) RevertPayment(ctx context.Context, id string) error {
	return c.settle(ctx, id, "fail")
}

// settle posts a terminal payment action and retries transport failures.
func (c *HTTPClient) settle(ctx context.Context, id, action string) error {
	path := "/computations/" + url.PathEscape(id) + "/" + action

	err := c.withRetry(ctx, func() error {
		var resp struct {
			Status string `json:"status"`
		}

		if err := c.postJSON(ctx, path, struct{}{}, &resp); err != nil {
			return err
		}

		// The ledger enforces settlement idempotency; a repeat call
		// reports already-settled and that is success for us.
		if resp.Status != "ok" && resp.Status != "already-settled" {
			return fmt.Errorf("%w: status %q", ErrRejected, resp.Status)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s computation %s: %w", action, id, err)
	}

	return nil
}

// StoreResult records the fixed-width result identifier for the owner.
func (c *HTTPClient) StoreResult(ctx context.Context, owner string, result [32]byte) error {
	body := map[string]string{
		"owner":  owner,
		"result": hex.EncodeToString(result[:]),
	}

	err := c.withRetry(ctx, func() error {
		return c.postJSON(ctx, "/results", body, nil)
	})
	if err != nil {
		return fmt.Errorf("store result for %s: %w", owner, err)
	}

	return nil
}

// RecordError records a failure message for the owner.
func (c *HTTPClient) RecordError(ctx context.Context, owner, message string) error {
	body := map[string]string{
		"owner":   owner,
		"message": message,
	}

	err := c.withRetry(ctx, func() error {
		return c.postJSON(ctx, "/errors", body, nil)
	})
	if err != nil {
		return fmt.Errorf("record error for %s: %w", owner, err)
	}

	return nil
}

// Events returns submitted-computation events with seq >= from.
func (c *HTTPClient) Events(ctx context.Context, from uint64) ([]ComputationEvent, error) {
	var events []ComputationEvent

	path := fmt.Sprintf("/events/computations?from=%d", from)
	if err := c.getJSON(ctx, path, &events); err != nil {
		return nil, fmt.Errorf("read events from %d: %w", from, err)
	}

	return events, nil
}

// withRetry runs fn up to the retry bound with doubling delay.
// Contract rejections are definitive and returned immediately.
func (c *HTTPClient) withRetry(ctx context.Context, fn func() error) error {
	delay := c.retryDelay

	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, ErrRejected) {
			return err
		}

		if attempt == c.retries {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
	}

	return fmt.Errorf("retries exhausted: %w", err)
}

// getJSON performs a GET request and decodes the JSON response.
func (c *HTTPClient) getJSON(ctx context.Context, path string, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// postJSON performs a POST request with a JSON body.
// A 2xx response is success; 4xx is a contract rejection; anything else
// is a transport failure eligible for retry.
func (c *HTTPClient) postJSON(ctx context.Context, path string, body, result any) error {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBytes))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("%w: POST %s: status %d", ErrRejected, path, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}

	if result == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
