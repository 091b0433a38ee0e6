// Package settle sequences validation, execution and interpretation for one
// computation request and applies exactly one terminal settlement action:
// commit payment and store the result, or record the error and revert.
package settle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tasoskalogero/blackboxchain/internal/ledger"
	"github.com/tasoskalogero/blackboxchain/internal/logger"
	"github.com/tasoskalogero/blackboxchain/internal/match"
	"github.com/tasoskalogero/blackboxchain/internal/result"
	"github.com/tasoskalogero/blackboxchain/internal/runtime"
)

// Failure reasons recorded on the ledger.
const (
	ReasonMismatch            = "resource mismatch or insufficient funds"
	ReasonPreExec             = "pre-execution error"
	ReasonFulfillmentRejected = "fulfillment rejected"
	ReasonStorageFailed       = "result storage failed"
)

// Disposition is the terminal classification of one request. It is the
// only state written back to the ledger and is never re-decided once
// recorded in the journal.
type Disposition struct {
	ComputationID string    `json:"computationID"`       // ComputationID is the settled request
	Committed     bool      `json:"committed"`           // Committed: payment released to providers
	Reference     string    `json:"reference,omitempty"` // Reference is the result content address
	Reason        string    `json:"reason,omitempty"`    // Reason is the recorded failure message
	SettledAt     time.Time `json:"settledAt"`           // SettledAt is the settlement time
}

// Runner creates and starts one-shot executions inside a sandbox.
type Runner interface {
	CreateExec(ctx context.Context, unit, dataset, software, pubKey string) (string, error)
	RunExec(ctx context.Context, handle string) (string, error)
}

// Matcher validates a request against the resource registries.
type Matcher interface {
	Match(ctx context.Context, req *ledger.ComputationRequest) match.Report
}

// Config holds the controller's retry policy and execution identity.
type Config struct {
	RuntimeRetries int           // RuntimeRetries bounds transport retries against the runtime
	RetryDelay     time.Duration // RetryDelay is the initial delay between retries
	UserPubKey     string        // UserPubKey is passed to the wrapper for result encryption
}

// Controller is the settlement state machine. Distinct computation IDs
// settle fully in parallel; a per-ID lock plus the journal guarantee at
// most one terminal settlement action per ID.
type Controller struct {
	ledger  ledger.Client // ledger applies settlement writes
	matcher Matcher       // matcher validates requests
	runner  Runner        // runner drives sandbox executions
	journal *Journal      // journal records dispositions
	cfg     Config

	locks map[string]*idLock // locks serializes settlements per ID
	mu    sync.Mutex         // mu protects locks
}

// NewController creates a Controller.
func NewController(lc ledger.Client, m Matcher, r Runner, j *Journal, cfg Config) *Controller {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}

	return &Controller{
		ledger:  lc,
		matcher: m,
		runner:  r,
		journal: j,
		cfg:     cfg,
		locks:   make(map[string]*idLock),
	}
}

// Settle drives one submitted-computation event to a terminal disposition.
// Redelivery of an already-settled ID returns the recorded disposition
// without touching the ledger. An error means no disposition was decided
// and the event may be redelivered.
func (c *Controller) Settle(ctx context.Context, ev ledger.ComputationEvent) (*Disposition, error) {
	unlock := c.lock(ev.ComputationID)
	defer unlock()

	if d, err := c.settled(ev.ComputationID); d != nil || err != nil {
		return d, err
	}

	req, err := c.ledger.Computation(ctx, ev.ComputationID)
	if err != nil {
		return nil, fmt.Errorf("read computation %s: %w", ev.ComputationID, err)
	}

	// The event is only a notification; the ledger record is authoritative.
	if req.DatasetID != ev.DatasetID || req.SoftwareID != ev.SoftwareID || req.ContainerID != ev.ContainerID {
		logger.Warn("event diverges from ledger record, using record",
			"computation", req.ID,
		)
	}

	// Validating
	report := c.matcher.Match(ctx, req)
	if !report.Valid() {
		logger.Info("computation invalid",
			"computation", req.ID,
			"fundsOK", report.FundsOK,
			"datasetMatch", report.DatasetMatch,
			"softwareMatch", report.SoftwareMatch,
			"containerAlive", report.ContainerAlive,
		)

		return c.settleFailure(ctx, req.ID, req.ResultOwner, ReasonMismatch, "")
	}

	logger.Info("computation valid", "computation", req.ID, "unit", report.Artifacts.Unit)

	// Executing
	handle, err := c.callRuntime(ctx, func() (string, error) {
		return c.runner.CreateExec(ctx, report.Artifacts.Unit, report.Artifacts.Dataset, report.Artifacts.Software, c.cfg.UserPubKey)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("create exec interrupted: %w", ctx.Err())
		}

		// The computation never ran; this is distinct from a computation
		// that ran and produced a known error.
		logger.Warn("create exec failed", "computation", req.ID, "error", err)
		return c.settleFailure(ctx, req.ID, req.ResultOwner, ReasonPreExec, "")
	}

	raw, err := c.callRuntime(ctx, func() (string, error) {
		return c.runner.RunExec(ctx, handle)
	})
	if err != nil {
		// A canceled caller is not a verdict on the computation, which
		// may still be running. Leave the request unsettled so the event
		// can be redelivered.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run exec interrupted: %w", ctx.Err())
		}

		outcome := classifyRunError(err)
		logger.Warn("run exec failed", "computation", req.ID, "code", outcome.Code)
		return c.settleFailure(ctx, req.ID, req.ResultOwner, outcome.Message, raw)
	}

	// Interpreting
	outcome := result.Interpret(raw)
	if !outcome.Success {
		logger.Info("computation reported error",
			"computation", req.ID,
			"code", outcome.Code,
			"message", outcome.Message,
		)

		return c.settleFailure(ctx, req.ID, req.ResultOwner, outcome.Message, raw)
	}

	return c.settleSuccess(ctx, req, outcome.Address, raw)
}

// settleSuccess commits payment and stores the result. Payment commit is
// the gate that authorizes result storage; a storage failure afterwards
// triggers the compensating revert.
func (c *Controller) settleSuccess(ctx context.Context, req *ledger.ComputationRequest, address, raw string) (*Disposition, error) {
	if err := c.ledger.CommitPayment(ctx, req.ID); err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			logger.Warn("payment commit rejected", "computation", req.ID, "error", err)
			return c.settleFailure(ctx, req.ID, req.ResultOwner, ReasonFulfillmentRejected, raw)
		}

		// Neither committed nor reverted: funds are in an ambiguous state
		// and need manual reconciliation. Nothing is journaled so the
		// event can be redelivered once the ledger is reachable.
		logger.Error("payment commit unresolved, manual reconciliation may be required",
			"computation", req.ID,
			"error", err,
		)

		return nil, fmt.Errorf("commit payment %s: %w", req.ID, err)
	}

	resultID, err := result.AddressToBytes32(address)
	if err == nil {
		err = c.ledger.StoreResult(ctx, req.ResultOwner, resultID)
	}

	if err != nil {
		// Compensating action: payment was already committed, so revert it
		// explicitly after recording the storage failure.
		logger.Warn("result storage failed, reverting payment", "computation", req.ID, "error", err)
		return c.settleFailure(ctx, req.ID, req.ResultOwner, ReasonStorageFailed, raw)
	}

	d := &Disposition{
		ComputationID: req.ID,
		Committed:     true,
		Reference:     address,
		SettledAt:     time.Now().UTC(),
	}

	if err := c.journal.Record(d, []byte(raw)); err != nil {
		return nil, err
	}

	logger.Info("computation settled", "computation", req.ID, "result", address)

	return d, nil
}

// settleFailure records the failure reason and reverts payment, in that
// order. Both are attempted even if the first fails; their own failures
// are logged, not returned, so a broken ledger write cannot loop the
// failure path forever.
func (c *Controller) settleFailure(ctx context.Context, id, owner, reason, raw string) (*Disposition, error) {
	if owner != "" {
		if err := c.ledger.RecordError(ctx, owner, reason); err != nil {
			logger.Warn("record error failed", "computation", id, "error", err)
		}
	}

	if err := c.ledger.RevertPayment(ctx, id); err != nil {
		logger.Error("revert payment failed, manual reconciliation may be required",
			"computation", id,
			"error", err,
		)
	}

	d := &Disposition{
		ComputationID: id,
		Reason:        reason,
		SettledAt:     time.Now().UTC(),
	}

	if err := c.journal.Record(d, []byte(raw)); err != nil {
		return nil, err
	}

	logger.Info("computation reverted", "computation", id, "reason", reason)

	return d, nil
}

// callRuntime runs one runtime operation, retrying transport failures
// with doubling delay. Classified runtime failures are definitive.
func (c *Controller) callRuntime(ctx context.Context, fn func() (string, error)) (string, error) {
	delay := c.cfg.RetryDelay

	var out string
	var err error

	for attempt := 0; attempt <= c.cfg.RuntimeRetries; attempt++ {
		out, err = fn()
		if err == nil {
			return out, nil
		}

		var failure *runtime.Failure
		if errors.As(err, &failure) {
			return "", err
		}

		if attempt == c.cfg.RuntimeRetries {
			break
		}

		logger.Debug("runtime call failed, retrying", "attempt", attempt+1, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}

		delay *= 2
	}

	return "", fmt.Errorf("runtime retries exhausted: %w", err)
}

// classifyRunError maps a failed RunExec to its outcome.
func classifyRunError(err error) result.Outcome {
	var failure *runtime.Failure
	if errors.As(err, &failure) {
		return result.Outcome{Code: failure.Code, Message: failure.Message}
	}

	code := result.CodeRunExecFailed

	return result.Outcome{Code: code, Message: result.ErrorMessage(code)}
}

// settled returns the recorded disposition for an ID, if any.
func (c *Controller) settled(id string) (*Disposition, error) {
	d, err := c.journal.Disposition(id)
	if err != nil {
		return nil, err
	}

	if d != nil {
		logger.Debug("computation already settled", "computation", id)
	}

	return d, nil
}

// idLock is a per-computation mutex with a waiter count so entries can
// be dropped once nobody holds or waits for them.
type idLock struct {
	mu   sync.Mutex
	refs int
}

// lock serializes settlement per computation ID and returns the unlock.
func (c *Controller) lock(id string) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &idLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}
