package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tasoskalogero/blackboxchain/internal/ledger"
	"github.com/tasoskalogero/blackboxchain/internal/logger"
	"github.com/tasoskalogero/blackboxchain/internal/result"
)

// SettleExec drives the reduced pipeline behind the synchronous trigger:
// the exec was already created by the caller, so it runs, interprets and
// settles against the payment ID. Validation happened at create time.
// No result owner is known on this path, so failures only revert payment;
// no error record is written.
func (c *Controller) SettleExec(ctx context.Context, execID, paymentID string) (*Disposition, error) {
	unlock := c.lock(paymentID)
	defer unlock()

	if d, err := c.settled(paymentID); d != nil || err != nil {
		return d, err
	}

	raw, err := c.callRuntime(ctx, func() (string, error) {
		return c.runner.RunExec(ctx, execID)
	})
	if err != nil {
		// A canceled caller is not a verdict on the computation, which
		// may still be running. Leave the payment unsettled.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run exec interrupted: %w", ctx.Err())
		}

		outcome := classifyRunError(err)
		logger.Warn("exec run failed", "exec", execID, "payment", paymentID, "code", outcome.Code)
		return c.settleFailure(ctx, paymentID, "", outcome.Message, raw)
	}

	outcome := result.Interpret(raw)
	if !outcome.Success {
		return c.settleFailure(ctx, paymentID, "", outcome.Message, raw)
	}

	if err := c.ledger.CommitPayment(ctx, paymentID); err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			logger.Warn("payment commit rejected", "payment", paymentID, "error", err)
			return c.settleFailure(ctx, paymentID, "", ReasonFulfillmentRejected, raw)
		}

		logger.Error("payment commit unresolved, manual reconciliation may be required",
			"payment", paymentID,
			"error", err,
		)

		return nil, fmt.Errorf("commit payment %s: %w", paymentID, err)
	}

	d := &Disposition{
		ComputationID: paymentID,
		Committed:     true,
		Reference:     outcome.Address,
		SettledAt:     time.Now().UTC(),
	}

	if err := c.journal.Record(d, []byte(raw)); err != nil {
		return nil, err
	}

	logger.Info("exec settled", "payment", paymentID, "result", outcome.Address)

	return d, nil
}
