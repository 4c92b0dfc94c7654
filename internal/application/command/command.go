// Package command contains the write operations of the progression engine
// (CQRS - Commands). Every handler runs its state changes in one store
// transaction, retries transient storage failures, and publishes domain
// events only after the transaction committed.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/pkg/logger"
	"github.com/codequest-jr/progression-hub/pkg/retry"
)

// DefaultTxAttempts is how many times a transaction is tried before
// ErrPersistence is surfaced.
const DefaultTxAttempts = 3

// invalid builds a validation error for a command.
func invalid(op, format string, args ...interface{}) error {
	return shared.NewDomainError("command", op, shared.ErrValidation, fmt.Sprintf(format, args...))
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION RUNNER
// ══════════════════════════════════════════════════════════════════════════════

// txRunner executes store transactions with retry and error classification.
type txRunner struct {
	store   progression.Store
	retrier *retry.Retrier
}

func newTxRunner(store progression.Store, attempts int, log *logger.Logger, op string) txRunner {
	if attempts <= 0 {
		attempts = DefaultTxAttempts
	}
	r := retry.TransactionRetrier(shared.IsRetryable, attempts,
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying transaction",
				logger.Operation(op),
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)
	return txRunner{store: store, retrier: r}
}

// run executes fn in a transaction. fn may run more than once, so it must
// derive all of its state from the transaction. Business rejections are
// returned unchanged; every other failure becomes ErrPersistence.
func (r txRunner) run(ctx context.Context, fn func(tx progression.Tx) error) error {
	err := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.WithTx(ctx, fn)
	})
	return persistenceError(err)
}

// persistenceError classifies an error coming out of the store.
func persistenceError(err error) error {
	switch {
	case err == nil:
		return nil
	case progression.IsRejection(err), errors.Is(err, errRolledBack):
		return err
	default:
		return progression.ErrPersistence.Wrap(err)
	}
}

// errRolledBack aborts a transaction whose outcome was already decided
// without writing, such as a lost insert race. It is never returned to callers.
var errRolledBack = errors.New("transaction rolled back")

func publishAll(publisher shared.EventPublisher, log *logger.Logger, correlationID string, events []shared.Event) {
	for _, e := range events {
		if err := publisher.Publish(shared.WithCorrelation(e, correlationID)); err != nil {
			log.Warn("failed to publish event",
				logger.String("event_type", string(e.EventType())),
				logger.Err(err),
			)
		}
	}
}
