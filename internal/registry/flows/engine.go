// Package flows implements the transactional command flows of the registry.
//
// Every flow runs inside one entity-group transaction. A dry run executes
// the identical flow code and discards the transaction instead of
// committing, so its result predicts the live run against the same state.
package flows

import (
	"context"
	"errors"
	"log"

	apperrors "github.com/registrolabs/corenic/internal/platform/errors"
	"github.com/registrolabs/corenic/internal/registry/storage"
)

// Mode selects whether a flow's writes commit.
type Mode int

const (
	// ModeLive commits the flow's writes.
	ModeLive Mode = iota
	// ModeDryRun executes the flow and rolls its writes back.
	ModeDryRun
)

// FlowFn is one command flow, executed inside a transaction. It returns the
// response payload and the numeric success result code.
type FlowFn func(ctx context.Context, tx storage.Transaction) (any, int, error)

// Result is the outcome of an engine run.
type Result struct {
	// Code is the numeric protocol result code.
	Code int
	// ResData is the response payload of a successful flow.
	ResData any
	// Committed reports whether the transaction persisted. False for dry
	// runs and for every failure.
	Committed bool
}

// Engine runs flows with contention retry and error-to-result mapping.
type Engine struct {
	Store  storage.Transactor
	Logger *log.Logger
	// MaxAttempts bounds contention retries per command. Zero means the
	// default of 3.
	MaxAttempts int
}

func (e *Engine) maxAttempts() int {
	if e.MaxAttempts > 0 {
		return e.MaxAttempts
	}
	return 3
}

// Run executes one flow. Business failures map to their protocol result
// codes; internal failures are logged with full detail and surfaced as an
// opaque 2400 so no internal state leaks to the caller.
func (e *Engine) Run(ctx context.Context, mode Mode, fn FlowFn) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts(); attempt++ {
		var resData any
		var code int
		err := e.Store.RunInTransaction(ctx, mode == ModeLive, func(tx storage.Transaction) error {
			var ferr error
			resData, code, ferr = fn(ctx, tx)
			return ferr
		})
		if err == nil {
			if code == 0 {
				code = apperrors.EPPSuccess
			}
			return Result{Code: code, ResData: resData, Committed: mode == ModeLive}, nil
		}

		if errors.Is(err, storage.ErrContention) {
			lastErr = err
			if e.Logger != nil {
				e.Logger.Printf("transaction contention, attempt %d/%d: %v", attempt, e.maxAttempts(), err)
			}
			continue
		}
		return e.failure(err)
	}
	return e.failure(lastErr)
}

func (e *Engine) failure(err error) (Result, error) {
	code := apperrors.GetCode(err)
	if apperrors.IsBusiness(err) && code != apperrors.CodeUnknown && code != apperrors.CodeCommandFailed {
		return Result{Code: code.EPPCode()}, err
	}
	if e.Logger != nil {
		e.Logger.Printf("flow failed: %v", err)
	}
	return Result{Code: apperrors.EPPCommandFailed},
		apperrors.Wrap(apperrors.CodeCommandFailed, "command failed", err)
}
