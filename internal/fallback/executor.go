// Package fallback wraps one routed model call with bounded, cycle-safe
// retry across the configured fallback chains.
package fallback

import (
	"context"
	"log/slog"

	"github.com/natemoovs/zerochurn-ai/internal/catalog"
	"github.com/natemoovs/zerochurn-ai/internal/provider"
)

// Operation performs one model invocation. It wraps the caller's actual
// external call and may fail with a classifiable provider error.
type Operation func(ctx context.Context, model catalog.Model) (*provider.Response, error)

// OnFallback observes one fallback transition. It runs synchronously between
// attempts and must not block.
type OnFallback func(fromKey, toKey string, err error)

// Outcome reports a finished traversal. ModelUsed is the model of the last
// attempt, whether or not it succeeded.
type Outcome struct {
	Response      *provider.Response
	ModelUsed     string
	Attempts      int
	FallbacksUsed int
}

// Executor traverses fallback chains. Chains are authored independently per
// model and may reference each other, so the union of chains can cycle; a
// per-call attempted set keeps every traversal forward-only regardless.
type Executor struct {
	catalog *catalog.Catalog
	chains  func() map[string][]string
	logger  *slog.Logger
}

// New creates an executor reading chains through the given accessor, so a
// config reload is picked up on the next call.
func New(cat *catalog.Catalog, chains func() map[string][]string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		catalog: cat,
		chains:  chains,
		logger:  logger,
	}
}

// Execute runs op against primaryKey, walking the fallback chains on
// transient failure. At most maxAttempts invocations of op occur. A
// non-transient failure is returned unchanged immediately. When the chain (or
// the attempt budget) runs out, the last error is returned wrapped in
// *provider.ChainExhaustedError. onFallback, when non-nil, fires once per
// transition before the next attempt.
//
// An unknown primaryKey resolves through the catalog's safe default. Chain
// candidates missing from the catalog are skipped, and no resolved key is
// ever attempted twice within one call, even when two chains both lead to it.
func (e *Executor) Execute(ctx context.Context, primaryKey string, maxAttempts int, op Operation, onFallback OnFallback) (Outcome, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	chains := e.chains()
	model := e.catalog.Get(primaryKey)
	attempted := make(map[string]bool, maxAttempts)

	var lastErr error
	attempts := 0

	for {
		attempts++
		attempted[model.Key] = true

		resp, err := op(ctx, model)
		if err == nil {
			return Outcome{
				Response:      resp,
				ModelUsed:     model.Key,
				Attempts:      attempts,
				FallbacksUsed: attempts - 1,
			}, nil
		}

		outcome := Outcome{ModelUsed: model.Key, Attempts: attempts, FallbacksUsed: attempts - 1}

		if !provider.IsTransient(err) {
			// Permanent failure: propagate unchanged, consume no more budget.
			return outcome, err
		}
		lastErr = err

		if attempts >= maxAttempts {
			return outcome, &provider.ChainExhaustedError{Attempts: attempts, LastKey: model.Key, Err: lastErr}
		}

		next, ok := e.nextCandidate(chains[model.Key], attempted)
		if !ok {
			return outcome, &provider.ChainExhaustedError{Attempts: attempts, LastKey: model.Key, Err: lastErr}
		}

		if onFallback != nil {
			onFallback(model.Key, next.Key, err)
		}
		model = next
	}
}

// nextCandidate returns the first chain candidate that resolves to a model
// not yet attempted this call.
func (e *Executor) nextCandidate(chain []string, attempted map[string]bool) (catalog.Model, bool) {
	for _, key := range chain {
		m, ok := e.catalog.Lookup(key)
		if !ok {
			e.logger.Warn("unknown model in fallback chain, skipping", "key", key)
			continue
		}
		if attempted[m.Key] {
			continue
		}
		return m, true
	}
	return catalog.Model{}, false
}
