// Package budget tracks daily AI spend in Redis. Checks fail open: with no
// Redis client, or when Redis errors, spending is always allowed — the budget
// is a guard rail, not a point of failure in the call path.
package budget

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrExceeded is returned by enforcing callers when the daily limit is spent.
var ErrExceeded = errors.New("daily AI budget exceeded")

// Spend amounts are stored as integer microdollars so Redis counters stay
// exact; a $0.00092 call is 920 microdollars.
const microPerUSD = 1_000_000

// Result is the outcome of a budget check.
type Result struct {
	Allowed  bool
	SpentUSD float64
	LimitUSD float64
}

// Tracker accumulates spend per scope per UTC day.
type Tracker struct {
	rdb *redis.Client
}

// New creates a tracker. A nil client disables tracking; every check passes
// and every record is a no-op.
func New(rdb *redis.Client) *Tracker {
	return &Tracker{rdb: rdb}
}

func dailyKey(scope string) string {
	day := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("zerochurn:ai:budget:daily:%s:%s", scope, day)
}

func toMicro(usd float64) int64 {
	return int64(math.Round(usd * microPerUSD))
}

// Check reports whether the scope is under its daily limit. A non-positive
// limit means unlimited. Redis failures allow the call.
func (t *Tracker) Check(ctx context.Context, scope string, limitUSD float64) Result {
	if t.rdb == nil || limitUSD <= 0 {
		return Result{Allowed: true, LimitUSD: limitUSD}
	}

	spent, err := t.rdb.Get(ctx, dailyKey(scope)).Int64()
	if err != nil && err != redis.Nil {
		return Result{Allowed: true, LimitUSD: limitUSD}
	}

	return Result{
		Allowed:  spent < toMicro(limitUSD),
		SpentUSD: float64(spent) / microPerUSD,
		LimitUSD: limitUSD,
	}
}

// Record adds one call's cost to the scope's daily counter. The key expires
// an hour after the UTC day ends so stale days clean themselves up.
func (t *Tracker) Record(ctx context.Context, scope string, costUSD float64) error {
	micro := toMicro(costUSD)
	if t.rdb == nil || micro <= 0 {
		return nil
	}

	now := time.Now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

	pipe := t.rdb.Pipeline()
	pipe.IncrBy(ctx, dailyKey(scope), micro)
	pipe.Expire(ctx, dailyKey(scope), endOfDay.Sub(now)+time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}
