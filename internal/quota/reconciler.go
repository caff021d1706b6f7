package quota

import (
	"context"
	"time"
)

// Status reports a user's standing against the generation quota.
type Status struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// CounterStore is the fast external counter (Redis in production).
type CounterStore interface {
	Incr(ctx context.Context, userID string, now time.Time) (int64, error)
	Count(ctx context.Context, userID string, now time.Time) (int64, error)
	Clear(ctx context.Context, userID string, now time.Time) error
}

// DurableCounter derives the authoritative usage count from rows actually
// created in the relational store. It returns the count inside the trailing
// window and the creation time of the oldest counted row (zero if none).
type DurableCounter interface {
	CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, time.Time, error)
}

// Reconciler decides whether a metered action is permitted and keeps the
// fast counter consistent with the durable source of truth. The durable
// count always wins a disagreement.
type Reconciler struct {
	counter CounterStore
	durable DurableCounter
	limit   int
	window  time.Duration

	now func() time.Time // injectable for tests
}

func NewReconciler(counter CounterStore, durable DurableCounter, limit int, window time.Duration) *Reconciler {
	return &Reconciler{
		counter: counter,
		durable: durable,
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// CheckStatus computes usage from the durable store only. It never mutates
// the external counter, so it is safe to call on page views and status
// polls. Store failures fail closed: deny rather than grant unlimited use.
func (r *Reconciler) CheckStatus(ctx context.Context, userID string) Status {
	now := r.now()
	used, oldest, err := r.durable.CountCreatedSince(ctx, userID, now.Add(-r.window))
	if err != nil {
		return Status{Allowed: false, Limit: r.limit, Used: r.limit, Remaining: 0, ResetAt: now.Add(r.window)}
	}

	resetAt := now.Add(r.window)
	if used > 0 && !oldest.IsZero() {
		resetAt = oldest.Add(r.window)
	}

	remaining := r.limit - used
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		Allowed:   used < r.limit,
		Limit:     r.limit,
		Used:      used,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Consume atomically increments the external counter and reports whether the
// increment stayed within the limit. Callers must only invoke this when the
// metered action will actually happen. Counter failures fail closed.
func (r *Reconciler) Consume(ctx context.Context, userID string) (Status, error) {
	now := r.now()
	count, err := r.counter.Incr(ctx, userID, now)
	if err != nil {
		return Status{Allowed: false, Limit: r.limit, Used: r.limit, Remaining: 0, ResetAt: startOfNextMonth(now)}, err
	}

	used := int(count)
	remaining := r.limit - used
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		Allowed:   used <= r.limit,
		Limit:     r.limit,
		Used:      used,
		Remaining: remaining,
		ResetAt:   startOfNextMonth(now),
	}, nil
}

// Reconcile handles a failed Consume whose denial may be caused by counter
// drift (the counter running ahead of the durable count). It clears the
// period key and re-issues exactly one Consume. If the retry is also denied,
// callers must surface CheckStatus numbers instead of the counter's.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (Status, error) {
	now := r.now()
	used, _, err := r.durable.CountCreatedSince(ctx, userID, now.Add(-r.window))
	if err != nil {
		return Status{Allowed: false, Limit: r.limit, Used: r.limit, Remaining: 0, ResetAt: now.Add(r.window)}, err
	}

	// The durable store says the user is genuinely over the limit; the
	// counter was right and there is nothing to heal.
	if used >= r.limit {
		return r.CheckStatus(ctx, userID), nil
	}

	if err := r.counter.Clear(ctx, userID, now); err != nil {
		return Status{Allowed: false, Limit: r.limit, Used: r.limit, Remaining: 0, ResetAt: startOfNextMonth(now)}, err
	}

	// Replay the durable usage into the fresh counter, then consume once.
	for i := 0; i < used; i++ {
		if _, err := r.counter.Incr(ctx, userID, now); err != nil {
			return Status{Allowed: false, Limit: r.limit, Used: r.limit, Remaining: 0, ResetAt: startOfNextMonth(now)}, err
		}
	}

	return r.Consume(ctx, userID)
}

// ConsumeReconciled is the full protocol used by the generate flow: one
// Consume, and on denial one reconcile-and-retry.
func (r *Reconciler) ConsumeReconciled(ctx context.Context, userID string) (Status, error) {
	st, err := r.Consume(ctx, userID)
	if err != nil {
		return st, err
	}
	if st.Allowed {
		return st, nil
	}
	return r.Reconcile(ctx, userID)
}

// Limit returns the configured per-window limit.
func (r *Reconciler) Limit() int { return r.limit }

func startOfNextMonth(now time.Time) time.Time {
	t := now.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
