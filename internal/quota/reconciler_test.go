package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDurable struct {
	mu     sync.Mutex
	count  int
	oldest time.Time
	err    error
	calls  int
}

func (s *stubDurable) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.count, s.oldest, s.err
}

func newTestReconciler(t *testing.T, durable *stubDurable, limit int) (*Reconciler, *Store) {
	t.Helper()

	store, _ := setupStore(t)
	r := NewReconciler(store, durable, limit, 30*24*time.Hour)
	r.now = func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) }
	return r, store
}

func TestReconciler_CheckStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("allowed while under the limit", func(t *testing.T) {
		durable := &stubDurable{count: 1, oldest: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
		r, _ := newTestReconciler(t, durable, 3)

		st := r.CheckStatus(ctx, "user-1")
		assert.True(t, st.Allowed)
		assert.Equal(t, 3, st.Limit)
		assert.Equal(t, 1, st.Used)
		assert.Equal(t, 2, st.Remaining)
	})

	t.Run("denied at the limit", func(t *testing.T) {
		durable := &stubDurable{count: 3, oldest: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
		r, _ := newTestReconciler(t, durable, 3)

		st := r.CheckStatus(ctx, "user-1")
		assert.False(t, st.Allowed)
		assert.Equal(t, 0, st.Remaining)
	})

	t.Run("reset tracks the oldest counted row", func(t *testing.T) {
		oldest := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		durable := &stubDurable{count: 2, oldest: oldest}
		r, _ := newTestReconciler(t, durable, 3)

		st := r.CheckStatus(ctx, "user-1")
		assert.Equal(t, oldest.Add(30*24*time.Hour), st.ResetAt)
	})

	t.Run("durable store failure fails closed", func(t *testing.T) {
		durable := &stubDurable{err: errors.New("pg down")}
		r, _ := newTestReconciler(t, durable, 3)

		st := r.CheckStatus(ctx, "user-1")
		assert.False(t, st.Allowed)
		assert.Equal(t, 0, st.Remaining)
	})

	t.Run("never touches the fast counter", func(t *testing.T) {
		durable := &stubDurable{count: 1}
		r, store := newTestReconciler(t, durable, 3)

		r.CheckStatus(ctx, "user-1")
		n, err := store.Count(ctx, "user-1", r.now())
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestReconciler_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("allows up to the limit then denies", func(t *testing.T) {
		r, _ := newTestReconciler(t, &stubDurable{}, 3)

		for i := 0; i < 3; i++ {
			st, err := r.Consume(ctx, "user-1")
			require.NoError(t, err)
			assert.True(t, st.Allowed, "consume %d should be allowed", i+1)
		}

		st, err := r.Consume(ctx, "user-1")
		require.NoError(t, err)
		assert.False(t, st.Allowed)
		assert.Equal(t, 4, st.Used)
		assert.Equal(t, 0, st.Remaining)
	})

	t.Run("at most limit grants under concurrency", func(t *testing.T) {
		r, _ := newTestReconciler(t, &stubDurable{count: 3}, 3)

		const attempts = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				st, err := r.ConsumeReconciled(ctx, "user-1")
				if err == nil && st.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, allowed)
	})
}

func TestReconciler_Reconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("heals counter drift and grants the slot", func(t *testing.T) {
		// Durable store says 1 generation exists, but the counter drifted
		// to 5 (e.g. crashed requests incremented without creating rows).
		durable := &stubDurable{count: 1, oldest: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
		r, store := newTestReconciler(t, durable, 3)

		for i := 0; i < 5; i++ {
			_, err := store.Incr(ctx, "user-1", r.now())
			require.NoError(t, err)
		}

		st, err := r.ConsumeReconciled(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, st.Allowed)
		assert.Equal(t, 2, st.Used)

		// The counter now carries the replayed durable count plus this grant.
		n, err := store.Count(ctx, "user-1", r.now())
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("genuinely exhausted user stays denied", func(t *testing.T) {
		oldest := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		durable := &stubDurable{count: 3, oldest: oldest}
		r, store := newTestReconciler(t, durable, 3)

		for i := 0; i < 3; i++ {
			_, err := store.Incr(ctx, "user-1", r.now())
			require.NoError(t, err)
		}

		st, err := r.ConsumeReconciled(ctx, "user-1")
		require.NoError(t, err)
		assert.False(t, st.Allowed)

		// Denial numbers come from the durable store, not the counter.
		assert.Equal(t, 3, st.Used)
		assert.Equal(t, 0, st.Remaining)
		assert.Equal(t, oldest.Add(30*24*time.Hour), st.ResetAt)

		// Counter was not cleared; the drift was real usage.
		n, err := store.Count(ctx, "user-1", r.now())
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("reconcile is idempotent", func(t *testing.T) {
		durable := &stubDurable{count: 1, oldest: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
		r, store := newTestReconciler(t, durable, 3)

		for i := 0; i < 9; i++ {
			_, err := store.Incr(ctx, "user-1", r.now())
			require.NoError(t, err)
		}

		first, err := r.Reconcile(ctx, "user-1")
		require.NoError(t, err)
		second, err := r.Reconcile(ctx, "user-1")
		require.NoError(t, err)

		assert.True(t, first.Allowed)
		assert.True(t, second.Allowed)
		assert.Equal(t, first.Used, second.Used)
	})

	t.Run("durable failure during reconcile fails closed", func(t *testing.T) {
		durable := &stubDurable{err: errors.New("pg down")}
		r, store := newTestReconciler(t, durable, 3)

		for i := 0; i < 4; i++ {
			_, err := store.Incr(ctx, "user-1", r.now())
			require.NoError(t, err)
		}

		st, err := r.ConsumeReconciled(ctx, "user-1")
		assert.Error(t, err)
		assert.False(t, st.Allowed)
	})
}
