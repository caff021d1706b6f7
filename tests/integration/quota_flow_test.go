package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildtrix/mvp-studio-backend/internal/quota"
)

// memDurable simulates the relational project count: it only grows when a
// generation actually succeeds, which is exactly the property the reconciler
// leans on.
type memDurable struct {
	mu   sync.Mutex
	rows map[string][]time.Time
}

func newMemDurable() *memDurable {
	return &memDurable{rows: make(map[string][]time.Time)}
}

func (m *memDurable) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		count  int
		oldest time.Time
	)
	for _, at := range m.rows[userID] {
		if at.Before(since) {
			continue
		}
		count++
		if oldest.IsZero() || at.Before(oldest) {
			oldest = at
		}
	}
	return count, oldest, nil
}

func (m *memDurable) record(userID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[userID] = append(m.rows[userID], at)
}

func setupQuota(t *testing.T) (*quota.Reconciler, *quota.Store, *memDurable) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := quota.NewStore(client)
	durable := newMemDurable()
	return quota.NewReconciler(store, durable, 3, 30*24*time.Hour), store, durable
}

// TestQuotaFlow_ThreeThenDenied walks the full generate quota lifecycle: a
// fresh user gets exactly three generations, the fourth attempt is denied,
// and the denial carries the durable numbers.
func TestQuotaFlow_ThreeThenDenied(t *testing.T) {
	ctx := context.Background()
	rec, _, durable := setupQuota(t)

	for i := 0; i < 3; i++ {
		st, err := rec.ConsumeReconciled(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, st.Allowed, "generation %d should be allowed", i+1)

		// A successful generation creates a durable project row.
		durable.record("user-1", time.Now())
	}

	st, err := rec.ConsumeReconciled(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.Equal(t, 3, st.Used)
	assert.Equal(t, 0, st.Remaining)

	// Status polls agree with the denial and do not consume anything.
	for i := 0; i < 5; i++ {
		check := rec.CheckStatus(ctx, "user-1")
		assert.False(t, check.Allowed)
		assert.Equal(t, 3, check.Used)
	}
}

// TestQuotaFlow_CrashedRequestsDoNotCost covers the drift case: requests
// that incremented the counter but never created a project row must not eat
// into the user's allowance.
func TestQuotaFlow_CrashedRequestsDoNotCost(t *testing.T) {
	ctx := context.Background()
	rec, store, durable := setupQuota(t)

	// One real generation.
	st, err := rec.ConsumeReconciled(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, st.Allowed)
	durable.record("user-1", time.Now())

	// Four requests crash after the increment, before the insert.
	for i := 0; i < 4; i++ {
		_, err := store.Incr(ctx, "user-1", time.Now())
		require.NoError(t, err)
	}

	// The counter now reads 5, but only one durable row exists. The next
	// attempt reconciles and is granted.
	st, err = rec.ConsumeReconciled(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, st.Allowed)
	assert.Equal(t, 2, st.Used)
}

// TestQuotaFlow_CounterLoss exercises the other drift direction: Redis loses
// the counter (restart, eviction) while durable rows exist. The user must
// not get extra generations.
func TestQuotaFlow_CounterLoss(t *testing.T) {
	ctx := context.Background()
	rec, store, durable := setupQuota(t)

	for i := 0; i < 3; i++ {
		st, err := rec.ConsumeReconciled(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, st.Allowed)
		durable.record("user-1", time.Now())
	}

	// Redis restarts empty.
	require.NoError(t, store.Clear(ctx, "user-1", time.Now()))

	// The bare counter would now allow more, but the reconcile protocol
	// replays the durable count before granting.
	st, err := rec.Consume(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, st.Allowed, "raw counter alone cannot know about durable rows")

	st, err = rec.Reconcile(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.Equal(t, 3, st.Used)
}

func TestQuotaFlow_WindowExpiry(t *testing.T) {
	ctx := context.Background()
	rec, _, durable := setupQuota(t)

	// Three generations made 31 days ago fall outside the trailing window.
	old := time.Now().Add(-31 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		durable.record("user-1", old)
	}

	st := rec.CheckStatus(ctx, "user-1")
	assert.True(t, st.Allowed)
	assert.Equal(t, 0, st.Used)
	assert.Equal(t, 3, st.Remaining)
}
