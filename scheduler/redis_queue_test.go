package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakehouse/repository/testutil"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(t *testing.T) (*RedisQueue, *fakeClock) {
	tr := testutil.SetupTestRedis(t)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := NewRedisQueue(tr.Client, "test:jobs")
	q.now = clock.now
	return q, clock
}

func TestRedisQueue_DelayedDelivery(t *testing.T) {
	t.Parallel()
	q, clock := newTestQueue(t)
	ctx := context.Background()
	roomID := uuid.New()

	require.NoError(t, q.Schedule(ctx, KindSettleRoom, roomID, 1500*time.Millisecond))

	jobs, err := q.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, jobs, "job must not be delivered before it is due")

	clock.advance(1500 * time.Millisecond)
	jobs, err = q.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, KindSettleRoom, jobs[0].Kind)
	assert.Equal(t, roomID, jobs[0].RoomID)
	assert.Equal(t, 0, jobs[0].Attempts)

	again, err := q.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed job is leased")

	require.NoError(t, q.Ack(ctx, jobs[0]))
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestRedisQueue_LeaseExpiryRedelivers(t *testing.T) {
	t.Parallel()
	q, clock := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Schedule(ctx, KindCancelIfEmpty, uuid.New(), 0))

	first, err := q.Claim(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// the claiming worker died without acking
	clock.advance(31 * time.Second)
	second, err := q.Claim(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestRedisQueue_RetryAndDeadLetter(t *testing.T) {
	t.Parallel()
	q, clock := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Schedule(ctx, KindSettleRoom, uuid.New(), 0))
	jobs, err := q.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.NoError(t, q.Retry(ctx, jobs[0], 2*time.Second, errors.New("lock timeout")))

	clock.advance(time.Second)
	none, err := q.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, none)

	clock.advance(time.Second)
	retried, err := q.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, 1, retried[0].Attempts)
	assert.Equal(t, "lock timeout", retried[0].LastError)

	require.NoError(t, q.DeadLetter(ctx, retried[0], errors.New("gave up")))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, retried[0].ID, dead[0].ID)
	assert.Equal(t, "gave up", dead[0].LastError)
}

func TestRedisQueue_ClaimBatchLimit(t *testing.T) {
	t.Parallel()
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Schedule(ctx, KindSettleRoom, uuid.New(), 0))
	}

	batch, err := q.Claim(ctx, 3, time.Minute)
	require.NoError(t, err)
	assert.Len(t, batch, 3)

	rest, err := q.Claim(ctx, 3, time.Minute)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}
