package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/stepwise/pkg/adapters/redis"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewFromClient(client, opts...), mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := newStore(t)
	ports.RunProgressStoreContract(t, store)
}

func TestRedisStore_ResumesPassesAndStep(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	progress := domain.NewProgress("learner", "js-basics")
	progress.StepIndex = 2
	progress.MarkPassed("hello", "c1")
	progress.MarkPassed("sum", "t1")
	progress.MarkPassed("sum", "t2")
	require.NoError(t, store.Save(ctx, progress))

	got, err := store.Load(ctx, "learner")
	require.NoError(t, err)
	assert.Equal(t, "js-basics", got.LessonID)
	assert.Equal(t, 2, got.StepIndex)
	assert.Equal(t, map[string][]string{"hello": {"c1"}, "sum": {"t1", "t2"}}, got.Passed)

	empty := domain.NewProgress("newcomer", "js-basics")
	require.NoError(t, store.Save(ctx, empty))
	got, err = store.Load(ctx, "newcomer")
	require.NoError(t, err)
	assert.NotNil(t, got.Passed, "an empty passed set loads as a usable map")
}

// An active learner keeps their passes; one who walks away for longer than
// the TTL starts over.
func TestRedisStore_IdleLearnerExpires(t *testing.T) {
	store, mr := newStore(t, redis.WithTTL(time.Hour))
	ctx := context.Background()

	progress := domain.NewProgress("learner", "js-basics")
	progress.MarkPassed("hello", "c1")
	require.NoError(t, store.Save(ctx, progress))

	mr.FastForward(40 * time.Minute)
	progress.MarkPassed("hello", "c2")
	require.NoError(t, store.Save(ctx, progress), "saving refreshes the TTL")

	mr.FastForward(40 * time.Minute)
	got, err := store.Load(ctx, "learner")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, got.Passed["hello"])

	mr.FastForward(2 * time.Hour)
	_, err = store.Load(ctx, "learner")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRedisStore_ListPrunesExpiredIndexEntries(t *testing.T) {
	store, mr := newStore(t, redis.WithTTL(time.Hour))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewProgress("active", "js-basics")))
	score, err := mr.ZScore("stepwise:session:index", "active")
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Now().Add(time.Hour).Unix()), score, 5, "the index is scored by expiry")

	// An entry whose expiry already passed, left behind by an expired key.
	_, err = mr.ZAdd("stepwise:session:index", float64(time.Now().Add(-time.Minute).Unix()), "gone")
	require.NoError(t, err)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"active"}, ids)
}

func TestRedisStore_PrefixAndDelete(t *testing.T) {
	store, mr := newStore(t, redis.WithPrefix("course-42:session:"))
	ctx := context.Background()

	progress := domain.NewProgress("learner", "js-basics")
	progress.MarkPassed("hello", "c1")
	require.NoError(t, store.Save(ctx, progress))

	assert.True(t, mr.Exists("course-42:session:learner"))
	assert.True(t, mr.Exists("course-42:session:index"))
	assert.Zero(t, mr.TTL("course-42:session:learner"), "no TTL keeps progress forever")

	require.NoError(t, store.Delete(ctx, "learner"))
	assert.False(t, mr.Exists("course-42:session:learner"))
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
