package store

import (
	"context"
	"testing"
	"time"

	"slotcal/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t)

	start := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutEvent(ctx, doc("a", start)))

	// Document key and index entry both exist.
	assert.True(t, mr.Exists("events/a"))
	ids, err := mr.ZMembers("events:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	got, err := s.GetEvent(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Course a", got.Title)
	assert.Equal(t, "2026-06-01T00:00:00Z", got.Start)

	missing, err := s.GetEvent(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.DeleteEvent(ctx, "a"))
	assert.False(t, mr.Exists("events/a"))
	got, err = s.GetEvent(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreListOrdersByStart(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedisStore(t)

	base := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutEvent(ctx, doc("late", base.AddDate(0, 0, 20))))
	require.NoError(t, s.PutEvent(ctx, doc("early", base)))
	require.NoError(t, s.PutEvent(ctx, doc("mid", base.AddDate(0, 0, 10))))

	docs, err := s.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "early", docs[0].ID)
	assert.Equal(t, "mid", docs[1].ID)
	assert.Equal(t, "late", docs[2].ID)
}

func TestRedisStoreListSkipsDanglingIndexEntries(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t)

	base := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutEvent(ctx, doc("a", base)))

	// Simulate a document lost while its index entry survived.
	mr.ZAdd("events:index", 0, "ghost")

	docs, err := s.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
}

func TestRedisStoreListSkipsMalformedDocuments(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t)

	base := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutEvent(ctx, doc("a", base)))

	require.NoError(t, mr.Set("events/bad", "{not json"))
	mr.ZAdd("events:index", 0, "bad")

	docs, err := s.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestRedisStoreEmptyList(t *testing.T) {
	s, _ := newTestRedisStore(t)
	docs, err := s.ListEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRedisStoreSubscribeSignalsOnWrite(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedisStore(t)

	ch, stop, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer stop()

	start := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutEvent(ctx, doc("a", start)))

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no signal after write")
	}
}

func TestRedisStoreUpdateOverwrites(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedisStore(t)

	start := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	d := doc("a", start)
	require.NoError(t, s.PutEvent(ctx, d))

	id := int64(99)
	d.Status = models.StatusCreated
	d.HourglassID = &id
	require.NoError(t, s.PutEvent(ctx, d))

	got, err := s.GetEvent(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got.HourglassID)
	assert.Equal(t, int64(99), *got.HourglassID)

	docs, err := s.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "overwrite must not duplicate the index entry")
}
