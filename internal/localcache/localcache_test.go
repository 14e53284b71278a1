package localcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rapport-app/rapport/internal/customer"
	"github.com/rapport-app/rapport/internal/session"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestCache(t *testing.T) *gorm.DB {
	t.Helper()

	cacheDB, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)

	return cacheDB
}

func TestBlobStoreRoundTrip(t *testing.T) {
	blobs := NewBlobStore(openTestCache(t))
	ctx := context.Background()

	require.NoError(t, blobs.Store(ctx, "s-1", []byte("first")))

	data, err := blobs.Get(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, []byte("first"), data)

	require.NoError(t, blobs.Store(ctx, "s-1", []byte("second")))

	data, err = blobs.Get(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), data)
}

func TestBlobStoreMissingAndDelete(t *testing.T) {
	blobs := NewBlobStore(openTestCache(t))
	ctx := context.Background()

	_, err := blobs.Get(ctx, "never-stored")
	require.ErrorIs(t, err, ErrBlobNotFound)

	require.NoError(t, blobs.Store(ctx, "s-1", []byte("data")))
	require.NoError(t, blobs.Delete(ctx, "s-1"))

	_, err = blobs.Get(ctx, "s-1")
	require.ErrorIs(t, err, ErrBlobNotFound)

	require.NoError(t, blobs.Delete(ctx, "s-1"))
}

func TestPendingQueueAtMostOnePerSession(t *testing.T) {
	queue := NewPendingQueue(openTestCache(t))
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, "s-1", []byte("v1")))
	require.NoError(t, queue.IncrementRetry(ctx, "s-1"))
	require.NoError(t, queue.IncrementRetry(ctx, "s-1"))

	// Re-enqueueing replaces the blob but keeps the retry history.
	require.NoError(t, queue.Enqueue(ctx, "s-1", []byte("v2")))

	entries, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "s-1", entries[0].SessionID)
	require.Equal(t, []byte("v2"), entries[0].Audio)
	require.Equal(t, 2, entries[0].RetryCount)
}

func TestPendingQueueOrderAndRemove(t *testing.T) {
	queue := NewPendingQueue(openTestCache(t))
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, "s-1", []byte("a")))
	require.NoError(t, queue.Enqueue(ctx, "s-2", []byte("b")))

	entries, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "s-1", entries[0].SessionID)
	require.Equal(t, "s-2", entries[1].SessionID)

	count, err := queue.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	require.NoError(t, queue.Remove(ctx, "s-1"))
	require.NoError(t, queue.Remove(ctx, "s-1"))

	count, err = queue.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestCustomerCacheListOrdering(t *testing.T) {
	cache := NewCustomerCache(openTestCache(t))
	ctx := context.Background()

	older := &customer.Customer{
		ID:        "c-older",
		Name:      "Avery",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := &customer.Customer{
		ID:        "c-newer",
		Name:      "Blake",
		CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, cache.Create(ctx, newer))
	require.NoError(t, cache.Create(ctx, older))

	customers, err := cache.List(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 2)
	require.Equal(t, "c-older", customers[0].ID)
	require.Equal(t, "c-newer", customers[1].ID)

	require.NoError(t, cache.Delete(ctx, "c-older"))

	customers, err = cache.List(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 1)
}

func TestSessionCacheUpsertAndOrdering(t *testing.T) {
	cache := NewSessionCache(openTestCache(t))
	ctx := context.Background()

	first := &session.Session{
		ID:         "s-1",
		CustomerID: "c-1",
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:     session.StatusPending,
	}
	second := &session.Session{
		ID:         "s-2",
		CustomerID: "c-1",
		Date:       time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Status:     session.StatusPending,
	}
	other := &session.Session{
		ID:         "s-3",
		CustomerID: "c-2",
		Date:       time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:     session.StatusPending,
	}

	require.NoError(t, cache.Upsert(ctx, first))
	require.NoError(t, cache.Upsert(ctx, second))
	require.NoError(t, cache.Upsert(ctx, other))

	first.Status = session.StatusUploaded
	first.AudioURL = "https://store.local/s-1"
	require.NoError(t, cache.Upsert(ctx, first))

	sessions, err := cache.ListByCustomer(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "s-2", sessions[0].ID)
	require.Equal(t, "s-1", sessions[1].ID)
	require.Equal(t, session.StatusUploaded, sessions[1].Status)
	require.Equal(t, "https://store.local/s-1", sessions[1].AudioURL)
}

func TestSessionCacheDeleteByCustomer(t *testing.T) {
	cacheDB := openTestCache(t)
	sessionCache := NewSessionCache(cacheDB)
	customerCache := NewCustomerCache(cacheDB)
	ctx := context.Background()

	require.NoError(t, customerCache.Create(ctx, &customer.Customer{ID: "c-1", Name: "Avery"}))
	require.NoError(t, sessionCache.Upsert(ctx, &session.Session{ID: "s-1", CustomerID: "c-1"}))
	require.NoError(t, sessionCache.Upsert(ctx, &session.Session{ID: "s-2", CustomerID: "c-1"}))

	require.NoError(t, sessionCache.DeleteByCustomer(ctx, "c-1"))

	sessions, err := sessionCache.ListByCustomer(ctx, "c-1")
	require.NoError(t, err)
	require.Empty(t, sessions)

	// Deleting sessions must not touch the customer index.
	customers, err := customerCache.List(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 1)
}
