package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rapport-app/rapport/internal/localcache"
	"github.com/rapport-app/rapport/internal/objectstore"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset")

type fakeStore struct {
	mu         sync.Mutex
	probeErr   error
	putErrs    []error
	putCalls   int
	resolveURL string
	resolveErr error
	blockPut   chan struct{}
	putStarted chan struct{}
}

func (store *fakeStore) Probe(ctx context.Context) error {
	return store.probeErr
}

func (store *fakeStore) Put(ctx context.Context, sessionID string, audio []byte) error {
	store.mu.Lock()
	idx := store.putCalls
	store.putCalls++

	var err error
	if idx < len(store.putErrs) {
		err = store.putErrs[idx]
	}

	block := store.blockPut
	started := store.putStarted
	store.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}

	if block != nil {
		<-block
	}

	return err
}

func (store *fakeStore) PutCalls() int {
	store.mu.Lock()
	defer store.mu.Unlock()

	return store.putCalls
}

func (store *fakeStore) ResolveURL(ctx context.Context, sessionID string) (string, error) {
	if store.resolveErr != nil {
		return "", store.resolveErr
	}

	if store.resolveURL != "" {
		return store.resolveURL, nil
	}

	return "https://store.local/recordings/" + sessionID + "/recording", nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (transcriberStub *fakeTranscriber) Transcribe(
	ctx context.Context,
	audio []byte,
	sessionID string,
) (string, error) {
	if transcriberStub.err != nil {
		return "", transcriberStub.err
	}

	return transcriberStub.text, nil
}

type fakeQueue struct {
	mu      sync.Mutex
	entries map[string]*localcache.PendingUpload
	order   []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{entries: make(map[string]*localcache.PendingUpload)}
}

func (queue *fakeQueue) Enqueue(ctx context.Context, sessionID string, audio []byte) error {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	now := time.Now()

	existing, ok := queue.entries[sessionID]
	if ok {
		existing.Audio = audio
		existing.LastAttempt = &now

		return nil
	}

	queue.entries[sessionID] = &localcache.PendingUpload{
		SessionID:   sessionID,
		Audio:       audio,
		LastAttempt: &now,
	}
	queue.order = append(queue.order, sessionID)

	return nil
}

func (queue *fakeQueue) List(ctx context.Context) ([]localcache.PendingUpload, error) {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	entries := make([]localcache.PendingUpload, 0, len(queue.order))
	for _, sessionID := range queue.order {
		entry, ok := queue.entries[sessionID]
		if ok {
			entries = append(entries, *entry)
		}
	}

	return entries, nil
}

func (queue *fakeQueue) Remove(ctx context.Context, sessionID string) error {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	delete(queue.entries, sessionID)

	return nil
}

func (queue *fakeQueue) IncrementRetry(ctx context.Context, sessionID string) error {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	entry, ok := queue.entries[sessionID]
	if ok {
		entry.RetryCount++
	}

	return nil
}

func (queue *fakeQueue) Count(ctx context.Context) (int64, error) {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	return int64(len(queue.entries)), nil
}

func (queue *fakeQueue) get(sessionID string) *localcache.PendingUpload {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	return queue.entries[sessionID]
}

type fakeBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: make(map[string][]byte)}
}

func (blobs *fakeBlobs) Get(ctx context.Context, sessionID string) ([]byte, error) {
	blobs.mu.Lock()
	defer blobs.mu.Unlock()

	data, ok := blobs.blobs[sessionID]
	if !ok {
		return nil, localcache.ErrBlobNotFound
	}

	return data, nil
}

func newTestPipeline(
	store *fakeStore,
	transcriberStub *fakeTranscriber,
	queue *fakeQueue,
	blobs *fakeBlobs,
) *Pipeline {
	pipeline := NewPipeline(store, transcriberStub, queue, blobs)
	pipeline.MaxRetries = 3
	pipeline.BackoffBase = time.Millisecond

	return pipeline
}

func TestUploadSuccess(t *testing.T) {
	store := &fakeStore{resolveURL: "https://store.local/s-1"}
	queue := newFakeQueue()
	pipeline := newTestPipeline(store, &fakeTranscriber{text: "hello there"}, queue, newFakeBlobs())

	var progress []int

	outcome, err := pipeline.Upload(context.Background(), "s-1", []byte("audio"), func(value int) {
		progress = append(progress, value)
	})

	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, "hello there", outcome.Transcript)
	require.Equal(t, "https://store.local/s-1", outcome.AudioURL)
	require.Equal(t, []int{0, 10, 60, 80, 100}, progress)
	require.Equal(t, 1, store.PutCalls())
}

func TestUploadPreconditions(t *testing.T) {
	pipeline := newTestPipeline(&fakeStore{}, &fakeTranscriber{}, newFakeQueue(), newFakeBlobs())

	_, err := pipeline.Upload(context.Background(), "", []byte("audio"), nil)
	require.ErrorIs(t, err, ErrEmptySessionID)

	_, err = pipeline.Upload(context.Background(), "s-1", nil, nil)
	require.ErrorIs(t, err, ErrEmptyAudio)
}

func TestProbeUnreachableQueuesWithoutTransfer(t *testing.T) {
	store := &fakeStore{probeErr: fmt.Errorf("%w: dial tcp refused", objectstore.ErrUnreachable)}
	queue := newFakeQueue()
	pipeline := newTestPipeline(store, &fakeTranscriber{}, queue, newFakeBlobs())

	outcome, err := pipeline.Upload(context.Background(), "s-1", []byte("audio"), nil)

	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.True(t, outcome.Queued)
	require.Contains(t, outcome.Message, "unreachable")
	require.Equal(t, 0, store.PutCalls())

	entry := queue.get("s-1")
	require.NotNil(t, entry)
	require.Equal(t, []byte("audio"), entry.Audio)
	require.Equal(t, 0, entry.RetryCount)
}

func TestProbeBucketMissingDoesNotQueue(t *testing.T) {
	store := &fakeStore{probeErr: objectstore.ErrBucketMissing}
	queue := newFakeQueue()
	pipeline := newTestPipeline(store, &fakeTranscriber{}, queue, newFakeBlobs())

	outcome, err := pipeline.Upload(context.Background(), "s-1", []byte("audio"), nil)

	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.False(t, outcome.Queued)
	require.Contains(t, outcome.Message, "bucket")
	require.Nil(t, queue.get("s-1"))
	require.Equal(t, 0, store.PutCalls())
}

func TestTransferExhaustsAttemptsAndQueues(t *testing.T) {
	store := &fakeStore{putErrs: []error{errTransient, errTransient, errTransient, errTransient}}
	queue := newFakeQueue()
	pipeline := newTestPipeline(store, &fakeTranscriber{}, queue, newFakeBlobs())

	outcome, err := pipeline.Upload(context.Background(), "s-1", []byte("audio"), nil)

	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.True(t, outcome.Queued)
	require.Contains(t, outcome.Message, "4 attempts")
	require.Equal(t, 4, store.PutCalls())
	require.NotNil(t, queue.get("s-1"))
}

func TestTransferBucketMissingShortCircuitsRetries(t *testing.T) {
	store := &fakeStore{
		putErrs: []error{fmt.Errorf("%w: NoSuchBucket", objectstore.ErrBucketMissing)},
	}
	queue := newFakeQueue()
	pipeline := newTestPipeline(store, &fakeTranscriber{}, queue, newFakeBlobs())

	outcome, err := pipeline.Upload(context.Background(), "s-1", []byte("audio"), nil)

	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.False(t, outcome.Queued)
	require.Equal(t, 1, store.PutCalls())
	require.Nil(t, queue.get("s-1"))
}

func TestTransferRecoversOnRetry(t *testing.T) {
	store := &fakeStore{putErrs: []error{errTransient}}
	pipeline := newTestPipeline(store, &fakeTranscriber{text: "ok"}, newFakeQueue(), newFakeBlobs())

	outcome, err := pipeline.Upload(context.Background(), "s-1", []byte("audio"), nil)

	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, 2, store.PutCalls())
}

func TestTranscriptionFailureDegradesToEmptyTranscript(t *testing.T) {
	store := &fakeStore{}
	pipeline := newTestPipeline(
		store,
		&fakeTranscriber{err: errors.New("transcriber down")},
		newFakeQueue(),
		newFakeBlobs(),
	)

	outcome, err := pipeline.Upload(context.Background(), "s-1", []byte("audio"), nil)

	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, "", outcome.Transcript)
	require.NotEmpty(t, outcome.AudioURL)
}

func TestResolveURLFailureQueues(t *testing.T) {
	store := &fakeStore{resolveErr: errors.New("presign failed")}
	queue := newFakeQueue()
	pipeline := newTestPipeline(store, &fakeTranscriber{}, queue, newFakeBlobs())

	outcome, err := pipeline.Upload(context.Background(), "s-1", []byte("audio"), nil)

	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.True(t, outcome.Queued)
	require.NotNil(t, queue.get("s-1"))
}

func TestUploadRemovesPendingEntryOnSuccess(t *testing.T) {
	store := &fakeStore{}
	queue := newFakeQueue()
	require.NoError(t, queue.Enqueue(context.Background(), "s-1", []byte("stale")))

	pipeline := newTestPipeline(store, &fakeTranscriber{}, queue, newFakeBlobs())

	outcome, err := pipeline.Upload(context.Background(), "s-1", []byte("audio"), nil)

	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Nil(t, queue.get("s-1"))
}

func TestRetryPendingMixedOutcomes(t *testing.T) {
	// s-good uploads cleanly, s-bad keeps failing and stays queued.
	store := &fakeStore{}
	queue := newFakeQueue()
	require.NoError(t, queue.Enqueue(context.Background(), "s-good", []byte("good audio")))

	pipeline := newTestPipeline(store, &fakeTranscriber{text: "retried words"}, queue, newFakeBlobs())

	statuses := make(map[string][]RetryStatus)
	outcomes := make(map[string]*Outcome)
	record := func(sessionID string, status RetryStatus, outcome *Outcome) {
		statuses[sessionID] = append(statuses[sessionID], status)
		if outcome != nil {
			outcomes[sessionID] = outcome
		}
	}

	err := pipeline.RetryPending(context.Background(), record)
	require.NoError(t, err)
	require.Equal(t, []RetryStatus{RetryStatusRetrying, RetryStatusSuccess}, statuses["s-good"])
	require.Nil(t, queue.get("s-good"))

	// The success callback carries the outcome so callers can reconcile the
	// transcript and URL without redoing the work.
	require.NotNil(t, outcomes["s-good"])
	require.True(t, outcomes["s-good"].Success)
	require.Equal(t, "retried words", outcomes["s-good"].Transcript)
	require.NotEmpty(t, outcomes["s-good"].AudioURL)

	badStore := &fakeStore{putErrs: []error{errTransient, errTransient, errTransient, errTransient}}
	badPipeline := newTestPipeline(badStore, &fakeTranscriber{}, queue, newFakeBlobs())
	require.NoError(t, queue.Enqueue(context.Background(), "s-bad", []byte("bad audio")))

	statuses = make(map[string][]RetryStatus)

	err = badPipeline.RetryPending(context.Background(), record)
	require.NoError(t, err)
	require.Equal(t, []RetryStatus{RetryStatusRetrying, RetryStatusFailed}, statuses["s-bad"])

	entry := queue.get("s-bad")
	require.NotNil(t, entry)
	require.Equal(t, 1, entry.RetryCount)
}

func TestRetryPendingFallsBackToBlobCache(t *testing.T) {
	store := &fakeStore{}
	queue := newFakeQueue()
	blobs := newFakeBlobs()
	blobs.blobs["s-1"] = []byte("cached audio")

	require.NoError(t, queue.Enqueue(context.Background(), "s-1", nil))

	pipeline := newTestPipeline(store, &fakeTranscriber{}, queue, blobs)

	err := pipeline.RetryPending(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, store.PutCalls())
	require.Nil(t, queue.get("s-1"))
}

func TestRetryPendingSkipsUnretrievableAudio(t *testing.T) {
	store := &fakeStore{}
	queue := newFakeQueue()
	require.NoError(t, queue.Enqueue(context.Background(), "s-gone", nil))

	pipeline := newTestPipeline(store, &fakeTranscriber{}, queue, newFakeBlobs())

	var statuses []RetryStatus

	err := pipeline.RetryPending(context.Background(), func(sessionID string, status RetryStatus, outcome *Outcome) {
		statuses = append(statuses, status)
	})

	require.NoError(t, err)
	require.Equal(t, []RetryStatus{RetryStatusFailed}, statuses)
	require.Equal(t, 0, store.PutCalls())
}

func TestConcurrentUploadSameSessionRejected(t *testing.T) {
	store := &fakeStore{
		blockPut:   make(chan struct{}),
		putStarted: make(chan struct{}, 1),
	}
	pipeline := newTestPipeline(store, &fakeTranscriber{}, newFakeQueue(), newFakeBlobs())

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, _ = pipeline.Upload(context.Background(), "s-1", []byte("audio"), nil)
	}()

	<-store.putStarted

	_, err := pipeline.Upload(context.Background(), "s-1", []byte("audio"), nil)
	require.ErrorIs(t, err, ErrAlreadyInFlight)

	close(store.blockPut)
	<-done
}

func TestRetryPassesAreSerialized(t *testing.T) {
	store := &fakeStore{
		blockPut:   make(chan struct{}),
		putStarted: make(chan struct{}, 1),
	}
	queue := newFakeQueue()
	require.NoError(t, queue.Enqueue(context.Background(), "s-1", []byte("audio")))

	pipeline := newTestPipeline(store, &fakeTranscriber{}, queue, newFakeBlobs())

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = pipeline.RetryPending(context.Background(), nil)
	}()

	<-store.putStarted

	err := pipeline.RetryPending(context.Background(), nil)
	require.ErrorIs(t, err, ErrRetryPassRunning)

	close(store.blockPut)
	<-done
}
