package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/rapport-app/rapport/internal/config"
	"github.com/rapport-app/rapport/internal/localcache"
	"github.com/rapport-app/rapport/internal/logging"
	"github.com/rapport-app/rapport/internal/objectstore"
	prometheusRapport "github.com/rapport-app/rapport/internal/prometheus"
	"go.uber.org/zap"
)

var (
	ErrEmptySessionID   = errors.New("session id must not be empty")
	ErrEmptyAudio       = errors.New("audio blob must not be empty")
	ErrAlreadyInFlight  = errors.New("an upload for this session is already in flight")
	ErrRetryPassRunning = errors.New("a retry pass is already running")
)

// Progress milestones reported to the caller. The store cannot report byte
// progress, so the pipeline publishes coarse monotonic steps.
const (
	progressStart         = 0
	progressTransferBegin = 10
	progressTransferDone  = 60
	progressTranscribed   = 80
	progressComplete      = 100
)

type RetryStatus string

const (
	RetryStatusRetrying RetryStatus = "retrying"
	RetryStatusSuccess  RetryStatus = "success"
	RetryStatusFailed   RetryStatus = "failed"
)

// ObjectStore is the slice of the recording store the pipeline needs. Put is
// a single attempt; the pipeline owns the retry policy.
type ObjectStore interface {
	Probe(ctx context.Context) error
	Put(ctx context.Context, sessionID string, audio []byte) error
	ResolveURL(ctx context.Context, sessionID string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, sessionID string) (string, error)
}

type PendingStore interface {
	Enqueue(ctx context.Context, sessionID string, audio []byte) error
	List(ctx context.Context) ([]localcache.PendingUpload, error)
	Remove(ctx context.Context, sessionID string) error
	IncrementRetry(ctx context.Context, sessionID string) error
	Count(ctx context.Context) (int64, error)
}

type BlobCache interface {
	Get(ctx context.Context, sessionID string) ([]byte, error)
}

// Outcome is the definitive result of one upload. Success is decided solely
// by the byte transfer; a missing transcript never fails the upload.
type Outcome struct {
	Success    bool
	AudioURL   string
	Transcript string
	Queued     bool
	Message    string
}

// Pipeline uploads session audio to the object store, requests a transcript
// and maintains the pending-upload queue for everything that could not be
// delivered.
type Pipeline struct {
	Store       ObjectStore
	Transcriber Transcriber
	Queue       PendingStore
	Blobs       BlobCache

	MaxRetries  uint
	BackoffBase time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
	passMu   sync.Mutex
}

func NewPipeline(
	store ObjectStore,
	transcriberClient Transcriber,
	queue PendingStore,
	blobs BlobCache,
) *Pipeline {
	return &Pipeline{
		Store:       store,
		Transcriber: transcriberClient,
		Queue:       queue,
		Blobs:       blobs,
		MaxRetries:  config.Conf.UploadMaxRetries,
		BackoffBase: time.Duration(config.Conf.UploadBackoffBaseMs) * time.Millisecond,
		inflight:    make(map[string]struct{}),
	}
}

// Upload runs the probe, transfer, transcribe, reconcile sequence for one
// session and returns a definitive outcome. onProgress, when non-nil,
// receives monotonically non-decreasing values from 0 to 100.
func (pipeline *Pipeline) Upload(
	ctx context.Context,
	sessionID string,
	audio []byte,
	onProgress func(int),
) (*Outcome, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	err := pipeline.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer pipeline.release(sessionID)

	started := time.Now()
	progress := newProgressTracker(onProgress)
	progress.publish(progressStart)

	outcome := pipeline.run(ctx, sessionID, audio, progress)

	outcomeLabel := "failure"
	if outcome.Success {
		outcomeLabel = "success"
	}

	prometheusRapport.UploadDuration.WithLabelValues(outcomeLabel).Observe(time.Since(started).Seconds())
	pipeline.publishQueueDepth(ctx)

	return outcome, nil
}

func (pipeline *Pipeline) run(
	ctx context.Context,
	sessionID string,
	audio []byte,
	progress *progressTracker,
) *Outcome {
	err := pipeline.Store.Probe(ctx)
	if errors.Is(err, objectstore.ErrBucketMissing) {
		return &Outcome{
			Success: false,
			Message: "storage bucket does not exist, check the store configuration",
		}
	}

	if err != nil {
		pipeline.enqueue(ctx, sessionID, audio)

		return &Outcome{
			Success: false,
			Queued:  true,
			Message: "storage unreachable, queued for retry",
		}
	}

	progress.publish(progressTransferBegin)

	attempts, err := pipeline.transfer(ctx, sessionID, audio)
	if errors.Is(err, objectstore.ErrBucketMissing) {
		return &Outcome{
			Success: false,
			Message: "storage bucket does not exist, check the store configuration",
		}
	}

	if err != nil {
		pipeline.enqueue(ctx, sessionID, audio)

		return &Outcome{
			Success: false,
			Queued:  true,
			Message: fmt.Sprintf("upload failed after %d attempts, queued for retry", attempts),
		}
	}

	progress.publish(progressTransferDone)

	transcript := pipeline.transcribe(ctx, sessionID, audio)
	progress.publish(progressTranscribed)

	audioURL, err := pipeline.Store.ResolveURL(ctx, sessionID)
	if err != nil {
		pipeline.enqueue(ctx, sessionID, audio)

		return &Outcome{
			Success: false,
			Queued:  true,
			Message: "uploaded but no retrievable url could be issued, queued for retry",
		}
	}

	err = pipeline.Queue.Remove(ctx, sessionID)
	if err != nil {
		logging.Logger.Error("Failed to remove pending upload after success",
			zap.String("session_id", sessionID),
			zap.String("error", err.Error()),
		)
	}

	progress.publish(progressComplete)

	return &Outcome{
		Success:    true,
		AudioURL:   audioURL,
		Transcript: transcript,
	}
}

// transfer runs the bounded attempt loop: one initial attempt plus
// MaxRetries retries with linear backoff of BackoffBase * attempt number. It
// returns the number of attempts made.
func (pipeline *Pipeline) transfer(ctx context.Context, sessionID string, audio []byte) (uint, error) {
	var attempts uint

	base := pipeline.BackoffBase

	err := retry.Do(
		func() error {
			attempts++

			putErr := pipeline.Store.Put(ctx, sessionID, audio)
			if putErr == nil {
				return nil
			}

			if errors.Is(putErr, objectstore.ErrBucketMissing) {
				return retry.Unrecoverable(putErr)
			}

			return putErr
		},
		retry.Attempts(pipeline.MaxRetries+1),
		retry.DelayType(func(n uint, err error, retryConfig *retry.Config) time.Duration {
			return time.Duration(n+1) * base
		}),
		retry.OnRetry(func(n uint, err error) {
			prometheusRapport.TransferRetries.Inc()
			logging.Logger.Warn("Retrying byte transfer",
				zap.String("session_id", sessionID),
				zap.Uint("retry", n+1),
				zap.String("error", err.Error()),
			)
		}),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		logging.Logger.Error("Byte transfer failed",
			zap.String("session_id", sessionID),
			zap.Uint("attempts", attempts),
			zap.String("error", err.Error()),
		)

		return attempts, err
	}

	return attempts, nil
}

// transcribe degrades to an empty transcript on any failure, including an
// unconfigured transcriber.
func (pipeline *Pipeline) transcribe(ctx context.Context, sessionID string, audio []byte) string {
	transcript, err := pipeline.Transcriber.Transcribe(ctx, audio, sessionID)
	if err != nil {
		logging.Logger.Warn("Transcription unavailable, storing empty transcript",
			zap.String("session_id", sessionID),
			zap.String("error", err.Error()),
		)

		return ""
	}

	return transcript
}

// RetryPending drains a snapshot of the pending-upload queue, re-invoking
// Upload for every entry whose audio is still retrievable. Passes are
// serialized; a pass started while another runs returns ErrRetryPassRunning.
func (pipeline *Pipeline) RetryPending(
	ctx context.Context,
	onStatus func(sessionID string, status RetryStatus, outcome *Outcome),
) error {
	ok := pipeline.passMu.TryLock()
	if !ok {
		logging.Logger.Info("Retry pass skipped, another pass is in flight")
		return ErrRetryPassRunning
	}
	defer pipeline.passMu.Unlock()

	entries, err := pipeline.Queue.List(ctx)
	if err != nil {
		return err
	}

	logging.Logger.Info("Starting pending upload retry pass", zap.Int("entries", len(entries)))

	for idx := range entries {
		pipeline.retryEntry(ctx, &entries[idx], onStatus)
	}

	pipeline.publishQueueDepth(ctx)

	return nil
}

func (pipeline *Pipeline) retryEntry(
	ctx context.Context,
	entry *localcache.PendingUpload,
	onStatus func(sessionID string, status RetryStatus, outcome *Outcome),
) {
	report := func(status RetryStatus, outcome *Outcome) {
		if onStatus != nil {
			onStatus(entry.SessionID, status, outcome)
		}
	}

	audio := entry.Audio
	if len(audio) == 0 {
		cached, err := pipeline.Blobs.Get(ctx, entry.SessionID)
		if err != nil {
			logging.Logger.Warn("Pending upload has no retrievable audio, skipping",
				zap.String("session_id", entry.SessionID),
				zap.String("error", err.Error()),
			)
			report(RetryStatusFailed, nil)

			return
		}

		audio = cached
	}

	report(RetryStatusRetrying, nil)

	outcome, err := pipeline.Upload(ctx, entry.SessionID, audio, nil)
	if errors.Is(err, ErrAlreadyInFlight) {
		logging.Logger.Info("Skipping pending upload already in flight",
			zap.String("session_id", entry.SessionID),
		)

		return
	}

	if err == nil && outcome.Success {
		report(RetryStatusSuccess, outcome)
		return
	}

	incErr := pipeline.Queue.IncrementRetry(ctx, entry.SessionID)
	if incErr != nil {
		logging.Logger.Error("Failed to bump retry count",
			zap.String("session_id", entry.SessionID),
			zap.String("error", incErr.Error()),
		)
	}

	report(RetryStatusFailed, outcome)
}

func (pipeline *Pipeline) enqueue(ctx context.Context, sessionID string, audio []byte) {
	err := pipeline.Queue.Enqueue(ctx, sessionID, audio)
	if err != nil {
		logging.Logger.Error("Failed to enqueue pending upload",
			zap.String("session_id", sessionID),
			zap.String("error", err.Error()),
		)
	}
}

func (pipeline *Pipeline) publishQueueDepth(ctx context.Context) {
	count, err := pipeline.Queue.Count(ctx)
	if err != nil {
		return
	}

	prometheusRapport.PendingQueueDepth.Set(float64(count))
}

func (pipeline *Pipeline) acquire(sessionID string) error {
	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()

	_, busy := pipeline.inflight[sessionID]
	if busy {
		return ErrAlreadyInFlight
	}

	pipeline.inflight[sessionID] = struct{}{}

	return nil
}

func (pipeline *Pipeline) release(sessionID string) {
	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()

	delete(pipeline.inflight, sessionID)
}

// progressTracker clamps published values so callers only ever observe a
// non-decreasing sequence.
type progressTracker struct {
	callback func(int)
	last     int
}

func newProgressTracker(callback func(int)) *progressTracker {
	return &progressTracker{callback: callback, last: -1}
}

func (tracker *progressTracker) publish(value int) {
	if tracker.callback == nil {
		return
	}

	if value <= tracker.last {
		return
	}

	tracker.last = value
	tracker.callback(value)
}
