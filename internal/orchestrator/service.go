package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rapport-app/rapport/internal/customer"
	"github.com/rapport-app/rapport/internal/identity"
	"github.com/rapport-app/rapport/internal/logging"
	"github.com/rapport-app/rapport/internal/records"
	"github.com/rapport-app/rapport/internal/recorder"
	"github.com/rapport-app/rapport/internal/session"
	"github.com/rapport-app/rapport/internal/upload"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Uploader is the slice of the upload pipeline the orchestrator drives.
type Uploader interface {
	Upload(ctx context.Context, sessionID string, audio []byte, onProgress func(int)) (*upload.Outcome, error)
	RetryPending(ctx context.Context, onStatus func(sessionID string, status upload.RetryStatus, outcome *upload.Outcome)) error
}

type ObjectStore interface {
	ResolveURL(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

type BlobCache interface {
	Store(ctx context.Context, sessionID string, data []byte) error
	Delete(ctx context.Context, sessionID string) error
}

type PendingRemover interface {
	Remove(ctx context.Context, sessionID string) error
}

// Orchestrator coordinates recorder output into the upload pipeline and
// reconciles outcomes into session records across the local cache and the
// remote record store.
type Orchestrator struct {
	Customers records.CustomerStore
	Sessions  records.SessionStore
	Blobs     BlobCache
	Pending   PendingRemover
	Pipeline  Uploader
	Objects   ObjectStore
	State     *State

	now func() time.Time
}

func NewOrchestrator(
	customers records.CustomerStore,
	sessions records.SessionStore,
	blobs BlobCache,
	pending PendingRemover,
	pipeline Uploader,
	objects ObjectStore,
) *Orchestrator {
	return &Orchestrator{
		Customers: customers,
		Sessions:  sessions,
		Blobs:     blobs,
		Pending:   pending,
		Pipeline:  pipeline,
		Objects:   objects,
		State:     NewState(),
		now:       time.Now,
	}
}

func (orchestrator *Orchestrator) AddCustomer(
	ctx context.Context,
	name, email, phone string,
) (*customer.Customer, error) {
	record := &customer.Customer{
		ID:    uuid.NewString(),
		Name:  name,
		Email: email,
		Phone: phone,
	}

	err := orchestrator.Customers.Create(ctx, record)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (orchestrator *Orchestrator) ListCustomers(ctx context.Context) ([]customer.Customer, error) {
	return orchestrator.Customers.List(ctx)
}

func (orchestrator *Orchestrator) ListSessions(
	ctx context.Context,
	customerID string,
) ([]session.Session, error) {
	return orchestrator.Sessions.ListByCustomer(ctx, customerID)
}

// FinishRecording turns a finished take into a session record and pushes it
// through the upload pipeline. The blob and a pending session row are
// persisted locally before any network call so a mid-flight crash always
// leaves a recoverable trail.
func (orchestrator *Orchestrator) FinishRecording(
	ctx context.Context,
	owner *customer.Customer,
	take *recorder.Take,
	onProgress func(int),
) (*session.Session, *upload.Outcome, error) {
	sessionID := fmt.Sprintf("%s-%d", owner.ID, orchestrator.now().UnixMilli())

	err := orchestrator.Blobs.Store(ctx, sessionID, take.Audio)
	if err != nil {
		return nil, nil, err
	}

	record := &session.Session{
		ID:           sessionID,
		CustomerID:   owner.ID,
		CustomerName: owner.Name,
		Date:         orchestrator.now(),
		Duration:     take.Duration,
		Status:       session.StatusPending,
	}

	err = orchestrator.Sessions.Upsert(ctx, record)
	if err != nil {
		return nil, nil, err
	}

	orchestrator.State.SetLastSessionID(sessionID)

	outcome, err := orchestrator.Pipeline.Upload(ctx, sessionID, take.Audio, onProgress)
	if err != nil {
		return record, nil, err
	}

	switch {
	case outcome.Success:
		record.Status = session.StatusUploaded
		record.AudioURL = outcome.AudioURL
		record.Transcript = outcome.Transcript
	case outcome.Queued:
		// The blob is cached and queued, a later pass can still land it.
		record.Status = session.StatusPending
		logging.Logger.Warn("Upload queued for retry",
			zap.String("session_id", sessionID),
			zap.String("message", outcome.Message),
		)
	default:
		record.Status = session.StatusFailed
		logging.Logger.Warn("Upload failed permanently",
			zap.String("session_id", sessionID),
			zap.String("message", outcome.Message),
		)
	}

	err = orchestrator.Sessions.Upsert(ctx, record)
	if err != nil {
		return record, outcome, err
	}

	if outcome.Success {
		orchestrator.dropCachedBlob(ctx, sessionID)
	}

	return record, outcome, nil
}

// dropCachedBlob releases the locally cached audio once the recording is
// safely in the object store.
func (orchestrator *Orchestrator) dropCachedBlob(ctx context.Context, sessionID string) {
	err := orchestrator.Blobs.Delete(ctx, sessionID)
	if err != nil {
		logging.Logger.Warn("Failed to drop cached blob after upload",
			zap.String("session_id", sessionID),
			zap.String("error", err.Error()),
		)
	}
}

// RetryPendingUploads drains the pending queue and promotes every session
// whose upload finally lands to uploaded, carrying over the URL and the
// transcript the retried upload produced.
func (orchestrator *Orchestrator) RetryPendingUploads(
	ctx context.Context,
	onStatus func(sessionID string, status upload.RetryStatus),
) error {
	return orchestrator.Pipeline.RetryPending(ctx, func(sessionID string, status upload.RetryStatus, outcome *upload.Outcome) {
		if status == upload.RetryStatusSuccess {
			err := orchestrator.markUploaded(ctx, sessionID, outcome)
			if err != nil {
				logging.Logger.Error("Failed to promote session after retry",
					zap.String("session_id", sessionID),
					zap.String("error", err.Error()),
				)
			}
		}

		if onStatus != nil {
			onStatus(sessionID, status)
		}
	})
}

func (orchestrator *Orchestrator) markUploaded(
	ctx context.Context,
	sessionID string,
	outcome *upload.Outcome,
) error {
	customerID := customerIDFromSession(sessionID)

	sessions, err := orchestrator.Sessions.ListByCustomer(ctx, customerID)
	if err != nil {
		return err
	}

	for idx := range sessions {
		if sessions[idx].ID != sessionID {
			continue
		}

		record := sessions[idx]
		record.Status = session.StatusUploaded

		if outcome != nil {
			record.AudioURL = outcome.AudioURL
			record.Transcript = outcome.Transcript
		}

		if record.AudioURL == "" {
			audioURL, urlErr := orchestrator.Objects.ResolveURL(ctx, sessionID)
			if urlErr != nil {
				return urlErr
			}

			record.AudioURL = audioURL
		}

		err = orchestrator.Sessions.Upsert(ctx, &record)
		if err != nil {
			return err
		}

		orchestrator.dropCachedBlob(ctx, sessionID)

		return nil
	}

	return nil
}

// DeleteCustomer cascades in order: session records go first, remote before
// local, then the customer row, then the per-session artifacts. A remote
// failure aborts before the customer row is touched so a session never
// outlives its customer in the remote store.
func (orchestrator *Orchestrator) DeleteCustomer(ctx context.Context, customerID string) error {
	sessions, err := orchestrator.Sessions.ListByCustomer(ctx, customerID)
	if err != nil {
		return err
	}

	err = orchestrator.Sessions.DeleteByCustomer(ctx, customerID)
	if err != nil {
		return err
	}

	err = orchestrator.Customers.Delete(ctx, customerID)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	for idx := range sessions {
		sessionID := sessions[idx].ID

		group.Go(func() error {
			orchestrator.purgeSessionArtifacts(groupCtx, sessionID)
			return nil
		})
	}

	_ = group.Wait()

	selected := orchestrator.State.SelectedCustomer()
	if selected != nil && selected.ID == customerID {
		orchestrator.State.Clear()
	}

	return nil
}

func (orchestrator *Orchestrator) purgeSessionArtifacts(ctx context.Context, sessionID string) {
	err := orchestrator.Blobs.Delete(ctx, sessionID)
	if err != nil {
		logging.Logger.Warn("Failed to delete cached blob",
			zap.String("session_id", sessionID),
			zap.String("error", err.Error()),
		)
	}

	err = orchestrator.Pending.Remove(ctx, sessionID)
	if err != nil {
		logging.Logger.Warn("Failed to delete pending upload",
			zap.String("session_id", sessionID),
			zap.String("error", err.Error()),
		)
	}

	err = orchestrator.Objects.Delete(ctx, sessionID)
	if err != nil {
		logging.Logger.Warn("Failed to delete stored recording",
			zap.String("session_id", sessionID),
			zap.String("error", err.Error()),
		)
	}
}

// Watch consumes identity events until ctx is done, clearing all in-memory
// state on sign-out.
func (orchestrator *Orchestrator) Watch(ctx context.Context, events <-chan identity.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}

			if event.Type == identity.SignedOut {
				logging.Logger.Info("User signed out, clearing in-memory state",
					zap.String("user_id", event.UserID),
				)
				orchestrator.State.Clear()
			}
		}
	}
}

// Session ids are customer id plus a millisecond timestamp joined with a
// dash; the customer id may itself contain dashes.
func customerIDFromSession(sessionID string) string {
	idx := strings.LastIndex(sessionID, "-")
	if idx <= 0 {
		return sessionID
	}

	return sessionID[:idx]
}
