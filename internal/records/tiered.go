package records

import (
	"context"

	"github.com/rapport-app/rapport/internal/customer"
	"github.com/rapport-app/rapport/internal/logging"
	"github.com/rapport-app/rapport/internal/session"
	"go.uber.org/zap"
)

// CustomerStore is satisfied by both the remote repository and the local
// cache mirror.
type CustomerStore interface {
	Create(ctx context.Context, record *customer.Customer) error
	List(ctx context.Context) ([]customer.Customer, error)
	Delete(ctx context.Context, customerID string) error
}

type SessionStore interface {
	Upsert(ctx context.Context, record *session.Session) error
	ListByCustomer(ctx context.Context, customerID string) ([]session.Session, error)
	DeleteByCustomer(ctx context.Context, customerID string) error
}

// TieredCustomers writes through to the local cache first so records survive
// a remote outage, then mirrors to the remote store. Reads prefer the remote
// store and fall back to the cache when it is unreachable.
type TieredCustomers struct {
	Local  CustomerStore
	Remote CustomerStore
}

func NewTieredCustomers(local, remote CustomerStore) *TieredCustomers {
	return &TieredCustomers{Local: local, Remote: remote}
}

// Create persists locally, then mirrors remotely. A remote failure is logged
// and absorbed; the record is durable locally and will reach the remote store
// on a later write.
func (tieredCustomers *TieredCustomers) Create(ctx context.Context, record *customer.Customer) error {
	err := tieredCustomers.Local.Create(ctx, record)
	if err != nil {
		return err
	}

	err = tieredCustomers.Remote.Create(ctx, record)
	if err != nil {
		logging.Logger.Warn("remote customer create failed, record kept locally",
			zap.String("customer_id", record.ID),
			zap.String("error", err.Error()),
		)
	}

	return nil
}

func (tieredCustomers *TieredCustomers) List(ctx context.Context) ([]customer.Customer, error) {
	records, err := tieredCustomers.Remote.List(ctx)
	if err == nil {
		return records, nil
	}

	logging.Logger.Warn("remote customer list failed, serving local cache",
		zap.String("error", err.Error()),
	)

	return tieredCustomers.Local.List(ctx)
}

// Delete removes the customer from both tiers. The remote delete runs first
// and its failure propagates; dropping the local copy while the remote row
// survives would resurrect the customer on the next sync.
func (tieredCustomers *TieredCustomers) Delete(ctx context.Context, customerID string) error {
	err := tieredCustomers.Remote.Delete(ctx, customerID)
	if err != nil {
		return err
	}

	return tieredCustomers.Local.Delete(ctx, customerID)
}

// TieredSessions applies the same layering to session records.
type TieredSessions struct {
	Local  SessionStore
	Remote SessionStore
}

func NewTieredSessions(local, remote SessionStore) *TieredSessions {
	return &TieredSessions{Local: local, Remote: remote}
}

func (tieredSessions *TieredSessions) Upsert(ctx context.Context, record *session.Session) error {
	err := tieredSessions.Local.Upsert(ctx, record)
	if err != nil {
		return err
	}

	err = tieredSessions.Remote.Upsert(ctx, record)
	if err != nil {
		logging.Logger.Warn("remote session upsert failed, record kept locally",
			zap.String("session_id", record.ID),
			zap.String("error", err.Error()),
		)
	}

	return nil
}

func (tieredSessions *TieredSessions) ListByCustomer(
	ctx context.Context,
	customerID string,
) ([]session.Session, error) {
	records, err := tieredSessions.Remote.ListByCustomer(ctx, customerID)
	if err == nil {
		return records, nil
	}

	logging.Logger.Warn("remote session list failed, serving local cache",
		zap.String("customer_id", customerID),
		zap.String("error", err.Error()),
	)

	return tieredSessions.Local.ListByCustomer(ctx, customerID)
}

func (tieredSessions *TieredSessions) DeleteByCustomer(ctx context.Context, customerID string) error {
	err := tieredSessions.Remote.DeleteByCustomer(ctx, customerID)
	if err != nil {
		return err
	}

	return tieredSessions.Local.DeleteByCustomer(ctx, customerID)
}
