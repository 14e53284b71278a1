package localcache

import (
	"context"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rapport-app/rapport/internal/customer"
	"github.com/rapport-app/rapport/internal/logging"
	"github.com/rapport-app/rapport/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CustomerCache mirrors the remote customers table inside the local cache so
// the customer list survives remote outages and restarts.
type CustomerCache struct {
	CacheDB *gorm.DB
}

func NewCustomerCache(cacheDB *gorm.DB) *CustomerCache {
	return &CustomerCache{CacheDB: cacheDB}
}

func (customerCache *CustomerCache) Create(ctx context.Context, record *customer.Customer) error {
	return putRecord(ctx, customerCache.CacheDB, "customer/"+record.ID, KindCustomer, "", record)
}

func (customerCache *CustomerCache) List(ctx context.Context) ([]customer.Customer, error) {
	rows, err := listRecords(ctx, customerCache.CacheDB, KindCustomer, "")
	if err != nil {
		return nil, err
	}

	customers := make([]customer.Customer, 0, len(rows))

	for idx := range rows {
		var record customer.Customer

		err = json.Unmarshal(rows[idx].Payload, &record)
		if err != nil {
			logging.Logger.Error("failed to decode cached customer",
				zap.String("key", rows[idx].Key),
				zap.String("error", err.Error()),
			)

			continue
		}

		customers = append(customers, record)
	}

	sort.Slice(customers, func(i, j int) bool {
		return customers[i].CreatedAt.Before(customers[j].CreatedAt)
	})

	return customers, nil
}

func (customerCache *CustomerCache) Delete(ctx context.Context, customerID string) error {
	return customerCache.CacheDB.WithContext(ctx).
		Where("key = ?", "customer/"+customerID).
		Delete(&Record{}).Error
}

// SessionCache mirrors the remote sessions table inside the local cache.
type SessionCache struct {
	CacheDB *gorm.DB
}

func NewSessionCache(cacheDB *gorm.DB) *SessionCache {
	return &SessionCache{CacheDB: cacheDB}
}

func (sessionCache *SessionCache) Upsert(ctx context.Context, record *session.Session) error {
	return putRecord(ctx, sessionCache.CacheDB, "session/"+record.ID, KindSession, record.CustomerID, record)
}

func (sessionCache *SessionCache) ListByCustomer(ctx context.Context, customerID string) ([]session.Session, error) {
	rows, err := listRecords(ctx, sessionCache.CacheDB, KindSession, customerID)
	if err != nil {
		return nil, err
	}

	sessions := make([]session.Session, 0, len(rows))

	for idx := range rows {
		var record session.Session

		err = json.Unmarshal(rows[idx].Payload, &record)
		if err != nil {
			logging.Logger.Error("failed to decode cached session",
				zap.String("key", rows[idx].Key),
				zap.String("error", err.Error()),
			)

			continue
		}

		sessions = append(sessions, record)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Date.After(sessions[j].Date)
	})

	return sessions, nil
}

func (sessionCache *SessionCache) DeleteByCustomer(ctx context.Context, customerID string) error {
	return sessionCache.CacheDB.WithContext(ctx).
		Where("kind = ? AND owner_id = ?", KindSession, customerID).
		Delete(&Record{}).Error
}

func putRecord(ctx context.Context, cacheDB *gorm.DB, key, kind, ownerID string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	now := time.Now()
	row := Record{
		Key:       key,
		Kind:      kind,
		OwnerID:   ownerID,
		Payload:   payload,
		UpdatedAt: now,
	}

	err = cacheDB.WithContext(ctx).
		Where("key = ?", key).
		Assign(map[string]interface{}{
			"kind":       kind,
			"owner_id":   ownerID,
			"payload":    payload,
			"updated_at": now,
		}).
		FirstOrCreate(&row).Error
	if err != nil {
		err = wrapWriteError(err)
		logging.Logger.Error("failed to write cached record",
			zap.String("key", key),
			zap.String("error", err.Error()),
		)

		return err
	}

	return nil
}

func listRecords(ctx context.Context, cacheDB *gorm.DB, kind, ownerID string) ([]Record, error) {
	var rows []Record

	query := cacheDB.WithContext(ctx).Where("kind = ?", kind)
	if ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}

	err := query.Find(&rows).Error
	if err != nil {
		logging.Logger.Error("failed to list cached records",
			zap.String("kind", kind),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	return rows, nil
}
