package session

import (
	"context"
	"errors"

	"github.com/rapport-app/rapport/internal/database"
	"github.com/rapport-app/rapport/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidSessionSliceResult = errors.New("invalid result type, it should be slice of Session")

type SessionRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *SessionRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &SessionRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// Upsert writes the session row, replacing an existing row with the same id.
// Reconciling an upload outcome re-writes the same session, so this must not
// duplicate.
func (sessionRepository *SessionRepository) Upsert(ctx context.Context, record *Session) error {
	_, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		row := Session{ID: record.ID}

		err := sessionRepository.DBConn.WithContext(ctx).
			Where("id = ?", record.ID).
			Assign(map[string]interface{}{
				"customer_id":   record.CustomerID,
				"customer_name": record.CustomerName,
				"date":          record.Date,
				"transcript":    record.Transcript,
				"duration":      record.Duration,
				"audio_url":     record.AudioURL,
				"status":        record.Status,
			}).
			FirstOrCreate(&row).Error
		if err != nil {
			logging.Logger.Error("[Upsert] Failed to write session",
				zap.String("session_id", record.ID),
				zap.String("status", record.Status),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return record, nil
	})

	return err
}

// ListByCustomer returns the customer's sessions, most recent first.
func (sessionRepository *SessionRepository) ListByCustomer(
	ctx context.Context,
	customerID string,
) ([]Session, error) {
	result, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		var records []Session

		err := sessionRepository.DBConn.WithContext(ctx).
			Where("customer_id = ?", customerID).
			Order("date DESC").
			Find(&records).Error
		if err != nil {
			logging.Logger.Error("[ListByCustomer] Failed to fetch sessions",
				zap.String("customer_id", customerID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]Session)
	if !ok {
		return nil, ErrInvalidSessionSliceResult
	}

	return records, nil
}

// DeleteByCustomer removes every session row belonging to customerID.
func (sessionRepository *SessionRepository) DeleteByCustomer(ctx context.Context, customerID string) error {
	_, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		err := sessionRepository.DBConn.WithContext(ctx).
			Where("customer_id = ?", customerID).
			Delete(&Session{}).Error
		if err != nil {
			logging.Logger.Error("[DeleteByCustomer] Failed to delete sessions",
				zap.String("customer_id", customerID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}
