package customer

import (
	"context"
	"errors"

	"github.com/rapport-app/rapport/internal/database"
	"github.com/rapport-app/rapport/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidCustomerSliceResult = errors.New("invalid result type, it should be slice of Customer")

type CustomerRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *CustomerRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &CustomerRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// Create inserts a new customer row into the remote record store.
func (customerRepository *CustomerRepository) Create(ctx context.Context, record *Customer) error {
	_, err := customerRepository.CircuitBreaker.Execute(func() (any, error) {
		err := customerRepository.DBConn.WithContext(ctx).Create(record).Error
		if err != nil {
			logging.Logger.Error("[Create] Failed to create customer",
				zap.String("customer_id", record.ID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return record, nil
	})

	return err
}

// List returns every customer ordered by creation time ascending.
func (customerRepository *CustomerRepository) List(ctx context.Context) ([]Customer, error) {
	result, err := customerRepository.CircuitBreaker.Execute(func() (any, error) {
		var records []Customer

		err := customerRepository.DBConn.WithContext(ctx).
			Order("created_at ASC").
			Find(&records).Error
		if err != nil {
			logging.Logger.Error("[List] Failed to fetch customers", zap.String("error", err.Error()))
			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]Customer)
	if !ok {
		return nil, ErrInvalidCustomerSliceResult
	}

	return records, nil
}

// Delete removes the customer row. Dependent session rows must already be
// gone; the orchestrator owns that ordering.
func (customerRepository *CustomerRepository) Delete(ctx context.Context, customerID string) error {
	_, err := customerRepository.CircuitBreaker.Execute(func() (any, error) {
		err := customerRepository.DBConn.WithContext(ctx).
			Where("id = ?", customerID).
			Delete(&Customer{}).Error
		if err != nil {
			logging.Logger.Error("[Delete] Failed to delete customer",
				zap.String("customer_id", customerID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}
