package beacon

import (
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/rapport-app/rapport/internal/circuitbreak"
	"github.com/rapport-app/rapport/internal/config"
	"github.com/rapport-app/rapport/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type ProducerResult struct {
	Partition int32
	Offset    int64
}

// Visit is one portal interaction worth reporting downstream.
type Visit struct {
	UserID     string    `json:"user_id"`
	CustomerID string    `json:"customer_id"`
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Producer publishes visit events to Kafka. Tracking is fire and forget;
// portal operations never fail because the beacon is down.
type Producer struct {
	Client         sarama.SyncProducer
	CircuitBreaker *gobreaker.CircuitBreaker[ProducerResult]
}

func NewProducer() (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	cfg.Producer.Return.Successes = true

	if config.Conf.KafkaUsername != "" {
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		cfg.Net.SASL.User = config.Conf.KafkaUsername
		cfg.Net.SASL.Password = config.Conf.KafkaPassword
		cfg.Net.SASL.Handshake = true
		cfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &XDGSCRAMClient{}
		}
	}

	client, err := sarama.NewSyncProducer([]string{config.Conf.KafkaBootstrapServer}, cfg)
	if err != nil {
		logging.Logger.Error("Failed to create beacon producer",
			zap.String("bootstrap", config.Conf.KafkaBootstrapServer),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to beacon producer",
		zap.String("bootstrap", config.Conf.KafkaBootstrapServer),
	)

	return &Producer{
		Client:         client,
		CircuitBreaker: newBeaconCircuitBreaker(),
	}, nil
}

func newBeaconCircuitBreaker() *gobreaker.CircuitBreaker[ProducerResult] {
	settings := gobreaker.Settings{
		Name:     "BeaconProducer",
		Interval: time.Duration(config.Conf.KafkaIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.KafkaConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.BeaconService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[ProducerResult](settings)
}

// Track publishes a visit event, swallowing any failure.
func (producer *Producer) Track(visit Visit) {
	err := producer.send(visit)
	if err != nil {
		logging.Logger.Warn("Failed to publish visit event",
			zap.String("user_id", visit.UserID),
			zap.String("action", visit.Action),
			zap.String("error", err.Error()),
		)
	}
}

// Ping publishes a heartbeat visit and reports whether the broker accepted
// it.
func (producer *Producer) Ping() error {
	return producer.send(Visit{Action: "healthcheck", OccurredAt: time.Now()})
}

func (producer *Producer) send(visit Visit) error {
	payload, err := json.Marshal(visit)
	if err != nil {
		logging.Logger.Error("Failed to encode visit event", zap.String("error", err.Error()))
		return err
	}

	_, err = producer.CircuitBreaker.Execute(func() (ProducerResult, error) {
		return producer.doSendMessage([]byte(visit.UserID), payload)
	})

	return err
}

func (producer *Producer) Close() error {
	err := producer.Client.Close()
	if err != nil {
		logging.Logger.Error("Failed to close beacon producer", zap.String("error", err.Error()))
		return err
	}

	logging.Logger.Info("Beacon producer closed successfully")

	return nil
}

func (producer *Producer) doSendMessage(key, value []byte) (ProducerResult, error) {
	message := &sarama.ProducerMessage{
		Topic: config.Conf.KafkaVisitTopic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := producer.Client.SendMessage(message)
	if err != nil {
		return ProducerResult{}, err
	}

	logging.Logger.Debug("Visit event sent",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return ProducerResult{Partition: partition, Offset: offset}, nil
}
