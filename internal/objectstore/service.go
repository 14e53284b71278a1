package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/avast/retry-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rapport-app/rapport/internal/circuitbreak"
	"github.com/rapport-app/rapport/internal/config"
	"github.com/rapport-app/rapport/internal/logging"
	prometheusRapport "github.com/rapport-app/rapport/internal/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var (
	ErrUnreachable        = errors.New("object store is unreachable")
	ErrBucketMissing      = errors.New("object store bucket does not exist")
	ErrConvertToStringURL = errors.New("failed to convert result url to string")
	ErrConvertToBuffer    = errors.New("failed to convert result to pointer to bytes.Buffer")
)

type Client struct {
	Client         *minio.Client
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	BucketName     string
	PathPrefix     string
}

// NewClient initializes the MinIO-backed recording store.
func NewClient() (*Client, error) {
	endpointURL := config.Conf.MinioEndpointURL

	client, err := minio.New(endpointURL, &minio.Options{
		Creds:  credentials.NewStaticV4(config.Conf.MinioAccessKey, config.Conf.MinioSecretKey, ""),
		Secure: config.Conf.MinioSecure,
	})
	if err != nil {
		logging.Logger.Error("Failed to initialize object store client",
			zap.String("endpoint", endpointURL),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to object store",
		zap.String("endpoint", endpointURL),
		zap.String("bucket", config.Conf.MinioBucketName),
	)

	return &Client{
		Client:         client,
		CircuitBreaker: newCircuitBreaker(),
		BucketName:     config.Conf.MinioBucketName,
		PathPrefix:     config.Conf.MinioPathPrefix,
	}, nil
}

func newCircuitBreaker() *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:     "objectstore",
		Interval: time.Duration(config.Conf.MinioIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.MinioConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn(
				"Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.ObjectStoreService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[any](settings)
}

func getTimeout() time.Duration {
	return time.Duration(config.Conf.MinioTimeout) * time.Second
}

// Probe checks whether the store can accept an upload right now. It
// distinguishes an unreachable endpoint, which the caller may queue and
// retry, from a missing bucket, which no amount of retrying fixes.
func (objectStore *Client) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(config.Conf.MinioProbeTimeout)*time.Second)
	defer cancel()

	exists, err := objectStore.Client.BucketExists(probeCtx, objectStore.BucketName)
	if err != nil {
		logging.Logger.Error("Object store probe failed",
			zap.String("bucket", objectStore.BucketName),
			zap.String("error", err.Error()),
		)

		return fmt.Errorf("%w: %s", ErrUnreachable, err.Error())
	}

	if !exists {
		logging.Logger.Error("Object store bucket missing",
			zap.String("bucket", objectStore.BucketName),
		)

		return ErrBucketMissing
	}

	return nil
}

// Put stores the audio for sessionID in a single attempt. The caller owns
// the retry policy.
func (objectStore *Client) Put(ctx context.Context, sessionID string, audio []byte) error {
	timer := prometheus.NewTimer(prometheusRapport.ObjectStoreOperationDuration.WithLabelValues("put"))
	defer timer.ObserveDuration()

	putCtx, cancel := context.WithTimeout(ctx, getTimeout())
	defer cancel()

	_, err := objectStore.CircuitBreaker.Execute(func() (any, error) {
		_, putErr := objectStore.Client.PutObject(
			putCtx,
			objectStore.BucketName,
			objectStore.getKey(sessionID),
			bytes.NewReader(audio),
			int64(len(audio)),
			minio.PutObjectOptions{ContentType: "audio/webm"},
		)
		if putErr != nil {
			logging.Logger.Error("Object store put failed",
				zap.String("session_id", sessionID),
				zap.Int("size", len(audio)),
				zap.String("error", putErr.Error()),
			)

			if minio.ToErrorResponse(putErr).Code == "NoSuchBucket" {
				return nil, fmt.Errorf("%w: %s", ErrBucketMissing, putErr.Error())
			}

			return nil, putErr
		}

		return nil, nil
	})

	return err
}

// ResolveURL returns the playback URL for a stored recording. With a public
// base URL configured the result is a plain join; otherwise a presigned GET
// URL is issued.
func (objectStore *Client) ResolveURL(ctx context.Context, sessionID string) (string, error) {
	key := objectStore.getKey(sessionID)

	if config.Conf.MinioPublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", config.Conf.MinioPublicBaseURL, objectStore.BucketName, key), nil
	}

	ttlMinutes := config.Conf.MinioSignedURLTTLMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}

	result, err := objectStore.CircuitBreaker.Execute(func() (any, error) {
		signedURL, signErr := objectStore.Client.PresignedGetObject(
			ctx,
			objectStore.BucketName,
			key,
			time.Duration(ttlMinutes)*time.Minute,
			nil,
		)
		if signErr != nil {
			logging.Logger.Error("Failed to presign recording URL",
				zap.String("session_id", sessionID),
				zap.String("error", signErr.Error()),
			)

			return nil, signErr
		}

		return signedURL.String(), nil
	})
	if err != nil {
		return "", err
	}

	urlStr, ok := result.(string)
	if !ok {
		return "", ErrConvertToStringURL
	}

	return urlStr, nil
}

// Download fetches a stored recording with retry.
func (objectStore *Client) Download(ctx context.Context, sessionID string) (*bytes.Buffer, error) {
	result, err := objectStore.CircuitBreaker.Execute(func() (any, error) {
		return objectStore.doDownload(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}

	buf, ok := result.(*bytes.Buffer)
	if !ok {
		return nil, ErrConvertToBuffer
	}

	return buf, nil
}

func (objectStore *Client) doDownload(ctx context.Context, sessionID string) (*bytes.Buffer, error) {
	timer := prometheus.NewTimer(prometheusRapport.ObjectStoreOperationDuration.WithLabelValues("download"))
	defer timer.ObserveDuration()

	var buf *bytes.Buffer

	downloadCtx, cancel := context.WithTimeout(ctx, getTimeout())
	defer cancel()

	err := retry.Do(
		func() error {
			object, err := objectStore.Client.GetObject(
				downloadCtx,
				objectStore.BucketName,
				objectStore.getKey(sessionID),
				minio.GetObjectOptions{},
			)
			if err != nil {
				logging.Logger.Error("Object store download failed",
					zap.String("session_id", sessionID),
					zap.String("error", err.Error()),
				)

				return err
			}

			defer func() {
				cerr := object.Close()
				if cerr != nil {
					logging.Logger.Error("Failed to close object reader",
						zap.String("session_id", sessionID),
						zap.String("error", cerr.Error()),
					)
				}
			}()

			data, err := io.ReadAll(object)
			if err != nil {
				return err
			}

			buf = bytes.NewBuffer(data)

			return nil
		},
		retry.Attempts(config.Conf.MinioMaxRetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.MinioRetryBackoffMin)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.MinioRetryBackoffMax)*time.Second),
	)
	if err != nil {
		return nil, err
	}

	return buf, nil
}

// Delete removes the stored recording for sessionID. Deleting an absent
// object is not an error.
func (objectStore *Client) Delete(ctx context.Context, sessionID string) error {
	timer := prometheus.NewTimer(prometheusRapport.ObjectStoreOperationDuration.WithLabelValues("delete"))
	defer timer.ObserveDuration()

	deleteCtx, cancel := context.WithTimeout(ctx, getTimeout())
	defer cancel()

	_, err := objectStore.CircuitBreaker.Execute(func() (any, error) {
		removeErr := objectStore.Client.RemoveObject(
			deleteCtx,
			objectStore.BucketName,
			objectStore.getKey(sessionID),
			minio.RemoveObjectOptions{},
		)
		if removeErr != nil {
			logging.Logger.Error("Object store delete failed",
				zap.String("session_id", sessionID),
				zap.String("error", removeErr.Error()),
			)

			return nil, removeErr
		}

		return nil, nil
	})

	return err
}

func (objectStore *Client) getKey(sessionID string) string {
	return path.Join(objectStore.PathPrefix, sessionID, "recording")
}
