package transcriber

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"time"

	"github.com/avast/retry-go"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rapport-app/rapport/internal/config"
	"github.com/rapport-app/rapport/internal/logging"
	prometheusRapport "github.com/rapport-app/rapport/internal/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const transcriptionPrompt = "Transcribe this audio to plain text. Do not add any commentary."

var ErrNotConfigured = errors.New("transcriber base url is not configured")

type TranscriptionProvider interface {
	Transcribe(ctx context.Context, audio []byte, sessionID string) (string, error)
}

type Client struct {
	Client         *openai.Client
	CircuitBreaker *gobreaker.CircuitBreaker[string]
	Configured     bool
}

func NewClient() *Client {
	configured := config.Conf.TranscriberBaseURL != ""

	opts := []option.RequestOption{
		option.WithRequestTimeout(time.Duration(config.Conf.TranscriberTimeout) * time.Second),
	}
	if configured {
		opts = append(opts, option.WithBaseURL(config.Conf.TranscriberBaseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		Client:         &client,
		CircuitBreaker: newCircuitBreaker(),
		Configured:     configured,
	}
}

func newCircuitBreaker() *gobreaker.CircuitBreaker[string] {
	settings := gobreaker.Settings{
		Name:     "transcriber",
		Interval: time.Duration(config.Conf.TranscriberIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.TranscriberConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Info("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)
		},
	}

	return gobreaker.NewCircuitBreaker[string](settings)
}

// Transcribe converts a recording to plain text. Callers treat a failure as
// a missing transcript, not a failed upload.
func (transcriberClient *Client) Transcribe(
	ctx context.Context,
	audio []byte,
	sessionID string,
) (string, error) {
	if !transcriberClient.Configured {
		return "", ErrNotConfigured
	}

	logging.Logger.Info("Starting transcription",
		zap.String("session_id", sessionID),
		zap.Int("audio_size", len(audio)),
	)

	timer := prometheus.NewTimer(prometheusRapport.TranscriptionDuration)
	defer timer.ObserveDuration()

	result, err := transcriberClient.CircuitBreaker.Execute(func() (string, error) {
		return transcriberClient.doTranscriptionRequest(ctx, audio, sessionID)
	})
	if err != nil {
		return "", err
	}

	return result, nil
}

func (transcriberClient *Client) doTranscriptionRequest(
	ctx context.Context,
	audio []byte,
	sessionID string,
) (string, error) {
	var transcript string

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			body, contentType, err := createTranscriptionBody(audio)
			if err != nil {
				return err
			}

			opts := []option.RequestOption{
				option.WithHeader("x-request-id", sessionID),
				option.WithRequestBody(contentType, body),
			}

			resp, err := transcriberClient.Client.Audio.Transcriptions.New(
				ctx,
				openai.AudioTranscriptionNewParams{},
				opts...,
			)
			if err != nil {
				logging.Logger.Error("Transcription request failed",
					zap.String("session_id", sessionID),
					zap.String("error", err.Error()),
				)

				return err
			}

			transcript = resp.Text
			logging.Logger.Info("Transcription completed successfully",
				zap.String("session_id", sessionID),
				zap.Int("text_length", len(transcript)),
			)

			return nil
		},
		retry.Attempts(config.Conf.TranscriberRetryMaxAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.TranscriberRetryMinBackoff)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.TranscriberRetryMaxBackoff)*time.Second),
	)
	if err != nil {
		logging.Logger.Error("Transcription failed after all retry attempts",
			zap.String("session_id", sessionID),
			zap.String("error", err.Error()),
		)

		return "", err
	}

	return transcript, nil
}

func createTranscriptionBody(audio []byte) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "recording.webm")
	if err != nil {
		return nil, "", err
	}

	_, err = io.Copy(part, bytes.NewReader(audio))
	if err != nil {
		return nil, "", err
	}

	err = writer.WriteField("model", config.Conf.TranscriberModel)
	if err != nil {
		return nil, "", err
	}

	err = writer.WriteField("prompt", transcriptionPrompt)
	if err != nil {
		return nil, "", err
	}

	contentType := writer.FormDataContentType()
	_ = writer.Close()

	return body.Bytes(), contentType, nil
}
