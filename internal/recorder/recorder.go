package recorder

import (
	"bytes"
	"errors"
	"time"

	"github.com/rapport-app/rapport/internal/logging"
	"go.uber.org/zap"
)

var (
	ErrDevice         = errors.New("audio input device is unavailable")
	ErrInvalidState   = errors.New("invalid recorder state transition")
	ErrNotInitialized = errors.New("recorder is not initialized")
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateStopped
)

func (state State) String() string {
	switch state {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Device is the audio input capability behind the recorder. Acquire fails
// when the input is absent or access is denied.
type Device interface {
	Acquire() error
	Release()
}

// Take is one finished recording: the concatenated audio and its length in
// seconds, paused time excluded.
type Take struct {
	Audio    []byte
	Duration int
}

// Recorder buffers captured audio chunks through the idle, recording,
// paused and stopped states. It is cooperative: callers append chunks in
// capture order and concatenation order is append order.
type Recorder struct {
	device      Device
	initialized bool
	state       State
	chunks      [][]byte

	startedAt time.Time
	pausedAt  time.Time
	pausedFor time.Duration

	now func() time.Time
}

func New(device Device) *Recorder {
	return &Recorder{
		device: device,
		state:  StateIdle,
		now:    time.Now,
	}
}

func (rec *Recorder) State() State {
	return rec.state
}

// Initialize acquires the audio input. On failure the recorder stays idle
// and uninitialized.
func (rec *Recorder) Initialize() error {
	if rec.initialized {
		return nil
	}

	err := rec.device.Acquire()
	if err != nil {
		logging.Logger.Error("Failed to acquire audio input",
			zap.String("error", err.Error()),
		)

		return errors.Join(ErrDevice, err)
	}

	rec.initialized = true

	return nil
}

// Start begins a new take, discarding any previously buffered chunks. It is
// only valid from idle so double-start bugs surface instead of silently
// dropping audio.
func (rec *Recorder) Start() error {
	if !rec.initialized {
		return ErrNotInitialized
	}

	if rec.state != StateIdle {
		logging.Logger.Warn("Start called outside idle state",
			zap.String("state", rec.state.String()),
		)

		return ErrInvalidState
	}

	rec.chunks = rec.chunks[:0]
	rec.startedAt = rec.now()
	rec.pausedFor = 0
	rec.state = StateRecording

	return nil
}

// Pause suspends capture. Calling it outside recording is a no-op.
func (rec *Recorder) Pause() {
	if rec.state != StateRecording {
		return
	}

	rec.pausedAt = rec.now()
	rec.state = StatePaused
}

// Resume continues capture after a pause. Calling it outside paused is a
// no-op.
func (rec *Recorder) Resume() {
	if rec.state != StatePaused {
		return
	}

	rec.pausedFor += rec.now().Sub(rec.pausedAt)
	rec.state = StateRecording
}

// AppendChunk adds captured bytes to the current take. Chunks arriving
// outside an active take are dropped.
func (rec *Recorder) AppendChunk(chunk []byte) {
	if rec.state != StateRecording && rec.state != StatePaused {
		return
	}

	if len(chunk) == 0 {
		return
	}

	rec.chunks = append(rec.chunks, chunk)
}

// Stop finishes the take, concatenating buffered chunks into one blob. The
// reported duration excludes paused time. A new Start reinitializes from
// idle via Cleanup.
func (rec *Recorder) Stop() (*Take, error) {
	if !rec.initialized {
		return nil, ErrNotInitialized
	}

	if rec.state != StateRecording && rec.state != StatePaused {
		return nil, ErrInvalidState
	}

	endedAt := rec.now()
	if rec.state == StatePaused {
		rec.pausedFor += endedAt.Sub(rec.pausedAt)
	}

	var buf bytes.Buffer
	for _, chunk := range rec.chunks {
		buf.Write(chunk)
	}

	duration := int((endedAt.Sub(rec.startedAt) - rec.pausedFor).Seconds())
	if duration < 0 {
		duration = 0
	}

	rec.state = StateStopped

	logging.Logger.Info("Recording stopped",
		zap.Int("chunks", len(rec.chunks)),
		zap.Int("size", buf.Len()),
		zap.Int("duration", duration),
	)

	return &Take{Audio: buf.Bytes(), Duration: duration}, nil
}

// Cleanup releases the input and buffered state. Safe from any state,
// including after an error, and idempotent.
func (rec *Recorder) Cleanup() {
	if rec.initialized {
		rec.device.Release()
	}

	rec.initialized = false
	rec.state = StateIdle
	rec.chunks = nil
	rec.pausedFor = 0
}
