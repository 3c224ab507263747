// Package capture owns the single camera stream of an attempt.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device")
	ErrAlreadyActive    = errors.New("a camera stream is already active")
	ErrReleased         = errors.New("camera released while the stream was opening")
)

type Reason string

const (
	ReasonPermissionDenied Reason = "permission-denied"
	ReasonNoDevice         Reason = "no-device"
	ReasonOther            Reason = "other"
)

// AcquireError tells the caller which targeted message to show.
type AcquireError struct {
	Reason Reason
	Err    error
}

func (e *AcquireError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("camera acquire failed: %s", e.Reason)
	}
	return fmt.Sprintf("camera acquire failed (%s): %v", e.Reason, e.Err)
}

// Unwrap exposes both the reason sentinel and the underlying cause.
func (e *AcquireError) Unwrap() []error {
	errs := make([]error, 0, 2)
	switch e.Reason {
	case ReasonPermissionDenied:
		errs = append(errs, ErrPermissionDenied)
	case ReasonNoDevice:
		errs = append(errs, ErrNoDevice)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Stream is a live video-only stream.
type Stream interface {
	ID() string
	Stop()
}

// Device opens a video-only stream.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Surface is where the live stream is displayed.
type Surface interface {
	Attach(s Stream) error
	Detach()
}

// Observer follows the camera lifecycle; the face landmark adapter is one.
type Observer interface {
	Started()
	Stopped()
}

type Manager struct {
	mu        sync.Mutex
	device    Device
	stream    Stream
	surface   Surface
	acquiring bool
	// released records a Release that arrived while acquiring.
	released  bool
	observers []Observer
}

func NewManager(device Device) *Manager {
	return &Manager{device: device}
}

func (m *Manager) Observe(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}

// Acquire opens the camera and attaches it to surface. Only one stream may be live;
// callers must Release before acquiring again. A Release issued while the device is
// still opening wins: the new stream is stopped and ErrReleased is returned.
func (m *Manager) Acquire(ctx context.Context, surface Surface) error {
	m.mu.Lock()
	if m.stream != nil || m.acquiring {
		m.mu.Unlock()
		return ErrAlreadyActive
	}
	m.acquiring = true
	m.released = false
	m.mu.Unlock()

	stream, err := m.device.Open(ctx)
	if err != nil {
		m.finishAcquire()
		return classify(err)
	}
	if m.releasedDuringAcquire() {
		m.finishAcquire()
		stream.Stop()
		return ErrReleased
	}

	if surface != nil {
		if err := surface.Attach(stream); err != nil {
			stream.Stop()
			m.finishAcquire()
			return &AcquireError{Reason: ReasonOther, Err: err}
		}
	}

	m.mu.Lock()
	if m.released {
		m.acquiring, m.released = false, false
		m.mu.Unlock()
		stream.Stop()
		if surface != nil {
			surface.Detach()
		}
		return ErrReleased
	}
	m.acquiring = false
	m.stream = stream
	m.surface = surface
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	for _, o := range observers {
		o.Started()
	}
	return nil
}

func (m *Manager) releasedDuringAcquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

func (m *Manager) finishAcquire() {
	m.mu.Lock()
	m.acquiring, m.released = false, false
	m.mu.Unlock()
}

// Release stops every track and detaches the surface. A release during Acquire is
// remembered and applied once the device answers. No-op when idle.
func (m *Manager) Release() {
	m.mu.Lock()
	if m.stream == nil && m.acquiring {
		m.released = true
	}
	stream, surface := m.stream, m.surface
	m.stream, m.surface = nil, nil
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	if stream == nil {
		return
	}
	stream.Stop()
	if surface != nil {
		surface.Detach()
	}
	for _, o := range observers {
		o.Stopped()
	}
}

func classify(err error) error {
	var ae *AcquireError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, ErrPermissionDenied):
		return &AcquireError{Reason: ReasonPermissionDenied, Err: err}
	case errors.Is(err, ErrNoDevice):
		return &AcquireError{Reason: ReasonNoDevice, Err: err}
	default:
		return &AcquireError{Reason: ReasonOther, Err: err}
	}
}

// ReasonOf extracts the failure reason, or "" for nil.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var ae *AcquireError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ReasonOther
}
