package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrStartPending rejects a second StartService while a bind acknowledgement
// is still outstanding.
var ErrStartPending = errors.New("ble: service start already pending")

// Host abstracts the background process that owns the radio resources.
// Launch starts it, Bind attaches to it (the ack callback reports whether
// the bind actually took), Unbind detaches, Shutdown requests termination.
type Host interface {
	Launch() error
	Bind(ack func(bound bool)) error
	Unbind() error
	Shutdown() error
}

// Service tracks whether the host process is running. Running flips true
// only on the host's bind acknowledgement, never on the request alone.
type Service struct {
	host Host

	mu       sync.Mutex
	running  bool
	starting bool
	watcher  func(bool)
}

// NewService creates a service lifecycle over the given host.
func NewService(host Host) *Service {
	return &Service{host: host}
}

// OnRunning registers a callback invoked whenever the running flag changes.
// It runs on the engine's serialization domain and must not call back into
// the engine.
func (s *Service) OnRunning(fn func(bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watcher = fn
}

// Running reports whether the host has acknowledged the bind.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StartService launches the host and binds to it. Calling it while already
// running is a no-op; calling it while a bind is still pending is rejected.
// The bind acknowledgement may arrive synchronously or later.
func (s *Service) StartService() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.starting {
		s.mu.Unlock()
		return ErrStartPending
	}
	if err := s.host.Launch(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("ble: launch host: %w", err)
	}
	s.starting = true
	s.mu.Unlock()

	if err := s.host.Bind(func(bound bool) { s.onBindAck(bound) }); err != nil {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
		return fmt.Errorf("ble: bind host: %w", err)
	}
	return nil
}

// StopService unbinds and requests host shutdown. Both are best-effort:
// failures are logged and swallowed so they cannot block a shutdown path,
// and the running flag is cleared unconditionally.
func (s *Service) StopService() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = false
	if err := s.host.Unbind(); err != nil {
		slog.Debug("[BLE] unbind host", "error", err)
	}
	if err := s.host.Shutdown(); err != nil {
		slog.Warn("[BLE] host shutdown request failed", "error", err)
	}
	if s.running {
		s.running = false
		s.emitLocked()
	}
}

// onBindAck funnels the host's acknowledgement into the engine.
func (s *Service) onBindAck(bound bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.starting {
		// Stopped (or never started) while the ack was in flight.
		return
	}
	s.starting = false
	if bound && !s.running {
		s.running = true
		slog.Info("[BLE] host bound")
		s.emitLocked()
	}
}

func (s *Service) emitLocked() {
	if s.watcher != nil {
		s.watcher(s.running)
	}
}

// InProcessHost is a Host for deployments where the daemon itself owns the
// radio: launch and shutdown are no-ops and the bind acknowledges
// immediately.
type InProcessHost struct{}

func (InProcessHost) Launch() error { return nil }

func (InProcessHost) Bind(ack func(bound bool)) error {
	ack(true)
	return nil
}

func (InProcessHost) Unbind() error   { return nil }
func (InProcessHost) Shutdown() error { return nil }
