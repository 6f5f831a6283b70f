package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Connection engine errors surfaced to callers.
var (
	// ErrAlreadyConnected rejects a connect attempt while a link is held.
	ErrAlreadyConnected = errors.New("ble: already connected")
	// ErrConnectBusy rejects a connect attempt while another is in flight.
	ErrConnectBusy = errors.New("ble: connect already in progress")
	// ErrConnectCanceled resolves a connect attempt the caller gave up on.
	// Cancellation is its own terminal outcome; it never surfaces as an
	// Error state carrying a stale radio status.
	ErrConnectCanceled = errors.New("ble: connect canceled")
)

// ConnPhase identifies which variant of the connection state machine is
// current.
type ConnPhase int

const (
	ConnDisconnected ConnPhase = iota
	ConnConnecting
	ConnConnected
	ConnFailed
)

func (p ConnPhase) String() string {
	switch p {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnFailed:
		return "error"
	default:
		return fmt.Sprintf("ConnPhase(%d)", int(p))
	}
}

// ConnectionState is an immutable snapshot of the connection state machine.
// Device is populated for ConnConnected, Err for ConnFailed.
type ConnectionState struct {
	Phase  ConnPhase
	Device Device
	Err    string
}

// Connection opens and closes a single logical link to one discovered
// device. It enforces single-flight on connect attempts through its own
// state, and guarantees at most one physical link handle is held at a time.
type Connection struct {
	radio Radio

	mu      sync.Mutex
	phase   ConnPhase
	device  Device
	link    Link
	errMsg  string
	cancel  context.CancelFunc // cancels the in-flight connect, if any
	gen     uint64             // link generation; stale drop callbacks are ignored
	watcher func(ConnectionState)
	notify  func([]byte)
}

// NewConnection creates a connection engine over the given radio.
func NewConnection(radio Radio) *Connection {
	return &Connection{radio: radio}
}

// OnState registers a callback invoked for every state transition, in
// order. The callback runs on the engine's serialization domain and must
// not call back into the engine.
func (c *Connection) OnState(fn func(ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watcher = fn
}

// OnNotify registers a callback for frames arriving on the status-notify
// channel. It applies to the current link and every future one.
func (c *Connection) OnNotify(fn func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Connect attempts a connection to device. It resolves exactly once: with
// nil once the link is established, or with an error when the radio reports
// failure, the device drops the link first, or ctx is cancelled. A second
// attempt while connected or connecting is rejected without touching the
// hardware.
func (c *Connection) Connect(ctx context.Context, device Device) error {
	c.mu.Lock()
	switch c.phase {
	case ConnConnected:
		c.mu.Unlock()
		return ErrAlreadyConnected
	case ConnConnecting:
		c.mu.Unlock()
		return ErrConnectBusy
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.phase = ConnConnecting
	c.errMsg = ""
	c.emitLocked()
	c.mu.Unlock()

	link, err := c.radio.Connect(attemptCtx, device.Address)
	cancelled := attemptCtx.Err() != nil
	cancel()

	c.mu.Lock()
	c.cancel = nil

	switch {
	case cancelled:
		// The caller (or Disconnect) gave up. The radio contract says no
		// link is retained on error; a link racing in past the
		// cancellation still gets released here.
		if link != nil {
			if closeErr := link.Close(); closeErr != nil {
				slog.Debug("[BLE] close link after canceled connect", "error", closeErr)
			}
		}
		c.phase = ConnDisconnected
		c.emitLocked()
		c.mu.Unlock()
		return ErrConnectCanceled
	case errors.Is(err, ErrLinkDropped):
		// Dropped before the link was ever up: a plain disconnection, not
		// a transport error.
		c.phase = ConnDisconnected
		c.emitLocked()
		c.mu.Unlock()
		return fmt.Errorf("ble: connect %s: %w", device.Address, err)
	case err != nil:
		c.phase = ConnFailed
		c.errMsg = err.Error()
		c.emitLocked()
		c.mu.Unlock()
		return fmt.Errorf("ble: connect %s: %w", device.Address, err)
	}

	c.gen++
	gen := c.gen
	c.link = link
	c.device = device
	c.phase = ConnConnected
	notify := c.notify
	link.OnDisconnect(func() { c.onLinkDrop(gen) })
	c.emitLocked()
	c.mu.Unlock()

	// Resolve the LiftLink service and wire status notifications while we
	// are here. Failure only logs; the connection stands either way.
	if err := link.DiscoverServices(); err != nil {
		slog.Warn("[BLE] service discovery failed", "device", device.Address, "error", err)
	} else if notify != nil {
		if err := link.Subscribe(notify); err != nil {
			slog.Warn("[BLE] status subscribe failed", "device", device.Address, "error", err)
		}
	}
	slog.Info("[BLE] connected", "device", device.Address, "name", device.DisplayName())
	return nil
}

// Disconnect tears the connection down. It cancels an in-flight connect
// first, and closing an already-absent link is a successful no-op.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == ConnConnecting && c.cancel != nil {
		// The pending Connect resolves with ErrConnectCanceled and runs
		// the release path itself.
		c.cancel()
		return nil
	}

	if c.link != nil {
		if err := c.link.Close(); err != nil {
			slog.Debug("[BLE] close link", "error", err)
		}
		c.link = nil
		c.gen++
	}
	if c.phase != ConnDisconnected {
		c.phase = ConnDisconnected
		c.errMsg = ""
		c.emitLocked()
	}
	return nil
}

// Write sends one frame to the command-write channel of the current link.
func (c *Connection) Write(data []byte) error {
	c.mu.Lock()
	link := c.link
	connected := c.phase == ConnConnected
	c.mu.Unlock()
	if !connected || link == nil {
		return errors.New("ble: not connected")
	}
	return link.Write(data)
}

// onLinkDrop funnels an unsolicited disconnect from the platform callback
// context into the engine's serialization domain.
func (c *Connection) onLinkDrop(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.phase != ConnConnected {
		return
	}
	slog.Warn("[BLE] link dropped", "device", c.device.Address)
	c.link = nil
	c.phase = ConnDisconnected
	c.emitLocked()
}

func (c *Connection) snapshotLocked() ConnectionState {
	st := ConnectionState{Phase: c.phase, Err: c.errMsg}
	if c.phase == ConnConnected {
		st.Device = c.device
	}
	return st
}

func (c *Connection) emitLocked() {
	if c.watcher != nil {
		c.watcher(c.snapshotLocked())
	}
}
