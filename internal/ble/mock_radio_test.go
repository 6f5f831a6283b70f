package ble

import (
	"context"
	"fmt"
	"sync"
)

// fakeLink simulates an open link and counts handle releases so tests can
// assert nothing leaks.
type fakeLink struct {
	mu          sync.Mutex
	writes      [][]byte
	notifyCb    func([]byte)
	dropCb      func()
	closed      int
	discoverErr error
}

func (l *fakeLink) DiscoverServices() error {
	return l.discoverErr
}

func (l *fakeLink) Write(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	l.writes = append(l.writes, cp)
	return nil
}

func (l *fakeLink) Subscribe(fn func([]byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifyCb = fn
	return nil
}

func (l *fakeLink) OnDisconnect(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropCb = fn
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	return nil
}

// SimulateDrop fires the registered disconnect callback.
func (l *fakeLink) SimulateDrop() {
	l.mu.Lock()
	cb := l.dropCb
	l.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// SimulateNotify delivers a frame on the status-notify channel.
func (l *fakeLink) SimulateNotify(data []byte) {
	l.mu.Lock()
	cb := l.notifyCb
	l.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

func (l *fakeLink) closeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// fakeRadio simulates the platform BLE stack. Scan callbacks are captured
// for the test to fire; Connect is scripted through connectFn.
type fakeRadio struct {
	mu        sync.Mutex
	onResult  func(Device)
	onError   func(error)
	scanning  bool
	startErr  error
	starts    int
	stops     int
	connectFn func(ctx context.Context, address string) (Link, error)
}

func (r *fakeRadio) StartScan(onResult func(Device), onError func(error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.starts++
	r.scanning = true
	r.onResult = onResult
	r.onError = onError
	return nil
}

func (r *fakeRadio) StopScan() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	r.scanning = false
	return nil
}

func (r *fakeRadio) Connect(ctx context.Context, address string) (Link, error) {
	r.mu.Lock()
	fn := r.connectFn
	r.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("fake: no connect script for %s", address)
	}
	return fn(ctx, address)
}

// Sight delivers one sighting through the captured scan callback.
func (r *fakeRadio) Sight(dev Device) {
	r.mu.Lock()
	cb := r.onResult
	r.mu.Unlock()
	if cb != nil {
		cb(dev)
	}
}

// Fail delivers a radio-level scan failure.
func (r *fakeRadio) Fail(err error) {
	r.mu.Lock()
	cb := r.onError
	r.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (r *fakeRadio) isScanning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanning
}

func (r *fakeRadio) counts() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

// fakeHost simulates the background host process. The bind acknowledgement
// is held until the test releases it unless ackNow is set.
type fakeHost struct {
	mu          sync.Mutex
	ackNow      bool
	ackValue    bool
	pendingAck  func(bool)
	launches    int
	unbinds     int
	shutdowns   int
	launchErr   error
	bindErr     error
	unbindErr   error
	shutdownErr error
}

func (h *fakeHost) Launch() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.launchErr != nil {
		return h.launchErr
	}
	h.launches++
	return nil
}

func (h *fakeHost) Bind(ack func(bound bool)) error {
	h.mu.Lock()
	if h.bindErr != nil {
		h.mu.Unlock()
		return h.bindErr
	}
	ackNow, ackValue := h.ackNow, h.ackValue
	if !ackNow {
		h.pendingAck = ack
	}
	h.mu.Unlock()
	if ackNow {
		ack(ackValue)
	}
	return nil
}

// ReleaseAck fires a held bind acknowledgement.
func (h *fakeHost) ReleaseAck(bound bool) {
	h.mu.Lock()
	ack := h.pendingAck
	h.pendingAck = nil
	h.mu.Unlock()
	if ack != nil {
		ack(bound)
	}
}

func (h *fakeHost) Unbind() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbinds++
	return h.unbindErr
}

func (h *fakeHost) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdowns++
	return h.shutdownErr
}

var (
	_ Radio = (*fakeRadio)(nil)
	_ Link  = (*fakeLink)(nil)
	_ Host  = (*fakeHost)(nil)
)
