package ble

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ScanPhase identifies which variant of the scan state machine is current.
type ScanPhase int

const (
	ScanIdle ScanPhase = iota
	ScanActive
	ScanComplete
	ScanFailed
)

func (p ScanPhase) String() string {
	switch p {
	case ScanIdle:
		return "idle"
	case ScanActive:
		return "scanning"
	case ScanComplete:
		return "complete"
	case ScanFailed:
		return "error"
	default:
		return fmt.Sprintf("ScanPhase(%d)", int(p))
	}
}

// ScanState is an immutable snapshot of the discovery state machine.
// Devices is populated for ScanActive and ScanComplete, Err for ScanFailed.
type ScanState struct {
	Phase   ScanPhase
	Devices []Device
	Err     string
}

// DiscoveryOptions configures the discovery engine.
type DiscoveryOptions struct {
	// ScanBudget is how long a scan runs before completing on its own.
	ScanBudget time.Duration
}

// DefaultDiscoveryOptions returns sensible defaults.
func DefaultDiscoveryOptions() DiscoveryOptions {
	return DiscoveryOptions{ScanBudget: 5 * time.Second}
}

// Discovery drives radio scanning: it deduplicates sightings by address,
// enforces the scan budget, and exposes an observable ScanState. All state
// mutation is serialized behind its mutex; radio callbacks funnel through it.
type Discovery struct {
	radio Radio
	opts  DiscoveryOptions

	mu      sync.Mutex
	phase   ScanPhase
	seen    map[string]Device // working set during an active scan
	result  []Device          // snapshot for ScanActive/ScanComplete
	errMsg  string
	timer   *time.Timer
	gen     uint64 // scan generation; stale timers and callbacks are dropped
	watcher func(ScanState)
}

// NewDiscovery creates a discovery engine over the given radio.
func NewDiscovery(radio Radio, opts DiscoveryOptions) *Discovery {
	if opts.ScanBudget <= 0 {
		opts.ScanBudget = 5 * time.Second
	}
	return &Discovery{radio: radio, opts: opts}
}

// OnState registers a callback invoked for every state transition, in the
// order transitions are produced. The callback runs on the engine's
// serialization domain and must not call back into the engine.
func (d *Discovery) OnState(fn func(ScanState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watcher = fn
}

// State returns the current scan state.
func (d *Discovery) State() ScanState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// StartScan begins device discovery under the scan budget. It is a no-op if
// a scan is already running; any prior result is discarded.
func (d *Discovery) StartScan() error {
	d.mu.Lock()
	if d.phase == ScanActive {
		d.mu.Unlock()
		return nil
	}
	d.stopTimerLocked()
	d.gen++
	gen := d.gen
	d.seen = make(map[string]Device)
	d.result = nil
	d.errMsg = ""
	d.phase = ScanActive

	err := d.radio.StartScan(
		func(dev Device) { d.onSighting(gen, dev) },
		func(scanErr error) { d.onRadioError(gen, scanErr) },
	)
	if err != nil {
		d.phase = ScanFailed
		d.errMsg = err.Error()
		d.seen = nil
		d.emitLocked()
		d.mu.Unlock()
		return fmt.Errorf("ble: start scan: %w", err)
	}

	d.timer = time.AfterFunc(d.opts.ScanBudget, func() { d.onBudget(gen) })
	d.emitLocked()
	d.mu.Unlock()
	return nil
}

// StopScan ends any in-flight scan, capturing the devices seen so far into
// a Complete state. Calling it when no scan is running is harmless and
// leaves an empty Complete state without touching the radio.
func (d *Discovery) StopScan() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finishLocked(true)
}

// onSighting merges one radio sighting into the working set. A repeat
// sighting of a known address refreshes RSSI and last-seen without emitting;
// only a new address changes the observable set.
func (d *Discovery) onSighting(gen uint64, dev Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || d.phase != ScanActive {
		return
	}
	if dev.LastSeen.IsZero() {
		dev.LastSeen = time.Now()
	}
	_, known := d.seen[dev.Address]
	d.seen[dev.Address] = dev
	d.result = snapshotDevices(d.seen)
	if !known {
		d.emitLocked()
	}
}

// onRadioError handles a radio-level scan failure. This is a hard error,
// distinct from the budget expiring.
func (d *Discovery) onRadioError(gen uint64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || d.phase != ScanActive {
		return
	}
	d.stopTimerLocked()
	if stopErr := d.radio.StopScan(); stopErr != nil {
		slog.Debug("[BLE] stop scan after radio error", "error", stopErr)
	}
	d.phase = ScanFailed
	d.errMsg = err.Error()
	d.seen = nil
	d.result = nil
	slog.Warn("[BLE] scan failed", "error", err)
	d.emitLocked()
}

// onBudget completes the scan normally when the budget expires.
func (d *Discovery) onBudget(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || d.phase != ScanActive {
		return
	}
	d.finishLocked(false)
}

// finishLocked transitions to Complete, releasing the radio if a scan is
// active. Caller must hold mu.
func (d *Discovery) finishLocked(cancelTimer bool) {
	wasActive := d.phase == ScanActive
	if cancelTimer {
		d.stopTimerLocked()
	}
	if wasActive {
		if err := d.radio.StopScan(); err != nil {
			slog.Debug("[BLE] stop scan", "error", err)
		}
		d.result = snapshotDevices(d.seen)
	} else {
		d.result = nil
	}
	d.seen = nil
	d.errMsg = ""
	d.phase = ScanComplete
	d.gen++ // invalidate pending timer/callbacks
	d.emitLocked()
}

func (d *Discovery) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// snapshotLocked builds an immutable state copy. Caller must hold mu.
func (d *Discovery) snapshotLocked() ScanState {
	st := ScanState{Phase: d.phase, Err: d.errMsg}
	if len(d.result) > 0 {
		st.Devices = make([]Device, len(d.result))
		copy(st.Devices, d.result)
	}
	return st
}

func (d *Discovery) emitLocked() {
	if d.watcher != nil {
		d.watcher(d.snapshotLocked())
	}
}

// snapshotDevices copies the working set into a fresh slice, sorted by
// address so observers see a stable order.
func snapshotDevices(seen map[string]Device) []Device {
	if len(seen) == 0 {
		return nil
	}
	out := make([]Device, 0, len(seen))
	for _, dev := range seen {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
