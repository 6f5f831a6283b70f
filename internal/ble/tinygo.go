package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// Adapter implements Radio over tinygo-org/bluetooth. On macOS device
// addresses are CoreBluetooth UUIDs rather than MAC addresses; Device.Address
// carries whichever string the platform stack reports.
type Adapter struct {
	adapter *bluetooth.Adapter

	// mu protects the links map and the scanning flag.
	mu       sync.Mutex
	links    map[string]*tinygoLink // keyed by device address
	scanning bool
}

// NewAdapter creates a Radio backed by the platform's default BLE adapter.
func NewAdapter() *Adapter {
	return &Adapter{
		adapter: bluetooth.DefaultAdapter,
		links:   make(map[string]*tinygoLink),
	}
}

// Enable powers on the adapter and registers the adapter-level
// connect/disconnect handler. tinygo/bluetooth fires it (connected=false)
// when a peripheral disconnects; we route that to the matching link.
func (a *Adapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		a.mu.Lock()
		link, ok := a.links[addr]
		delete(a.links, addr)
		a.mu.Unlock()
		if ok {
			link.fireDisconnect()
		}
	})

	return nil
}

// StartScan begins discovery of peripherals advertising the LiftLink
// service. tinygo's Scan blocks, so it runs on its own goroutine; sightings
// and scan failure are funnelled through the callbacks.
func (a *Adapter) StartScan(onResult func(Device), onError func(error)) error {
	uuid, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}

	a.mu.Lock()
	if a.scanning {
		a.mu.Unlock()
		return nil
	}
	a.scanning = true
	a.mu.Unlock()

	go func() {
		err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(uuid) {
				return
			}
			onResult(Device{
				Address:  result.Address.String(),
				Name:     result.LocalName(),
				RSSI:     int(result.RSSI),
				LastSeen: time.Now(),
			})
		})

		a.mu.Lock()
		wasScanning := a.scanning
		a.scanning = false
		a.mu.Unlock()

		// Scan returning while we still think we are scanning means the
		// radio failed; a return after StopScan is the normal exit.
		if err != nil && wasScanning {
			onError(fmt.Errorf("ble: scan: %w", err))
		}
	}()

	return nil
}

// StopScan releases the scan handle.
func (a *Adapter) StopScan() error {
	a.mu.Lock()
	wasScanning := a.scanning
	a.scanning = false
	a.mu.Unlock()
	if !wasScanning {
		return nil
	}
	return a.adapter.StopScan()
}

// Connect opens a link to the device at address, honoring ctx cancellation.
// tinygo's Connect blocks with its own internal timeout; a link that
// arrives after ctx is done is closed rather than leaked.
func (a *Adapter) Connect(ctx context.Context, address string) (Link, error) {
	var addr bluetooth.Address
	addr.Set(address)

	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if result := <-ch; result.err == nil {
				_ = result.device.Disconnect()
			}
		}()
		return nil, fmt.Errorf("ble: connect %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect %s: %w", address, result.err)
		}
		link := &tinygoLink{device: result.device}

		// Track the link so the adapter-level disconnect handler can find
		// it and fire its OnDisconnect callback.
		a.mu.Lock()
		a.links[address] = link
		a.mu.Unlock()

		return link, nil
	}
}

// Compile-time check that Adapter implements Radio.
var _ Radio = (*Adapter)(nil)

type tinygoLink struct {
	device bluetooth.Device

	mu         sync.Mutex
	cmdChar    *bluetooth.DeviceCharacteristic
	statusChar *bluetooth.DeviceCharacteristic
	dropCb     func()
}

// DiscoverServices resolves the LiftLink service and caches its command and
// status characteristics.
func (l *tinygoLink) DiscoverServices() error {
	svcUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return err
	}
	cmdUUID, err := bluetooth.ParseUUID(CommandCharUUID)
	if err != nil {
		return err
	}
	statusUUID, err := bluetooth.ParseUUID(StatusCharUUID)
	if err != nil {
		return err
	}

	svcs, err := l.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return fmt.Errorf("ble: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return fmt.Errorf("ble: service %s not found", ServiceUUID)
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{cmdUUID, statusUUID})
	if err != nil {
		return fmt.Errorf("ble: discover characteristics: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range chars {
		switch chars[i].UUID() {
		case cmdUUID:
			l.cmdChar = &chars[i]
		case statusUUID:
			l.statusChar = &chars[i]
		}
	}
	if l.cmdChar == nil {
		return fmt.Errorf("ble: characteristic %s not found", CommandCharUUID)
	}
	if l.statusChar == nil {
		return fmt.Errorf("ble: characteristic %s not found", StatusCharUUID)
	}
	return nil
}

func (l *tinygoLink) Write(data []byte) error {
	l.mu.Lock()
	cmdChar := l.cmdChar
	l.mu.Unlock()
	if cmdChar == nil {
		return fmt.Errorf("ble: command characteristic not discovered")
	}
	_, err := cmdChar.WriteWithoutResponse(data)
	return err
}

// Subscribe enables notifications on the status characteristic. The stack
// performs the notification-config descriptor write itself.
func (l *tinygoLink) Subscribe(fn func(data []byte)) error {
	l.mu.Lock()
	statusChar := l.statusChar
	l.mu.Unlock()
	if statusChar == nil {
		return fmt.Errorf("ble: status characteristic not discovered")
	}
	return statusChar.EnableNotifications(func(buf []byte) {
		fn(buf)
	})
}

func (l *tinygoLink) OnDisconnect(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropCb = fn
}

func (l *tinygoLink) fireDisconnect() {
	l.mu.Lock()
	cb := l.dropCb
	l.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (l *tinygoLink) Close() error {
	return l.device.Disconnect()
}
