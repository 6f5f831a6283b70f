// Package ble manages the radio link to a LiftLink bar-mounted sensor:
// discovery of nearby sensors, the lifecycle of a single point-to-point
// connection, and the background service hosting both. Engines expose
// observable state machines and are written against a narrow Radio
// capability seam so they can be driven by a fake radio in tests.
package ble

import (
	"context"
	"errors"
	"time"
)

// LiftLink GATT identifiers. The link exposes a command-write channel and a
// status-notify channel under one service; the notification-config descriptor
// is the standard CCCD.
const (
	ServiceUUID      = "8d53dc1d-1db7-4cd3-868b-8a527460aa84"
	CommandCharUUID  = "da2e7828-fbce-4e01-ae9e-261174997c48"
	StatusCharUUID   = "da2e7828-fbce-4e01-ae9e-261174997c49"
	NotifyConfigUUID = "00002902-0000-1000-8000-00805f9b34fb"
)

// unknownDeviceName is reported when a sighting carries no local name.
const unknownDeviceName = "Unknown Device"

// Device is one discovered peripheral. Address is the identity; two
// sightings with the same address are the same device.
type Device struct {
	Address  string
	Name     string
	RSSI     int // dBm
	LastSeen time.Time
}

// DisplayName returns the advertised name, or a placeholder when the
// advertisement carried none.
func (d Device) DisplayName() string {
	if d.Name == "" {
		return unknownDeviceName
	}
	return d.Name
}

// ErrLinkDropped is returned by Radio.Connect when the peripheral dropped
// the link before it was ever established. Engines treat it as a plain
// disconnection, not a transport error.
var ErrLinkDropped = errors.New("ble: link dropped before connection was established")

// Link is an open point-to-point connection to one device. Exactly one
// engine holds a Link at a time; no other component may close it.
type Link interface {
	// DiscoverServices resolves the LiftLink service and its command and
	// status characteristics. Write and Subscribe require it to have
	// succeeded.
	DiscoverServices() error
	// Write sends one frame to the command-write channel.
	Write(data []byte) error
	// Subscribe registers a callback for frames on the status-notify channel.
	Subscribe(fn func(data []byte)) error
	// OnDisconnect registers a callback fired when the link drops. The
	// callback may arrive on a platform thread; registrants must funnel it
	// into their own serialization domain.
	OnDisconnect(fn func())
	// Close releases the link. Closing an already-dead link is harmless.
	Close() error
}

// Radio abstracts the platform BLE stack. Implementations must not invoke
// scan callbacks synchronously from within StartScan, and must not retain a
// Link when Connect returns an error.
type Radio interface {
	// StartScan begins advertising discovery. Sightings and radio-level
	// failures are delivered through the callbacks until StopScan.
	StartScan(onResult func(Device), onError func(error)) error
	// StopScan releases the scan handle. Stopping an inactive scan is a
	// harmless no-op.
	StopScan() error
	// Connect opens a link to the device at address. It blocks until the
	// link is established, the radio reports failure, or ctx is cancelled.
	Connect(ctx context.Context, address string) (Link, error)
}
