package ble

import "context"

// Facade composes discovery, connection, and the service lifecycle behind
// one surface. It adds no state of its own; callers scan, connect, and
// manage the host without knowing which sub-engine owns which state.
type Facade struct {
	discovery  *Discovery
	connection *Connection
	service    *Service
}

// NewFacade builds the facade over one radio and one host.
func NewFacade(radio Radio, host Host, opts DiscoveryOptions) *Facade {
	return &Facade{
		discovery:  NewDiscovery(radio, opts),
		connection: NewConnection(radio),
		service:    NewService(host),
	}
}

func (f *Facade) StartScan() error { return f.discovery.StartScan() }

func (f *Facade) StopScan() { f.discovery.StopScan() }

func (f *Facade) ScanState() ScanState { return f.discovery.State() }

func (f *Facade) OnScanState(fn func(ScanState)) { f.discovery.OnState(fn) }

func (f *Facade) Connect(ctx context.Context, device Device) error {
	return f.connection.Connect(ctx, device)
}

func (f *Facade) Disconnect() error { return f.connection.Disconnect() }

func (f *Facade) ConnectionState() ConnectionState { return f.connection.State() }

func (f *Facade) OnConnectionState(fn func(ConnectionState)) { f.connection.OnState(fn) }

func (f *Facade) OnNotify(fn func(data []byte)) { f.connection.OnNotify(fn) }

func (f *Facade) Write(data []byte) error { return f.connection.Write(data) }

func (f *Facade) StartService() error { return f.service.StartService() }

func (f *Facade) Running() bool { return f.service.Running() }

func (f *Facade) OnRunning(fn func(bool)) { f.service.OnRunning(fn) }

// StopService always stops an active scan before tearing down the host, so
// no scan task outlives the process that owns its radio handle.
func (f *Facade) StopService() {
	f.discovery.StopScan()
	f.service.StopService()
}
