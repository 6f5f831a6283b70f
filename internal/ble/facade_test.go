package ble

import (
	"context"
	"testing"
	"time"
)

// orderedHost records when shutdown happens relative to the radio's scan
// stop, via the shared fakeRadio.
type orderedHost struct {
	fakeHost
	radio *fakeRadio
	order []string
}

func (h *orderedHost) Shutdown() error {
	if h.radio.isScanning() {
		h.order = append(h.order, "shutdown-while-scanning")
	} else {
		h.order = append(h.order, "shutdown")
	}
	return nil
}

func TestFacadeStopServiceStopsScanFirst(t *testing.T) {
	radio := &fakeRadio{}
	host := &orderedHost{radio: radio}
	host.ackNow = true
	host.ackValue = true
	f := NewFacade(radio, host, DiscoveryOptions{ScanBudget: time.Hour})

	_ = f.StartService()
	_ = f.StartScan()
	if !radio.isScanning() {
		t.Fatal("scan should be active")
	}

	f.StopService()

	if f.Running() {
		t.Error("Running() = true after StopService")
	}
	if f.ScanState().Phase != ScanComplete {
		t.Errorf("scan phase = %v, want %v", f.ScanState().Phase, ScanComplete)
	}
	if len(host.order) != 1 || host.order[0] != "shutdown" {
		t.Errorf("order = %v, want scan stopped before host shutdown", host.order)
	}
}

func TestFacadeEndToEndScanConnect(t *testing.T) {
	radio := &fakeRadio{}
	link := scriptedLink(radio)
	f := NewFacade(radio, &fakeHost{ackNow: true, ackValue: true}, DiscoveryOptions{ScanBudget: time.Hour})

	if err := f.StartService(); err != nil {
		t.Fatalf("StartService() error = %v", err)
	}
	if err := f.StartScan(); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	radio.Sight(Device{Address: "AA:00", Name: "LiftLink-1", RSSI: -55})
	f.StopScan()

	st := f.ScanState()
	if len(st.Devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(st.Devices))
	}

	if err := f.Connect(context.Background(), st.Devices[0]); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if f.ConnectionState().Phase != ConnConnected {
		t.Fatalf("phase = %v, want %v", f.ConnectionState().Phase, ConnConnected)
	}

	if err := f.Write([]byte(`{"cmd":"ping","body":{}}`)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(link.writes) != 1 {
		t.Errorf("link writes = %d, want 1", len(link.writes))
	}

	if err := f.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if f.ConnectionState().Phase != ConnDisconnected {
		t.Errorf("phase = %v, want %v", f.ConnectionState().Phase, ConnDisconnected)
	}
}
