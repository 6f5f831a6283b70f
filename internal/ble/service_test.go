package ble

import (
	"errors"
	"testing"
)

func TestStartServiceRunsOnBindAck(t *testing.T) {
	host := &fakeHost{}
	s := NewService(host)

	if err := s.StartService(); err != nil {
		t.Fatalf("StartService() error = %v", err)
	}
	if s.Running() {
		t.Fatal("Running() = true before bind acknowledgement")
	}

	host.ReleaseAck(true)
	if !s.Running() {
		t.Error("Running() = false after bind acknowledgement")
	}
}

func TestStartServiceIdempotentWhileRunning(t *testing.T) {
	host := &fakeHost{ackNow: true, ackValue: true}
	s := NewService(host)
	_ = s.StartService()

	if err := s.StartService(); err != nil {
		t.Fatalf("second StartService() error = %v, want nil no-op", err)
	}
	if host.launches != 1 {
		t.Errorf("host launches = %d, want 1", host.launches)
	}
}

func TestStartServiceRejectedWhileBindPending(t *testing.T) {
	host := &fakeHost{}
	s := NewService(host)
	_ = s.StartService()

	if err := s.StartService(); !errors.Is(err, ErrStartPending) {
		t.Errorf("StartService() error = %v, want ErrStartPending", err)
	}
}

func TestStartServiceLaunchFailure(t *testing.T) {
	host := &fakeHost{launchErr: errors.New("fork failed")}
	s := NewService(host)

	if err := s.StartService(); err == nil {
		t.Fatal("StartService() should surface launch failure")
	}
	if s.Running() {
		t.Error("Running() = true after failed launch")
	}
}

func TestStopServiceBestEffort(t *testing.T) {
	host := &fakeHost{ackNow: true, ackValue: true, unbindErr: errors.New("not bound")}
	s := NewService(host)
	_ = s.StartService()

	// A benign unbind failure must not block the shutdown path.
	s.StopService()

	if s.Running() {
		t.Error("Running() = true after StopService")
	}
	if host.shutdowns != 1 {
		t.Errorf("host shutdowns = %d, want 1", host.shutdowns)
	}
}

func TestStopServiceWhileStopped(t *testing.T) {
	host := &fakeHost{}
	s := NewService(host)

	s.StopService()

	if s.Running() {
		t.Error("Running() = true, want false")
	}
}

func TestLateBindAckAfterStopIsIgnored(t *testing.T) {
	host := &fakeHost{}
	s := NewService(host)
	_ = s.StartService()
	s.StopService()

	// The host's acknowledgement loses the race with the stop request.
	host.ReleaseAck(true)

	if s.Running() {
		t.Error("Running() = true from stale bind acknowledgement")
	}
}

func TestOnRunningEmissions(t *testing.T) {
	host := &fakeHost{}
	s := NewService(host)

	var flags []bool
	s.OnRunning(func(running bool) { flags = append(flags, running) })

	_ = s.StartService()
	host.ReleaseAck(true)
	s.StopService()

	if len(flags) != 2 || !flags[0] || flags[1] {
		t.Errorf("emissions = %v, want [true false]", flags)
	}
}

func TestInProcessHostBindsImmediately(t *testing.T) {
	s := NewService(InProcessHost{})

	if err := s.StartService(); err != nil {
		t.Fatalf("StartService() error = %v", err)
	}
	if !s.Running() {
		t.Error("Running() = false, want true")
	}
}
