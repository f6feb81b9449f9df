//go:build unix

// Tests for signal actions: the platform-filtered default map, resolution of
// Terminate at Open, and delivery through the dispatcher goroutine.

package daemon

import (
	"os"
	"syscall"
	"testing"
	"time"
)

func TestDefaultSignalMap(t *testing.T) {
	m := DefaultSignalMap()
	for _, d := range defaultSignals {
		sig, ok := lookupSignal(d.name)
		if !ok {
			continue
		}
		got, present := m[sig]
		if !present {
			t.Errorf("%s missing from default map", d.name)
			continue
		}
		if got.kind != d.action.kind {
			t.Errorf("%s action = %s, want %s", d.name, got, d.action)
		}
	}
}

func TestDefaultSignalMap_OmitsUnknownSignals(t *testing.T) {
	saved := defaultSignals
	t.Cleanup(func() { defaultSignals = saved })
	defaultSignals = append([]struct {
		name   string
		action Action
	}{{"SIGNOSUCHTHING", Ignore}}, saved...)

	m := DefaultSignalMap()
	if len(m) > len(saved) {
		t.Fatalf("default map has %d entries, an unknown name was included", len(m))
	}

	// Installing the filtered map must not fail.
	c, _ := newTestContext(nil)
	c.SignalMap = m
	if err := c.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
}

func TestLookupSignal(t *testing.T) {
	tests := []struct {
		name string
		want os.Signal
		ok   bool
	}{
		{"SIGTERM", syscall.SIGTERM, true},
		{"SIGHUP", syscall.SIGHUP, true},
		{"SIGNOSUCHTHING", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LookupSignal(tt.name)
			if ok != tt.ok || (ok && got != tt.want) {
				t.Errorf("LookupSignal(%q) = %v, %v, want %v, %v", tt.name, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMakeSignalHandlerMap(t *testing.T) {
	c, _ := newTestContext(nil)
	var got os.Signal
	c.Terminator = func(sig os.Signal) { got = sig }
	custom := Handle(func(os.Signal) {})
	c.SignalMap = SignalMap{
		syscall.SIGHUP:  Ignore,
		syscall.SIGTERM: Terminate,
		syscall.SIGINT:  custom,
	}

	m := c.makeSignalHandlerMap()
	if m[syscall.SIGHUP].kind != actionIgnore {
		t.Errorf("SIGHUP = %s, want ignore", m[syscall.SIGHUP])
	}
	if m[syscall.SIGINT].kind != actionHandle {
		t.Errorf("SIGINT = %s, want handle", m[syscall.SIGINT])
	}
	term := m[syscall.SIGTERM]
	if term.kind != actionHandle || term.fn == nil {
		t.Fatalf("SIGTERM = %s, want a resolved handler", term)
	}
	term.fn(syscall.SIGTERM)
	if got != syscall.SIGTERM {
		t.Error("Terminate should resolve to the configured Terminator")
	}
	if c.SignalMap[syscall.SIGTERM].kind != actionTerminate {
		t.Error("resolution must not modify the configured map")
	}
}

func TestSignalDispatcher_Install(t *testing.T) {
	sys := newFakeSystem(0)
	var d signalDispatcher
	got := make(chan os.Signal, 1)
	m := SignalMap{
		syscall.SIGHUP: Ignore,
		syscall.SIGUSR1: Handle(func(sig os.Signal) {
			got <- sig
		}),
	}
	if err := d.install(sys, m); err != nil {
		t.Fatalf("install() error: %v", err)
	}
	if len(sys.ignored) != 1 || sys.ignored[0] != syscall.SIGHUP {
		t.Errorf("ignored = %v, want [SIGHUP]", sys.ignored)
	}
	if len(sys.notified) != 1 || sys.notified[0] != syscall.SIGUSR1 {
		t.Errorf("notified = %v, want [SIGUSR1]", sys.notified)
	}

	sys.notifyCh <- syscall.SIGUSR1
	select {
	case sig := <-got:
		if sig != syscall.SIGUSR1 {
			t.Errorf("handler got %v, want SIGUSR1", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestSignalDispatcher_RejectsInvalidActions(t *testing.T) {
	tests := []struct {
		name   string
		action Action
	}{
		{"zero action", Action{}},
		{"nil handler", Handle(nil)},
		{"unresolved terminate", Terminate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d signalDispatcher
			err := d.install(newFakeSystem(0), SignalMap{syscall.SIGHUP: tt.action})
			if err == nil {
				t.Fatal("install() should reject the action")
			}
		})
	}
}
