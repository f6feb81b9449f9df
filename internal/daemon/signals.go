package daemon

import (
	"fmt"
	"os"
	"sync"
	"syscall"
)

// ///////////////////////////////////////////////
// Signal Actions
// ///////////////////////////////////////////////

type actionKind int

const (
	actionNone actionKind = iota
	actionIgnore
	actionTerminate
	actionHandle
)

// Action is what the daemon does when a signal arrives. The zero Action is
// invalid; use [Ignore], [Terminate] or [Handle].
type Action struct {
	kind actionKind
	fn   func(os.Signal)
}

var (
	// Ignore discards the signal.
	Ignore = Action{kind: actionIgnore}
	// Terminate runs the context's terminator: [Context.Terminator] when set,
	// otherwise close the context and exit with status 1.
	Terminate = Action{kind: actionTerminate}
)

// Handle calls fn on the signal dispatch goroutine for every delivery.
func Handle(fn func(os.Signal)) Action {
	return Action{kind: actionHandle, fn: fn}
}

func (a Action) String() string {
	switch a.kind {
	case actionIgnore:
		return "ignore"
	case actionTerminate:
		return "terminate"
	case actionHandle:
		return "handle"
	default:
		return "none"
	}
}

// SignalMap maps signals to the action taken on delivery.
type SignalMap map[os.Signal]Action

// defaultSignals names the signals of the default map. Names unknown to the
// running platform are skipped.
var defaultSignals = []struct {
	name   string
	action Action
}{
	{"SIGTSTP", Ignore},
	{"SIGTTIN", Ignore},
	{"SIGTTOU", Ignore},
	{"SIGTERM", Terminate},
}

// DefaultSignalMap returns the default signal map: terminal stop and
// background I/O signals are ignored and SIGTERM terminates. A signal the
// platform does not define is left out, never reported as an error.
func DefaultSignalMap() SignalMap {
	m := make(SignalMap, len(defaultSignals))
	for _, d := range defaultSignals {
		if sig, ok := lookupSignal(d.name); ok {
			m[sig] = d.action
		}
	}
	return m
}

// LookupSignal resolves a signal name such as "SIGHUP" on the running
// platform.
func LookupSignal(name string) (os.Signal, bool) {
	return lookupSignal(name)
}

// signalNumber formats sig as its number where the platform has one.
func signalNumber(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		return fmt.Sprint(int(s))
	}
	return sig.String()
}

// ///////////////////////////////////////////////
// Dispatch
// ///////////////////////////////////////////////

// signalDispatcher delivers notified signals to their handlers on a single
// goroutine, started on first install.
type signalDispatcher struct {
	once     sync.Once
	mu       sync.Mutex
	ch       chan os.Signal
	handlers map[os.Signal]func(os.Signal)
}

// install ignores or subscribes every signal of the resolved map.
func (d *signalDispatcher) install(sys system, m SignalMap) error {
	handlers := make(map[os.Signal]func(os.Signal), len(m))
	var ignored, notified []os.Signal
	for sig, action := range m {
		switch action.kind {
		case actionIgnore:
			ignored = append(ignored, sig)
		case actionHandle:
			if action.fn == nil {
				return fmt.Errorf("signal %v: nil handler", sig)
			}
			handlers[sig] = action.fn
			notified = append(notified, sig)
		default:
			return fmt.Errorf("signal %v: unresolved action %s", sig, action)
		}
	}

	if len(ignored) > 0 {
		sys.IgnoreSignal(ignored...)
	}
	if len(notified) == 0 {
		return nil
	}

	d.mu.Lock()
	d.handlers = handlers
	d.mu.Unlock()
	d.once.Do(func() {
		d.ch = make(chan os.Signal, 4)
		go d.loop()
	})
	sys.NotifySignal(d.ch, notified...)
	return nil
}

func (d *signalDispatcher) loop() {
	for sig := range d.ch {
		d.mu.Lock()
		fn := d.handlers[sig]
		d.mu.Unlock()
		if fn != nil {
			fn(sig)
		}
	}
}
