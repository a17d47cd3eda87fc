package signalbus

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Signal is a payload-less, named event.
type Signal struct {
	Name   string
	Origin Origin
}

// Origin identifies who emitted a signal.
type Origin int

const (
	// OriginLocal signals were emitted by this process.
	OriginLocal Origin = iota
	// OriginExternal signals were emitted by another application.
	OriginExternal
)

func (o Origin) String() string {
	if o == OriginExternal {
		return "external"
	}
	return "local"
}

// Export controls whether signals from other applications may reach a subscriber.
type Export int

const (
	// ExportUnspecified is a plain subscription. Rejected on platforms that
	// require explicit scoping of private signals.
	ExportUnspecified Export = iota
	// Exported subscribers receive signals from any origin.
	Exported
	// NotExported subscribers only receive signals emitted by this process.
	NotExported
)

func (e Export) String() string {
	switch e {
	case Exported:
		return "exported"
	case NotExported:
		return "not_exported"
	default:
		return "unspecified"
	}
}

// accepts reports whether a subscription with this export mode receives a signal from origin.
func (e Export) accepts(origin Origin) bool {
	return e != NotExported || origin == OriginLocal
}

// Handler is invoked once per delivered signal on the emitter's goroutine.
type Handler func(Signal)

// SubscribeOptions configure a subscription.
type SubscribeOptions struct {
	Export Export
}

// Bus is a process-local publish/subscribe mechanism for named, payload-less signals.
type Bus interface {
	// Subscribe registers handler for signals named name.
	Subscribe(name string, handler Handler, opts SubscribeOptions) (*Handle, error)

	// Unsubscribe removes a subscription. When it returns, no delivery into
	// the handle's handler is running or will start.
	Unsubscribe(h *Handle) error

	// Publish emits a signal from this process and returns how many handlers ran.
	Publish(name string) int
}

// Bus errors
var (
	ErrInvalidSignalName  = errors.New("invalid signal name")
	ErrNilHandler         = errors.New("nil signal handler")
	ErrNotSubscribed      = errors.New("not subscribed")
	ErrBusClosed          = errors.New("signal bus closed")
	ErrExportFlagRequired = errors.New("one of Exported or NotExported must be specified")
)

// Handle is an active registration on a Bus.
type Handle struct {
	id      string
	name    string
	export  Export
	handler Handler

	// Deliveries hold the read lock; deactivation takes the write lock so it
	// waits out in-flight deliveries.
	mu     sync.RWMutex
	active bool
}

// ID returns the unique handle identifier.
func (h *Handle) ID() string {
	return h.id
}

// Name returns the subscribed signal name.
func (h *Handle) Name() string {
	return h.name
}

// Export returns the export mode the handle was registered with.
func (h *Handle) Export() Export {
	return h.export
}

// Active reports whether the handle can still receive signals.
func (h *Handle) Active() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

// deliver runs the handler unless the handle was deactivated. A handler
// must not unsubscribe its own handle synchronously.
func (h *Handle) deliver(sig Signal) (delivered bool, err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.active {
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("signal handler panicked: %v", r)
		}
	}()
	h.handler(sig)
	return true, nil
}

// deactivate reports whether the handle was active.
func (h *Handle) deactivate() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	was := h.active
	h.active = false
	return was
}

// ValidateName checks that name can be used as a signal name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSignalName)
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidSignalName, name)
	}
	return nil
}
