// Package exemption wires the battery-optimization exemption request signal
// to a callback on the foreground surface.
//
// A background component (the Bluetooth e-cash engine) publishes
// RequestSignal(appID) on the process-local signal bus. The foreground
// surface installs a Subscription for it while live and removes it on
// teardown. The subscription moves through Uninstalled, Installed and
// Removed exactly once; re-activation installs a new Subscription.
package exemption

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/bitpoints/internal/platform"
	"github.com/srg/bitpoints/internal/signalbus"
)

// RequestSignalSuffix is appended to the application ID to form the signal name.
const RequestSignalSuffix = ".REQUEST_BATTERY_OPTIMIZATION"

// RequestSignal returns the name of the exemption request signal for an application.
func RequestSignal(appID string) string {
	return appID + RequestSignalSuffix
}

// State of a Subscription.
type State int

const (
	Uninstalled State = iota
	Installed
	Removed
)

func (s State) String() string {
	switch s {
	case Installed:
		return "installed"
	case Removed:
		return "removed"
	default:
		return "uninstalled"
	}
}

// InstallError reports why a subscription could not be installed.
type InstallError struct {
	Signal string
	Err    error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install listener for %q: %v", e.Signal, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Subscription is an installed exemption listener.
type Subscription struct {
	bus    signalbus.Bus
	signal string
	logger *logrus.Entry

	mu     sync.Mutex
	state  State
	handle *signalbus.Handle

	delivered atomic.Int64
}

// Install subscribes onSignal to signalName. On API levels that require
// explicit scoping the subscription is NotExported, so only emissions from
// this process trigger it; older levels get a plain subscription.
// Failures are returned, never panicked.
func Install(bus signalbus.Bus, signalName string, sdk platform.Version, onSignal func(), logger *logrus.Logger) (*Subscription, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if bus == nil {
		return nil, &InstallError{Signal: signalName, Err: errors.New("nil signal bus")}
	}
	if onSignal == nil {
		return nil, &InstallError{Signal: signalName, Err: signalbus.ErrNilHandler}
	}

	s := &Subscription{
		bus:    bus,
		signal: signalName,
		logger: logger.WithFields(logrus.Fields{
			"component": "exemption",
			"signal":    signalName,
		}),
	}

	opts := signalbus.SubscribeOptions{Export: signalbus.ExportUnspecified}
	if sdk.AtLeast(platform.VersionUpsideDownCake) {
		opts.Export = signalbus.NotExported
	}

	handle, err := bus.Subscribe(signalName, func(sig signalbus.Signal) {
		if sig.Name != signalName {
			return
		}
		s.delivered.Add(1)
		s.logger.Debug("Battery optimization exemption requested")
		onSignal()
	}, opts)
	if err != nil {
		return nil, &InstallError{Signal: signalName, Err: err}
	}

	s.handle = handle
	s.state = Installed
	s.logger.WithField("export", opts.Export).Debug("Battery optimization listener installed")
	return s, nil
}

// Remove unsubscribes the listener. Removing twice, or after the bus has
// been closed, is a no-op. Any other bus error is returned, but the
// subscription is considered removed either way.
func (s *Subscription) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Installed {
		return nil
	}
	s.state = Removed
	handle := s.handle
	s.handle = nil

	err := s.bus.Unsubscribe(handle)
	switch {
	case err == nil:
		s.logger.Debug("Battery optimization listener removed")
		return nil
	case errors.Is(err, signalbus.ErrNotSubscribed), errors.Is(err, signalbus.ErrBusClosed):
		s.logger.WithError(err).Debug("Battery optimization listener already removed")
		return nil
	default:
		return fmt.Errorf("remove listener for %q: %w", s.signal, err)
	}
}

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Signal returns the subscribed signal name.
func (s *Subscription) Signal() string {
	return s.signal
}

// Delivered returns how many signals reached the callback.
func (s *Subscription) Delivered() int64 {
	return s.delivered.Load()
}
