package signalbus

import (
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/bitpoints/internal/metrics"
	"github.com/srg/bitpoints/internal/platform"
)

// LocalBus is the in-process Bus implementation. Subscribers live in a
// lock-free map so emitters never contend with each other; mutations are
// serialized by mu.
type LocalBus struct {
	sdk    platform.Version
	logger *logrus.Entry

	mu     sync.Mutex
	closed bool
	subs   *hashmap.Map[string, *Handle]
}

// Option configures a LocalBus.
type Option func(*LocalBus)

// WithSDKVersion makes the bus enforce the subscription rules of an API level.
func WithSDKVersion(v platform.Version) Option {
	return func(b *LocalBus) {
		b.sdk = v
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *logrus.Logger) Option {
	return func(b *LocalBus) {
		if logger != nil {
			b.logger = logger.WithField("component", "signalbus")
		}
	}
}

// NewLocalBus creates an empty bus.
func NewLocalBus(opts ...Option) *LocalBus {
	b := &LocalBus{
		logger: logrus.StandardLogger().WithField("component", "signalbus"),
		subs:   hashmap.New[string, *Handle](),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var (
	defaultBus     *LocalBus
	defaultBusOnce sync.Once
)

// Default returns the process-wide bus. Components should receive it by
// injection rather than calling Default themselves.
func Default() *LocalBus {
	defaultBusOnce.Do(func() {
		defaultBus = NewLocalBus()
	})
	return defaultBus
}

// Subscribe implements Bus.
func (b *LocalBus) Subscribe(name string, handler Handler, opts SubscribeOptions) (*Handle, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	if opts.Export == ExportUnspecified && b.sdk.AtLeast(platform.VersionUpsideDownCake) {
		return nil, fmt.Errorf("%w: subscribing to %q on %s", ErrExportFlagRequired, name, b.sdk)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	h := &Handle{
		id:      uuid.NewString(),
		name:    name,
		export:  opts.Export,
		handler: handler,
		active:  true,
	}
	b.subs.Set(h.id, h)
	metrics.SignalSubscriptionsCurrent.Inc()

	b.logger.WithFields(logrus.Fields{
		"signal": name,
		"handle": h.id,
		"export": opts.Export,
	}).Debug("Subscribed")
	return h, nil
}

// Unsubscribe implements Bus. Removing a nil, unknown or already removed
// handle returns ErrNotSubscribed.
func (b *LocalBus) Unsubscribe(h *Handle) error {
	if h == nil {
		return ErrNotSubscribed
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	current, ok := b.subs.Get(h.id)
	if !ok || current != h {
		b.mu.Unlock()
		return ErrNotSubscribed
	}
	b.subs.Del(h.id)
	metrics.SignalSubscriptionsCurrent.Dec()
	b.mu.Unlock()

	// Deactivate outside mu: waiting for an in-flight delivery must not block other subscribers.
	h.deactivate()

	b.logger.WithFields(logrus.Fields{
		"signal": h.name,
		"handle": h.id,
	}).Debug("Unsubscribed")
	return nil
}

// Publish implements Bus.
func (b *LocalBus) Publish(name string) int {
	return b.PublishFrom(OriginLocal, name)
}

// PublishFrom emits a signal as if it came from origin.
func (b *LocalBus) PublishFrom(origin Origin, name string) int {
	sig := Signal{Name: name, Origin: origin}
	metrics.SignalsPublishedTotal.WithLabelValues(origin.String()).Inc()

	var targets []*Handle
	b.subs.Range(func(_ string, h *Handle) bool {
		if h.name == name && h.export.accepts(origin) {
			targets = append(targets, h)
		}
		return true
	})

	delivered := 0
	for _, h := range targets {
		ok, err := h.deliver(sig)
		if err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"signal": name,
				"handle": h.id,
			}).Error("Signal delivery failed")
			metrics.SignalDeliveriesTotal.WithLabelValues("failed").Inc()
			continue
		}
		if ok {
			metrics.SignalDeliveriesTotal.WithLabelValues("delivered").Inc()
			delivered++
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions for name.
func (b *LocalBus) Subscribers(name string) int {
	n := 0
	b.subs.Range(func(_ string, h *Handle) bool {
		if h.name == name && h.Active() {
			n++
		}
		return true
	})
	return n
}

// Close removes every subscription. Subsequent calls to Subscribe and
// Unsubscribe return ErrBusClosed.
func (b *LocalBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true

	var handles []*Handle
	b.subs.Range(func(id string, h *Handle) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		b.subs.Del(h.id)
	}
	metrics.SignalSubscriptionsCurrent.Sub(float64(len(handles)))
	b.mu.Unlock()

	for _, h := range handles {
		h.deactivate()
	}
	b.logger.WithField("subscriptions", len(handles)).Debug("Signal bus closed")
}
