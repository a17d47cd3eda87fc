// Package coordinator binds the shell's native behaviors to the lifetime of
// the foreground surface.
//
// On activation the Coordinator registers the BluetoothEcash plugin with the
// host and installs the battery-optimization exemption listener; on
// deactivation it removes the listener. Failures of either never prevent the
// surface from becoming usable: they are logged and the feature degrades.
package coordinator

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/bitpoints/internal/ecash"
	"github.com/srg/bitpoints/internal/exemption"
	"github.com/srg/bitpoints/internal/metrics"
	"github.com/srg/bitpoints/internal/platform"
	"github.com/srg/bitpoints/internal/signalbus"
)

// CameraPermissionRequest tags camera permission prompts.
const CameraPermissionRequest = 1001

// Host is the bridge runtime the Coordinator is embedded in.
type Host interface {
	RegisterPlugin(name string) error
	OnCreate()
	OnDestroy()
	OnRequestPermissionsResult(requestCode int, permissions []string, grantResults []platform.PermissionState)
}

// Options configure a Coordinator.
type Options struct {
	Host        Host
	Bus         signalbus.Bus
	Navigator   platform.Navigator
	Permissions platform.Permissions
	AppID       string
	PackageName string // defaults to AppID
	SDK         platform.Version
	Logger      *logrus.Logger
}

// Coordinator is created once per foreground surface instance.
type Coordinator struct {
	host        Host
	bus         signalbus.Bus
	navigator   platform.Navigator
	permissions platform.Permissions
	signal      string
	packageName string
	sdk         platform.Version
	logger      *logrus.Entry

	mu        sync.Mutex
	activated bool
	sub       *exemption.Subscription
}

// New creates a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Host == nil {
		return nil, errors.New("coordinator: host is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("coordinator: signal bus is required")
	}
	if opts.Navigator == nil {
		return nil, errors.New("coordinator: navigator is required")
	}
	if opts.Permissions == nil {
		return nil, errors.New("coordinator: permissions are required")
	}
	if opts.AppID == "" {
		return nil, errors.New("coordinator: app ID is required")
	}
	if opts.PackageName == "" {
		opts.PackageName = opts.AppID
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Coordinator{
		host:        opts.Host,
		bus:         opts.Bus,
		navigator:   opts.Navigator,
		permissions: opts.Permissions,
		signal:      exemption.RequestSignal(opts.AppID),
		packageName: opts.PackageName,
		sdk:         opts.SDK,
		logger:      opts.Logger.WithField("component", "coordinator"),
	}, nil
}

// Activate registers the plugin, installs the exemption listener and then
// forwards creation to the host. It never fails.
func (c *Coordinator) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activated {
		c.logger.Warn("Activate called on an active coordinator, ignoring")
		return
	}
	c.activated = true

	c.logger.WithField("plugin", ecash.PluginName).Info("Registering plugin")
	if err := c.registerPlugin(); err != nil {
		c.logger.WithError(err).WithField("plugin", ecash.PluginName).Error("Failed to register plugin")
	} else {
		c.logger.WithField("plugin", ecash.PluginName).Info("Plugin registered successfully")
	}

	sub, err := exemption.Install(c.bus, c.signal, c.sdk, c.RequestBatteryExemption, c.logger.Logger)
	if err != nil {
		c.logger.WithError(err).Error("Failed to register battery optimization receiver")
	} else {
		c.sub = sub
		c.logger.Debug("Battery optimization receiver registered")
	}

	c.host.OnCreate()
}

// registerPlugin converts a panicking host into an error.
func (c *Coordinator) registerPlugin() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RegistrationError{Plugin: ecash.PluginName, Cause: r}
		}
	}()
	return c.host.RegisterPlugin(ecash.PluginName)
}

// Deactivate removes the exemption listener and forwards destruction to the
// host. Safe to call without Activate and more than once.
func (c *Coordinator) Deactivate() {
	c.mu.Lock()
	if !c.activated {
		c.mu.Unlock()
		return
	}
	c.activated = false
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	// Removal waits for in-flight deliveries, which call back into the
	// coordinator, so it runs without holding mu.
	if sub != nil {
		if err := sub.Remove(); err != nil {
			c.logger.WithError(err).Error("Failed to unregister battery optimization receiver")
		} else {
			c.logger.Debug("Battery optimization receiver unregistered")
		}
	}

	c.host.OnDestroy()
}

// Active reports whether the coordinator is between Activate and Deactivate.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activated
}

// Subscription returns the live exemption listener, or nil when none is installed.
func (c *Coordinator) Subscription() *exemption.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

// RequestBatteryExemption opens the OS prompt that exempts this application
// from battery optimizations. It is one-way: whether the user agreed must be
// learned from the OS separately. Repeated calls open the same prompt again.
// Called from signal delivery goroutines, so it touches no mutable state.
func (c *Coordinator) RequestBatteryExemption() {
	if !c.sdk.AtLeast(platform.VersionM) {
		c.logger.WithField("sdk", c.sdk).Debug("Battery optimization not needed before API 23, skipping")
		metrics.ExemptionPromptsTotal.WithLabelValues("skipped").Inc()
		return
	}

	intent := platform.Intent{
		Action: platform.ActionRequestIgnoreBatteryOptimizations,
		Data:   platform.PackageURI(c.packageName),
	}
	if err := c.startActivity(intent); err != nil {
		c.logger.WithError(err).Error("Failed to open battery optimization settings")
		metrics.ExemptionPromptsTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.ExemptionPromptsTotal.WithLabelValues("opened").Inc()
	c.logger.Debug("Battery optimization exemption dialog opened")
}

func (c *Coordinator) startActivity(intent platform.Intent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NavigationError{Intent: intent, Cause: r}
		}
	}()
	return c.navigator.StartActivity(intent)
}
