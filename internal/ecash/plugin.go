package ecash

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/bitpoints/internal/exemption"
	"github.com/srg/bitpoints/internal/groutine"
	"github.com/srg/bitpoints/internal/host"
	"github.com/srg/bitpoints/internal/metrics"
	"github.com/srg/bitpoints/internal/platform"
)

const (
	// PluginName is the name the plugin is registered under.
	PluginName = "BluetoothEcash"
	// PermissionRequestCode tags Bluetooth permission prompts issued for the plugin.
	PermissionRequestCode = 12345
)

// ErrNotLoaded is returned by plugin methods called outside a load/destroy window.
var ErrNotLoaded = errors.New("bluetooth ecash plugin not loaded")

// Response is the result handed back to the web layer.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Plugin is the Bluetooth e-cash extension as seen by the shell: it asks the
// foreground surface for a battery exemption and reports the Bluetooth
// permissions its transfer engine needs.
type Plugin struct {
	mu     sync.Mutex
	ctx    host.PluginContext
	logger *logrus.Entry
	loaded bool

	emitters groutine.Group
}

// New returns an unloaded plugin. It satisfies host.PluginFactory.
func New() host.Plugin {
	return &Plugin{}
}

// Name implements host.Plugin.
func (p *Plugin) Name() string {
	return PluginName
}

// Load implements host.Plugin.
func (p *Plugin) Load(ctx host.PluginContext) error {
	if ctx.Bus == nil {
		return errors.New("plugin context has no signal bus")
	}
	if ctx.Logger == nil {
		ctx.Logger = logrus.StandardLogger()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.ctx = ctx
	p.logger = ctx.Logger.WithField("component", "ecash")
	p.loaded = true
	p.logger.Debug("BluetoothEcashPlugin loaded")
	return nil
}

// HandleOnDestroy implements host.Plugin. It waits for in-flight emissions.
func (p *Plugin) HandleOnDestroy() {
	p.mu.Lock()
	p.loaded = false
	p.mu.Unlock()

	p.emitters.Wait()
}

// RequestBatteryOptimizationExemption asks the foreground surface to show the
// exemption prompt. The request signal is published from a background
// goroutine; the response only confirms the request was dispatched.
func (p *Plugin) RequestBatteryOptimizationExemption(ctx context.Context) (*Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return nil, ErrNotLoaded
	}

	bus := p.ctx.Bus
	signal := exemption.RequestSignal(p.ctx.AppID)
	logger := p.logger

	p.emitters.Go(ctx, "ecash-exemption-request", func(ctx context.Context) {
		n := bus.Publish(signal)
		logger.WithFields(logrus.Fields{
			"signal":    signal,
			"receivers": n,
			"goroutine": groutine.GetName(ctx),
		}).Debug("Battery optimization exemption requested")
	})

	return &Response{Success: true, Message: "Battery optimization dialog requested"}, nil
}

// Wait blocks until every emission dispatched so far has been delivered.
func (p *Plugin) Wait() {
	p.emitters.Wait()
}

// RequiredPermissions returns the runtime permissions the transfer engine needs on this API level.
func (p *Plugin) RequiredPermissions() []string {
	p.mu.Lock()
	sdk := p.ctx.SDK
	p.mu.Unlock()
	return RequiredPermissions(sdk)
}

// RequiredPermissions returns the runtime permissions needed for Bluetooth
// transfers on sdk. API 31+ has dedicated Bluetooth permissions and needs no
// location; older levels need location for scanning.
func RequiredPermissions(sdk platform.Version) []string {
	if sdk.AtLeast(platform.VersionS) {
		return []string{
			platform.PermissionBluetoothAdvertise,
			platform.PermissionBluetoothConnect,
			platform.PermissionBluetoothScan,
			platform.PermissionPostNotifications,
		}
	}
	return []string{
		platform.PermissionBluetooth,
		platform.PermissionBluetoothAdmin,
		platform.PermissionFineLocation,
	}
}

// HasRequiredPermissions reports whether every required permission is granted.
func (p *Plugin) HasRequiredPermissions() bool {
	p.mu.Lock()
	checker := p.ctx.Permissions
	p.mu.Unlock()

	if checker == nil {
		return false
	}
	for _, perm := range p.RequiredPermissions() {
		if checker.CheckSelfPermission(perm) != platform.Granted {
			return false
		}
	}
	return true
}

// HandleRequestPermissionsResult implements host.PermissionResultHandler.
func (p *Plugin) HandleRequestPermissionsResult(requestCode int, permissions []string, grantResults []platform.PermissionState) {
	p.mu.Lock()
	logger := p.logger
	loaded := p.loaded
	p.mu.Unlock()

	if !loaded || requestCode != PermissionRequestCode {
		return
	}
	granted := p.HasRequiredPermissions()
	metrics.PermissionResultsTotal.WithLabelValues("bluetooth", grantOutcome(granted)).Inc()
	logger.WithField("granted", granted).Info("Bluetooth permission result received")
}

func grantOutcome(granted bool) string {
	if granted {
		return "granted"
	}
	return "denied"
}

// RequestPermissions prompts for any missing Bluetooth permission. It reports
// true when everything is already granted and no prompt was needed.
func (p *Plugin) RequestPermissions(requester platform.PermissionRequester) (bool, error) {
	if p.HasRequiredPermissions() {
		return true, nil
	}
	if err := requester.RequestPermissions(p.RequiredPermissions(), PermissionRequestCode); err != nil {
		return false, err
	}
	return false, nil
}
