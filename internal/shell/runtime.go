package shell

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/bitpoints/internal/coordinator"
	"github.com/srg/bitpoints/internal/ecash"
	"github.com/srg/bitpoints/internal/host"
	"github.com/srg/bitpoints/internal/platform"
	"github.com/srg/bitpoints/internal/signalbus"
)

// ErrNoActivity is returned when an operation needs a live activity.
var ErrNoActivity = errors.New("no live activity")

// RuntimeOptions configure a simulated application process.
type RuntimeOptions struct {
	AppID       string
	PackageName string
	SDK         platform.Version
	Logger      *logrus.Logger
}

// Runtime is one simulated application process: a signal bus, an emulated
// OS, the bridge host and at most one live MainActivity.
type Runtime struct {
	Bus    *signalbus.LocalBus
	OS     *platform.Emulator
	Bridge *host.Bridge

	opts   RuntimeOptions
	logger *logrus.Entry

	mu       sync.Mutex
	activity *MainActivity
	launches int
}

// NewRuntime boots a process with the BluetoothEcash plugin in the bridge catalog.
func NewRuntime(opts RuntimeOptions) *Runtime {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	bus := signalbus.NewLocalBus(signalbus.WithSDKVersion(opts.SDK), signalbus.WithLogger(opts.Logger))
	emu := platform.NewEmulator(opts.SDK, opts.Logger)
	bridge := host.NewBridge(host.PluginContext{
		AppID:       opts.AppID,
		SDK:         opts.SDK,
		Bus:         bus,
		Permissions: emu,
		Logger:      opts.Logger,
	})
	bridge.Provide(ecash.PluginName, ecash.New)

	r := &Runtime{
		Bus:    bus,
		OS:     emu,
		Bridge: bridge,
		opts:   opts,
		logger: opts.Logger.WithField("component", "runtime"),
	}
	emu.OnPermissionsResult(r.dispatchPermissionsResult)
	return r
}

// Launch creates a new activity and runs its OnCreate.
func (r *Runtime) Launch() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activity != nil {
		return errors.New("activity already running")
	}

	activity, err := NewMainActivity(coordinator.Options{
		Host:        r.Bridge,
		Bus:         r.Bus,
		Navigator:   r.OS,
		Permissions: r.OS,
		AppID:       r.opts.AppID,
		PackageName: r.opts.PackageName,
		SDK:         r.opts.SDK,
		Logger:      r.opts.Logger,
	})
	if err != nil {
		return err
	}

	activity.OnCreate()
	r.activity = activity
	r.launches++
	return nil
}

// Recreate destroys the live activity and launches a fresh one, as a
// configuration change does.
func (r *Runtime) Recreate() error {
	r.Finish()
	return r.Launch()
}

// Finish destroys the live activity, if any.
func (r *Runtime) Finish() {
	r.mu.Lock()
	activity := r.activity
	r.activity = nil
	r.mu.Unlock()

	if activity != nil {
		activity.OnDestroy()
	}
}

// Shutdown finishes the activity, drains pending OS callbacks and tears the bus down.
func (r *Runtime) Shutdown() {
	r.Finish()
	r.OS.Wait()
	r.Bus.Close()
}

// Activity returns the live activity, or nil.
func (r *Runtime) Activity() *MainActivity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activity
}

// Launches returns how many activities have been created.
func (r *Runtime) Launches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.launches
}

// EcashPlugin returns the loaded BluetoothEcash plugin.
func (r *Runtime) EcashPlugin() (*ecash.Plugin, error) {
	p, ok := r.Bridge.Plugin(ecash.PluginName)
	if !ok {
		return nil, ecash.ErrNotLoaded
	}
	plugin, ok := p.(*ecash.Plugin)
	if !ok {
		return nil, ecash.ErrNotLoaded
	}
	return plugin, nil
}

// dispatchPermissionsResult delivers prompt outcomes to whichever activity is live.
func (r *Runtime) dispatchPermissionsResult(requestCode int, permissions []string, grantResults []platform.PermissionState) {
	activity := r.Activity()
	if activity == nil {
		r.logger.WithField("request_code", requestCode).Debug("Permission result dropped, no live activity")
		return
	}
	activity.OnRequestPermissionsResult(requestCode, permissions, grantResults)
}
