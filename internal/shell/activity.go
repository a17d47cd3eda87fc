package shell

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/bitpoints/internal/coordinator"
	"github.com/srg/bitpoints/internal/host"
	"github.com/srg/bitpoints/internal/platform"
)

// MainActivity adapts host lifecycle callbacks to a Coordinator. A new
// MainActivity, and with it a new Coordinator, is created for every
// activity instance, including recreation after a configuration change.
type MainActivity struct {
	coordinator *coordinator.Coordinator
	logger      *logrus.Entry
}

var _ host.Activity = (*MainActivity)(nil)

// NewMainActivity creates the activity for one surface lifetime.
func NewMainActivity(opts coordinator.Options) (*MainActivity, error) {
	c, err := coordinator.New(opts)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MainActivity{
		coordinator: c,
		logger:      logger.WithField("component", "activity"),
	}, nil
}

// OnCreate implements host.Activity.
func (a *MainActivity) OnCreate() {
	a.logger.Info("onCreate")
	a.coordinator.Activate()
}

// OnDestroy implements host.Activity.
func (a *MainActivity) OnDestroy() {
	a.logger.Info("onDestroy")
	a.coordinator.Deactivate()
}

// OnRequestPermissionsResult implements host.Activity.
func (a *MainActivity) OnRequestPermissionsResult(requestCode int, permissions []string, grantResults []platform.PermissionState) {
	a.coordinator.OnPermissionResult(requestCode, permissions, grantResults)
}

// Coordinator exposes the helpers the embedding UI calls directly.
func (a *MainActivity) Coordinator() *coordinator.Coordinator {
	return a.coordinator
}
