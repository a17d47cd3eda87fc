package coordinator

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/bitpoints/internal/metrics"
	"github.com/srg/bitpoints/internal/platform"
)

// CheckCameraPermission reports whether the camera permission is granted.
func (c *Coordinator) CheckCameraPermission() bool {
	return c.permissions.CheckSelfPermission(platform.PermissionCamera) == platform.Granted
}

// RequestCameraPermission prompts for the camera permission unless it is
// already granted. The outcome arrives through OnPermissionResult.
func (c *Coordinator) RequestCameraPermission() {
	if c.CheckCameraPermission() {
		return
	}
	err := c.permissions.RequestPermissions([]string{platform.PermissionCamera}, CameraPermissionRequest)
	if err != nil {
		c.logger.WithError(err).Error("Failed to request camera permission")
	}
}

// OnPermissionResult forwards a prompt outcome to the host, then handles the
// request codes the coordinator issued. Unknown request codes are ignored.
func (c *Coordinator) OnPermissionResult(requestCode int, permissions []string, grantResults []platform.PermissionState) {
	c.host.OnRequestPermissionsResult(requestCode, permissions, grantResults)

	switch requestCode {
	case CameraPermissionRequest:
		fields := logrus.Fields{"request_code": requestCode}
		if len(grantResults) > 0 && grantResults[0] == platform.Granted {
			metrics.PermissionResultsTotal.WithLabelValues("camera", "granted").Inc()
			c.logger.WithFields(fields).Info("Camera permission granted")
		} else {
			metrics.PermissionResultsTotal.WithLabelValues("camera", "denied").Inc()
			c.logger.WithFields(fields).Warn("Camera permission denied")
		}
	}
}
