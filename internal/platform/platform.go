package platform

import (
	"errors"
	"fmt"
)

// Version is an OS API level (SDK_INT).
type Version int

// API levels the coordination core gates behavior on.
const (
	// VersionM introduced battery optimization exemptions (Doze).
	VersionM Version = 23
	// VersionS introduced the runtime Bluetooth scan/advertise/connect permissions.
	VersionS Version = 31
	// VersionTiramisu introduced the notification runtime permission.
	VersionTiramisu Version = 33
	// VersionUpsideDownCake requires an explicit export flag on context-registered receivers.
	VersionUpsideDownCake Version = 34
)

// AtLeast reports whether v is the same as or newer than min.
func (v Version) AtLeast(min Version) bool {
	return v >= min
}

func (v Version) String() string {
	return fmt.Sprintf("API %d", int(v))
}

// ActionRequestIgnoreBatteryOptimizations opens the system prompt that
// whitelists a package from battery optimizations.
const ActionRequestIgnoreBatteryOptimizations = "android.settings.REQUEST_IGNORE_BATTERY_OPTIMIZATIONS"

// Intent is a navigation request to another surface of the OS.
type Intent struct {
	Action string
	Data   string
}

// PackageURI returns the "package:" data URI identifying an application.
func PackageURI(packageName string) string {
	return "package:" + packageName
}

// Permission names
const (
	PermissionCamera             = "android.permission.CAMERA"
	PermissionBluetooth          = "android.permission.BLUETOOTH"
	PermissionBluetoothAdmin     = "android.permission.BLUETOOTH_ADMIN"
	PermissionBluetoothAdvertise = "android.permission.BLUETOOTH_ADVERTISE"
	PermissionBluetoothConnect   = "android.permission.BLUETOOTH_CONNECT"
	PermissionBluetoothScan      = "android.permission.BLUETOOTH_SCAN"
	PermissionFineLocation       = "android.permission.ACCESS_FINE_LOCATION"
	PermissionPostNotifications  = "android.permission.POST_NOTIFICATIONS"
)

// PermissionState is the grant state of a single runtime permission.
type PermissionState int

const (
	// Denied is the zero value: a permission never requested counts as denied.
	Denied PermissionState = iota
	Granted
)

func (s PermissionState) String() string {
	if s == Granted {
		return "granted"
	}
	return "denied"
}

// Navigator dispatches intents to the OS. StartActivity returns once the
// request is handed off; it never reports what the user did on the target surface.
type Navigator interface {
	StartActivity(intent Intent) error
}

// PermissionChecker queries the current grant state without side effects.
type PermissionChecker interface {
	CheckSelfPermission(permission string) PermissionState
}

// PermissionRequester shows the OS permission prompt. The outcome arrives
// later through the host's permission-result callback, tagged with requestCode.
type PermissionRequester interface {
	RequestPermissions(permissions []string, requestCode int) error
}

// Permissions combines querying and prompting.
type Permissions interface {
	PermissionChecker
	PermissionRequester
}

var (
	// ErrActivityNotFound indicates no surface can handle the intent.
	ErrActivityNotFound = errors.New("no activity found to handle intent")
	// ErrNoPermissions indicates an empty permission request.
	ErrNoPermissions = errors.New("no permissions requested")
)
