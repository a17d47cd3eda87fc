package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/bitpoints/internal/groutine"
)

// PermissionResultFunc receives the outcome of a permission prompt.
type PermissionResultFunc func(requestCode int, permissions []string, grantResults []PermissionState)

// PermissionPrompt records a single RequestPermissions call.
type PermissionPrompt struct {
	Permissions []string
	RequestCode int
}

// Emulator is an in-memory OS used by the CLI and tests. It implements
// Navigator, PermissionChecker and PermissionRequester.
type Emulator struct {
	sdk    Version
	logger *logrus.Entry

	mu          sync.Mutex
	resolvable  map[string]bool
	intents     []Intent
	permissions map[string]PermissionState
	policy      map[string]PermissionState
	prompts     []PermissionPrompt
	onResult    PermissionResultFunc

	results groutine.Group
}

// NewEmulator creates an emulator for the given API level. Battery
// optimization prompts resolve only on API levels that have them.
func NewEmulator(sdk Version, logger *logrus.Logger) *Emulator {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Emulator{
		sdk:         sdk,
		logger:      logger.WithField("component", "emulator"),
		resolvable:  make(map[string]bool),
		permissions: make(map[string]PermissionState),
		policy:      make(map[string]PermissionState),
	}
	if sdk.AtLeast(VersionM) {
		e.resolvable[ActionRequestIgnoreBatteryOptimizations] = true
	}
	return e
}

// SDK returns the emulated API level.
func (e *Emulator) SDK() Version {
	return e.sdk
}

// SetResolvable controls whether intents with action can be started.
func (e *Emulator) SetResolvable(action string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolvable[action] = ok
}

// SetPermission forces the current grant state of a permission.
func (e *Emulator) SetPermission(permission string, state PermissionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.permissions[permission] = state
}

// SetPromptOutcome decides what the simulated user answers when prompted for permission.
// Unconfigured permissions are denied.
func (e *Emulator) SetPromptOutcome(permission string, state PermissionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy[permission] = state
}

// OnPermissionsResult registers the receiver of prompt outcomes, normally the
// host's permission-result callback. Passing nil drops results.
func (e *Emulator) OnPermissionsResult(fn PermissionResultFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onResult = fn
}

// StartActivity records intents whose action is resolvable.
func (e *Emulator) StartActivity(intent Intent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.resolvable[intent.Action] {
		return fmt.Errorf("%w: action=%s data=%s", ErrActivityNotFound, intent.Action, intent.Data)
	}
	e.intents = append(e.intents, intent)
	e.logger.WithFields(logrus.Fields{
		"action": intent.Action,
		"data":   intent.Data,
	}).Debug("Activity started")
	return nil
}

// Intents returns a copy of every intent started so far.
func (e *Emulator) Intents() []Intent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Intent(nil), e.intents...)
}

// CheckSelfPermission returns the current grant state.
func (e *Emulator) CheckSelfPermission(permission string) PermissionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.permissions[permission]
}

// RequestPermissions simulates the OS prompt. The outcome is applied and
// delivered on a background goroutine, like the real dialog's callback.
func (e *Emulator) RequestPermissions(permissions []string, requestCode int) error {
	if len(permissions) == 0 {
		return ErrNoPermissions
	}

	e.mu.Lock()
	perms := append([]string(nil), permissions...)
	e.prompts = append(e.prompts, PermissionPrompt{Permissions: perms, RequestCode: requestCode})
	results := make([]PermissionState, len(perms))
	for i, p := range perms {
		results[i] = e.policy[p]
		e.permissions[p] = results[i]
	}
	onResult := e.onResult
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"permissions":  perms,
		"request_code": requestCode,
	}).Debug("Permission prompt shown")

	if onResult == nil {
		return nil
	}
	e.results.Go(context.Background(), "permission-result", func(ctx context.Context) {
		onResult(requestCode, perms, results)
	})
	return nil
}

// Prompts returns a copy of every permission prompt shown so far.
func (e *Emulator) Prompts() []PermissionPrompt {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]PermissionPrompt(nil), e.prompts...)
}

// Wait blocks until every pending permission result has been delivered.
func (e *Emulator) Wait() {
	e.results.Wait()
}
