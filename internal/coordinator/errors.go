package coordinator

import (
	"fmt"

	"github.com/srg/bitpoints/internal/platform"
)

// RegistrationError reports a host that panicked while registering a plugin.
type RegistrationError struct {
	Plugin string
	Cause  interface{}
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register plugin %s: %v", e.Plugin, e.Cause)
}

// NavigationError reports a navigator that panicked while starting an intent.
type NavigationError struct {
	Intent platform.Intent
	Cause  interface{}
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("start activity %s (%s): %v", e.Intent.Action, e.Intent.Data, e.Cause)
}
