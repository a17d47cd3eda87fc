package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/srg/bitpoints/internal/ecash"
	"github.com/srg/bitpoints/internal/shell"
)

// Command-level errors
var (
	// ErrInvalidFormat is returned for an unknown --format value.
	ErrInvalidFormat = errors.New("invalid output format")
	// ErrInvalidOutcome is returned for an unknown --camera or --bluetooth value.
	ErrInvalidOutcome = errors.New("invalid prompt outcome")
)

// FormatUserError turns internal errors into messages that make sense on a terminal.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Sprintf("config file not found (%v)", err)
	case errors.Is(err, ecash.ErrNotLoaded):
		return "BluetoothEcash plugin did not load; rerun with --log-level debug for details"
	case errors.Is(err, shell.ErrNoActivity):
		return "the main activity is not running"
	default:
		return err.Error()
	}
}
