package testutils

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *logtest.Hook
}

// NewTestHelper creates a test helper whose logger discards output and
// records every entry for assertions.
func NewTestHelper(t *testing.T) *TestHelper {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   hook,
	}
}

// Messages returns the messages logged at level, in order.
func (h *TestHelper) Messages(level logrus.Level) []string {
	var msgs []string
	for _, e := range h.Hook.AllEntries() {
		if e.Level == level {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

// Logged reports whether a message containing substr was logged at level.
func (h *TestHelper) Logged(level logrus.Level, substr string) bool {
	for _, msg := range h.Messages(level) {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// AssertLogged fails the test unless a message containing substr was logged at level.
func (h *TestHelper) AssertLogged(level logrus.Level, substr string) {
	h.T.Helper()
	if !h.Logged(level, substr) {
		h.T.Errorf("expected %s log containing %q, got %q", level, substr, h.Messages(level))
	}
}

// AssertNotLogged fails the test if any message was logged at level.
func (h *TestHelper) AssertNotLogged(level logrus.Level) {
	h.T.Helper()
	if msgs := h.Messages(level); len(msgs) > 0 {
		h.T.Errorf("expected no %s logs, got %q", level, msgs)
	}
}

// Reset drops all captured entries.
func (h *TestHelper) Reset() {
	h.Hook.Reset()
}
