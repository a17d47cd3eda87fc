package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// TestingT is an interface that matches the methods we need from testing.T
type TestingT interface {
	Errorf(format string, args ...interface{})
}

type LogAssertOptions struct {
	MinLevel     logrus.Level `default:"5"` // logrus.DebugLevel
	WithLevel    bool         `default:"true"`
	EnableColors bool         `default:"false"`
}

// LogOption is a functional option for configuring LogAsserter
type LogOption func(*LogAssertOptions)

// LogAsserter compares the transcript of captured log entries against an
// expected transcript and reports a unified diff on mismatch.
//
//	la := testutils.NewLogAsserter(t, helper.Hook).WithOptions(testutils.WithMinLevel(logrus.InfoLevel))
//	la.Assert(`
//	    info Activity created
//	    warn Camera permission denied
//	`)
type LogAsserter struct {
	t       TestingT
	hook    *logtest.Hook
	options LogAssertOptions
}

// NewLogAsserter creates a LogAsserter with default options.
func NewLogAsserter(t TestingT, hook *logtest.Hook) *LogAsserter {
	opts := LogAssertOptions{}
	defaults.SetDefaults(&opts)
	return &LogAsserter{
		t:       t,
		hook:    hook,
		options: opts,
	}
}

// WithOptions applies functional options to the LogAsserter
func (la *LogAsserter) WithOptions(opts ...LogOption) *LogAsserter {
	for _, opt := range opts {
		opt(&la.options)
	}
	return la
}

// Transcript renders the captured entries, one per line.
func (la *LogAsserter) Transcript() string {
	var lines []string
	for _, e := range la.hook.AllEntries() {
		if e.Level > la.options.MinLevel {
			continue
		}
		if la.options.WithLevel {
			lines = append(lines, fmt.Sprintf("%s %s", e.Level, e.Message))
		} else {
			lines = append(lines, e.Message)
		}
	}
	return strings.Join(lines, "\n")
}

// Assert compares the transcript against expected. Leading/trailing
// whitespace and empty lines in expected are ignored.
func (la *LogAsserter) Assert(expected string) {
	actual := la.Transcript()
	expected = normalizeTranscript(expected)
	if actual == expected {
		return
	}

	edits := myers.ComputeEdits("", expected+"\n", actual+"\n")
	unified := gotextdiff.ToUnified("expected", "actual", expected+"\n", edits)
	la.t.Errorf("Log assertion failed - unified diff:\n%s", la.colorize(fmt.Sprint(unified)))
}

func (la *LogAsserter) colorize(diff string) string {
	if !la.options.EnableColors {
		return diff
	}

	red := color.New(color.FgRed)
	red.EnableColor()
	green := color.New(color.FgGreen)
	green.EnableColor()
	cyan := color.New(color.FgCyan)
	cyan.EnableColor()

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++"):
		case strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(line)
		}
	}
	return strings.Join(lines, "\n")
}

func normalizeTranscript(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// WithMinLevel drops entries less severe than level from the transcript
func WithMinLevel(level logrus.Level) LogOption {
	return func(opts *LogAssertOptions) {
		opts.MinLevel = level
	}
}

// WithLevelPrefix sets whether each line is prefixed with the entry level
func WithLevelPrefix(enabled bool) LogOption {
	return func(opts *LogAssertOptions) {
		opts.WithLevel = enabled
	}
}

// WithColors sets whether diff output is colorized
func WithColors(enabled bool) LogOption {
	return func(opts *LogAssertOptions) {
		opts.EnableColors = enabled
	}
}
