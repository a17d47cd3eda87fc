package main

import (
	"bytes"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite provides command execution helpers shared by the
// cmd/bitpoints suites.
type CommandTestSuite struct {
	suite.Suite
}

// SetupTest restores every flag to its default so executions don't leak
// state into each other.
func (s *CommandTestSuite) SetupTest() {
	for _, cmd := range []*cobra.Command{rootCmd, runCmd, permissionsCmd} {
		resetFlagSet(cmd.Flags())
		resetFlagSet(cmd.PersistentFlags())
	}
}

func resetFlagSet(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

// ExecuteCommand runs the root command with args and returns stdout and
// stderr separately; logs go to stderr.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}
