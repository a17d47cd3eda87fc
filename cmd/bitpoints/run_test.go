package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/bitpoints/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// RunTestSuite exercises the run command end to end against the simulated runtime.
type RunTestSuite struct {
	CommandTestSuite
}

func (suite *RunTestSuite) runJSON(args ...string) *sessionSummary {
	out, _, err := suite.ExecuteCommand(append([]string{"run", "--format", "json"}, args...)...)
	suite.Require().NoError(err)

	var summary sessionSummary
	suite.Require().NoError(json.Unmarshal([]byte(out), &summary))
	return &summary
}

func (suite *RunTestSuite) TestRecreationLeavesNoReceivers() {
	summary := suite.runJSON("--sdk", "34", "--emit", "3", "--recreate", "2")

	suite.Equal("me.bitpoints.wallet", summary.AppID)
	suite.Equal("me.bitpoints.wallet.REQUEST_BATTERY_OPTIMIZATION", summary.Signal)
	suite.Equal(3, summary.Launches)
	suite.Equal(9, summary.Emitted)
	suite.EqualValues(9, summary.Delivered)
	suite.Equal(9, summary.SettingsOpened)
	suite.Equal(0, summary.PostFinishReceivers)
	suite.False(summary.Leaked())
}

func (suite *RunTestSuite) TestJSONSummary() {
	out, _, err := suite.ExecuteCommand("run", "--format", "json", "--sdk", "33", "--emit", "2", "--camera", "grant")
	suite.Require().NoError(err)

	testutils.NewJSONAsserter(suite.T()).Assert(out, `{
		"app_id": "me.bitpoints.wallet",
		"sdk": 33,
		"signal": "<<PRESENCE>>",
		"launches": 1,
		"emitted": 2,
		"external": 0,
		"delivered": 2,
		"settings_opened": 2,
		"post_finish_receivers": 0,
		"camera": "granted",
		"bluetooth": "not requested"
	}`)
}

func (suite *RunTestSuite) TestMetricsReport() {
	summary := suite.runJSON("--sdk", "34", "--emit", "2", "--metrics")

	suite.Require().NotEmpty(summary.Metrics)
	suite.GreaterOrEqual(summary.Metrics["bitpoints_exemption_prompts_total{status=opened}"], 2.0)
	suite.GreaterOrEqual(summary.Metrics["bitpoints_signals_published_total{origin=local}"], 3.0)
	suite.Contains(summary.Metrics, "bitpoints_signal_subscriptions_current")

	suite.SetupTest()
	out, _, err := suite.ExecuteCommand("run", "--metrics")
	suite.Require().NoError(err)
	suite.Contains(out, "METRIC")
	suite.Contains(out, "bitpoints_signal_deliveries_total{status=delivered}")
}

func (suite *RunTestSuite) TestLegacyPlatformSkipsSettings() {
	summary := suite.runJSON("--sdk", "22", "--emit", "2")

	suite.EqualValues(2, summary.Delivered)
	suite.Equal(0, summary.SettingsOpened)
}

func (suite *RunTestSuite) TestExternalRequestsIgnoredWhenScoped() {
	summary := suite.runJSON("--sdk", "34", "--emit", "1", "--external", "2")

	suite.Equal(2, summary.External)
	suite.EqualValues(1, summary.Delivered)
	suite.Equal(1, summary.SettingsOpened)
}

func (suite *RunTestSuite) TestExternalRequestsDeliveredBeforeScoping() {
	summary := suite.runJSON("--sdk", "30", "--emit", "1", "--external", "2")

	suite.EqualValues(3, summary.Delivered)
	suite.Equal(3, summary.SettingsOpened)
}

func (suite *RunTestSuite) TestPermissionPrompts() {
	summary := suite.runJSON("--emit", "0", "--camera", "grant", "--bluetooth", "deny")
	suite.Equal("granted", summary.Camera)
	suite.Equal("denied", summary.Bluetooth)

	suite.SetupTest()
	summary = suite.runJSON("--emit", "0", "--camera", "deny", "--bluetooth", "grant")
	suite.Equal("denied", summary.Camera)
	suite.Equal("granted", summary.Bluetooth)

	suite.SetupTest()
	summary = suite.runJSON("--emit", "0")
	suite.Equal("not requested", summary.Camera)
	suite.Equal("not requested", summary.Bluetooth)
}

func (suite *RunTestSuite) TestTableOutput() {
	out, _, err := suite.ExecuteCommand("run", "--emit", "2")
	suite.Require().NoError(err)

	suite.Contains(out, "FIELD")
	suite.Contains(out, "me.bitpoints.wallet.REQUEST_BATTERY_OPTIMIZATION")
	suite.Contains(out, "Receivers after finish")
	suite.Contains(out, "(OK)")
	suite.NotContains(out, "\x1b[", "colors MUST be off when output is not a terminal")
}

func (suite *RunTestSuite) TestLogsGoToStderr() {
	out, errOut, err := suite.ExecuteCommand("run", "--format", "json", "--log-level", "debug")
	suite.Require().NoError(err)

	suite.Contains(errOut, "onCreate")
	suite.Contains(errOut, "onDestroy")
	suite.NotContains(out, "onCreate")
}

func (suite *RunTestSuite) TestConfigFile() {
	path := filepath.Join(suite.T().TempDir(), "bitpoints.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte("app_id: me.bitpoints.test\nsdk_version: 22\n"), 0o600))

	summary := suite.runJSON("--config", path, "--emit", "1")
	suite.Equal("me.bitpoints.test", summary.AppID)
	suite.Equal(22, summary.SDK)
	suite.Equal(0, summary.SettingsOpened)

	suite.SetupTest()
	summary = suite.runJSON("--config", path, "--sdk", "33", "--emit", "1")
	suite.Equal(33, summary.SDK)
	suite.Equal(1, summary.SettingsOpened)
}

func (suite *RunTestSuite) TestInvalidArguments() {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"format", []string{"run", "--format", "yaml"}, ErrInvalidFormat},
		{"camera", []string{"run", "--camera", "maybe"}, ErrInvalidOutcome},
		{"bluetooth", []string{"run", "--bluetooth", "later"}, ErrInvalidOutcome},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.SetupTest()
			_, _, err := suite.ExecuteCommand(tt.args...)
			suite.ErrorIs(err, tt.want)
		})
	}

	suite.SetupTest()
	_, _, err := suite.ExecuteCommand("run", "--emit=-1")
	suite.Error(err)

	suite.SetupTest()
	_, _, err = suite.ExecuteCommand("run", "--log-level", "loud")
	suite.ErrorContains(err, "invalid log level")

	suite.SetupTest()
	_, _, err = suite.ExecuteCommand("run", "--config", filepath.Join(suite.T().TempDir(), "missing.yaml"))
	suite.ErrorIs(err, os.ErrNotExist)
	suite.Contains(FormatUserError(err), "config file not found")
}

func TestRunTestSuite(t *testing.T) {
	suite.Run(t, new(RunTestSuite))
}

func TestSimulateSession_Logging(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	summary, err := simulateSession(context.Background(), sessionConfig{
		appID:       "me.bitpoints.wallet",
		packageName: "me.bitpoints.wallet",
		sdk:         22,
		emit:        1,
	}, logger)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.SettingsOpened)

	var skipped bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.DebugLevel && strings.Contains(entry.Message, "skipping") {
			skipped = true
		}
	}
	assert.True(t, skipped, "legacy platform MUST log the skipped prompt")
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
