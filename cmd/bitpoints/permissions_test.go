package main

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/srg/bitpoints/internal/ecash"
	"github.com/srg/bitpoints/internal/platform"
	"github.com/srg/bitpoints/internal/shell"
	"github.com/srg/bitpoints/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type PermissionsTestSuite struct {
	CommandTestSuite
}

func (suite *PermissionsTestSuite) TestJSONListsPlatformSpecificPermissions() {
	tests := []struct {
		sdk  string
		want []string
	}{
		{"30", []string{
			platform.PermissionCamera,
			platform.PermissionBluetooth,
			platform.PermissionBluetoothAdmin,
			platform.PermissionFineLocation,
		}},
		{"34", []string{
			platform.PermissionCamera,
			platform.PermissionBluetoothAdvertise,
			platform.PermissionBluetoothConnect,
			platform.PermissionBluetoothScan,
			platform.PermissionPostNotifications,
		}},
	}

	for _, tt := range tests {
		suite.Run("sdk "+tt.sdk, func() {
			suite.SetupTest()
			out, _, err := suite.ExecuteCommand("permissions", "--sdk", tt.sdk, "--format", "json")
			suite.Require().NoError(err)

			var entries []permissionEntry
			suite.Require().NoError(json.Unmarshal([]byte(out), &entries))

			got := make([]string, len(entries))
			for i, e := range entries {
				got[i] = e.Permission
			}
			suite.Equal(tt.want, got)
			suite.Equal(1001, entries[0].RequestCode)
			suite.Equal(ecash.PermissionRequestCode, entries[1].RequestCode)
			suite.Equal(ecash.PluginName, entries[1].RequestedBy)
		})
	}
}

func (suite *PermissionsTestSuite) TestJSONEntries() {
	out, _, err := suite.ExecuteCommand("permissions", "--sdk", "31", "--format", "json")
	suite.Require().NoError(err)

	testutils.NewJSONAsserter(suite.T()).Assert(out, `[
		{"permission": "android.permission.CAMERA", "request_code": 1001, "requested_by": "MainActivity"},
		{"permission": "android.permission.BLUETOOTH_ADVERTISE", "request_code": 12345, "requested_by": "BluetoothEcash"},
		{"permission": "android.permission.BLUETOOTH_CONNECT", "request_code": 12345, "requested_by": "BluetoothEcash"},
		{"permission": "android.permission.BLUETOOTH_SCAN", "request_code": 12345, "requested_by": "BluetoothEcash"},
		{"permission": "android.permission.POST_NOTIFICATIONS", "request_code": 12345, "requested_by": "BluetoothEcash"}
	]`)
}

func (suite *PermissionsTestSuite) TestTable() {
	out, _, err := suite.ExecuteCommand("permissions")
	suite.Require().NoError(err)

	suite.Contains(out, "API level 34")
	suite.Contains(out, "REQUEST CODE")
	suite.Contains(out, platform.PermissionBluetoothScan)
}

func (suite *PermissionsTestSuite) TestRejectsArgsAndBadFormat() {
	_, _, err := suite.ExecuteCommand("permissions", "extra")
	suite.Error(err)

	suite.SetupTest()
	_, _, err = suite.ExecuteCommand("permissions", "--format", "xml")
	suite.ErrorIs(err, ErrInvalidFormat)
}

func TestPermissionsTestSuite(t *testing.T) {
	suite.Run(t, new(PermissionsTestSuite))
}

func TestFormatUserError(t *testing.T) {
	assert.Contains(t, FormatUserError(ecash.ErrNotLoaded), "did not load")
	assert.Equal(t, "the main activity is not running", FormatUserError(shell.ErrNoActivity))
	assert.Equal(t, "boom", FormatUserError(errors.New("boom")))
}
