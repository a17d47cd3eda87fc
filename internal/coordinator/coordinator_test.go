package coordinator_test

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/bitpoints/internal/coordinator"
	"github.com/srg/bitpoints/internal/ecash"
	"github.com/srg/bitpoints/internal/exemption"
	"github.com/srg/bitpoints/internal/platform"
	"github.com/srg/bitpoints/internal/signalbus"
	"github.com/srg/bitpoints/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	appID       = "me.bitpoints.wallet"
	packageName = "me.bitpoints.wallet"
)

var batteryIntent = platform.Intent{
	Action: platform.ActionRequestIgnoreBatteryOptimizations,
	Data:   "package:" + packageName,
}

// CoordinatorTestSuite runs the coordinator against a real LocalBus with a mocked host and OS.
type CoordinatorTestSuite struct {
	suite.Suite

	helper      *testutils.TestHelper
	bus         *signalbus.LocalBus
	host        *testutils.MockHost
	navigator   *testutils.RecordingNavigator
	permissions *testutils.MockPermissions
	sdk         platform.Version
	signal      string
}

func (suite *CoordinatorTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.sdk = platform.VersionUpsideDownCake
	suite.bus = signalbus.NewLocalBus(signalbus.WithSDKVersion(suite.sdk), signalbus.WithLogger(suite.helper.Logger))
	suite.host = testutils.NewPermissiveHost()
	suite.navigator = &testutils.RecordingNavigator{}
	suite.permissions = &testutils.MockPermissions{}
	suite.signal = exemption.RequestSignal(appID)
}

func (suite *CoordinatorTestSuite) newCoordinator() *coordinator.Coordinator {
	c, err := coordinator.New(coordinator.Options{
		Host:        suite.host,
		Bus:         suite.bus,
		Navigator:   suite.navigator,
		Permissions: suite.permissions,
		AppID:       appID,
		PackageName: packageName,
		SDK:         suite.sdk,
		Logger:      suite.helper.Logger,
	})
	suite.Require().NoError(err)
	return c
}

func (suite *CoordinatorTestSuite) TestActivateDeactivate_NoLeakAcrossRecreation() {
	for i := 0; i < 5; i++ {
		c := suite.newCoordinator()

		c.Activate()
		suite.Equal(1, suite.bus.Subscribers(suite.signal), "cycle %d", i)
		suite.Require().NotNil(c.Subscription())
		suite.Equal(exemption.Installed, c.Subscription().State())

		c.Deactivate()
		suite.Equal(0, suite.bus.Subscribers(suite.signal), "cycle %d", i)
		suite.Nil(c.Subscription())
	}
}

func (suite *CoordinatorTestSuite) TestReactivationCreatesFreshSubscription() {
	c := suite.newCoordinator()

	c.Activate()
	first := c.Subscription()
	c.Deactivate()

	c.Activate()
	second := c.Subscription()
	defer c.Deactivate()

	suite.Require().NotNil(second)
	suite.NotSame(first, second)
	suite.Equal(exemption.Removed, first.State())
	suite.Equal(exemption.Installed, second.State())
	suite.Equal(1, suite.bus.Subscribers(suite.signal))
}

func (suite *CoordinatorTestSuite) TestDeactivateWithoutActivate() {
	c := suite.newCoordinator()

	suite.NotPanics(c.Deactivate)
	suite.Equal(0, suite.bus.Subscribers(suite.signal))
	suite.host.AssertNotCalled(suite.T(), "OnDestroy")
}

func (suite *CoordinatorTestSuite) TestDeactivateTwice() {
	c := suite.newCoordinator()
	c.Activate()

	c.Deactivate()
	suite.helper.Reset()
	c.Deactivate()

	suite.Equal(0, suite.bus.Subscribers(suite.signal))
	suite.host.AssertNumberOfCalls(suite.T(), "OnDestroy", 1)
	suite.Empty(suite.helper.Hook.AllEntries())
}

func (suite *CoordinatorTestSuite) TestActivateTwiceKeepsSingleSubscription() {
	c := suite.newCoordinator()
	c.Activate()
	c.Activate()
	defer c.Deactivate()

	suite.Equal(1, suite.bus.Subscribers(suite.signal))
	suite.host.AssertNumberOfCalls(suite.T(), "RegisterPlugin", 1)
	suite.helper.AssertLogged(logrus.WarnLevel, "ignoring")
}

func (suite *CoordinatorTestSuite) TestSignalOutsideActivationIsIgnored() {
	c := suite.newCoordinator()

	suite.bus.Publish(suite.signal)
	c.Activate()
	c.Deactivate()
	suite.bus.Publish(suite.signal)

	suite.Equal(0, suite.navigator.Count())
}

func (suite *CoordinatorTestSuite) TestSingleSignalSingleRequest() {
	c := suite.newCoordinator()
	c.Activate()
	defer c.Deactivate()

	suite.bus.Publish(suite.signal)

	suite.Equal([]platform.Intent{batteryIntent}, suite.navigator.Intents())
}

func (suite *CoordinatorTestSuite) TestRapidSignalsAreNotDebounced() {
	c := suite.newCoordinator()
	c.Activate()
	defer c.Deactivate()

	suite.bus.Publish(suite.signal)
	suite.bus.Publish(suite.signal)
	suite.bus.Publish(suite.signal)

	suite.Equal([]platform.Intent{batteryIntent, batteryIntent, batteryIntent}, suite.navigator.Intents())
	suite.helper.AssertNotLogged(logrus.ErrorLevel)
}

func (suite *CoordinatorTestSuite) TestExternalSignalIgnoredWhenScoped() {
	c := suite.newCoordinator()
	c.Activate()
	defer c.Deactivate()

	suite.bus.PublishFrom(signalbus.OriginExternal, suite.signal)

	suite.Equal(0, suite.navigator.Count())
}

func (suite *CoordinatorTestSuite) TestPlainSubscriptionBeforeUpsideDownCake() {
	suite.sdk = platform.VersionTiramisu
	suite.bus = signalbus.NewLocalBus(signalbus.WithSDKVersion(suite.sdk))
	c := suite.newCoordinator()
	c.Activate()
	defer c.Deactivate()

	suite.bus.PublishFrom(signalbus.OriginExternal, suite.signal)

	suite.Equal(1, suite.navigator.Count())
}

func (suite *CoordinatorTestSuite) TestRegistrationFailureIsNotFatal() {
	suite.host = &testutils.MockHost{}
	suite.host.On("RegisterPlugin", ecash.PluginName).Return(errors.New("plugin class missing")).Once()
	suite.host.On("OnCreate").Return().Once()
	suite.host.On("OnDestroy").Return().Once()

	c := suite.newCoordinator()
	c.Activate()

	suite.True(c.Active())
	suite.Require().NotNil(c.Subscription())
	suite.Equal(1, suite.bus.Subscribers(suite.signal))
	suite.helper.AssertLogged(logrus.ErrorLevel, "Failed to register plugin")

	suite.bus.Publish(suite.signal)
	suite.Equal(1, suite.navigator.Count())

	c.Deactivate()
	suite.host.AssertExpectations(suite.T())
}

func (suite *CoordinatorTestSuite) TestRegistrationPanicIsNotFatal() {
	suite.host = &testutils.MockHost{}
	suite.host.On("RegisterPlugin", ecash.PluginName).Run(func(mock.Arguments) {
		panic("bridge not ready")
	}).Return(nil)
	suite.host.On("OnCreate").Return()
	suite.host.On("OnDestroy").Return()

	c := suite.newCoordinator()
	suite.NotPanics(c.Activate)
	defer c.Deactivate()

	suite.Equal(1, suite.bus.Subscribers(suite.signal))
	suite.helper.AssertLogged(logrus.ErrorLevel, "Failed to register plugin")
}

func (suite *CoordinatorTestSuite) TestListenerInstallFailureIsNotFatal() {
	// The bus enforces API 34 rules while the coordinator believes it runs on 33.
	suite.sdk = platform.VersionTiramisu
	c := suite.newCoordinator()

	c.Activate()

	suite.True(c.Active())
	suite.Nil(c.Subscription())
	suite.host.AssertCalled(suite.T(), "OnCreate")
	suite.helper.AssertLogged(logrus.ErrorLevel, "Failed to register battery optimization receiver")

	suite.NotPanics(c.Deactivate)
	suite.host.AssertCalled(suite.T(), "OnDestroy")
}

func (suite *CoordinatorTestSuite) TestActivateForwardsToHostAfterRegistration() {
	var order []string
	suite.host = &testutils.MockHost{}
	suite.host.On("RegisterPlugin", ecash.PluginName).Run(func(mock.Arguments) {
		order = append(order, "register")
	}).Return(nil)
	suite.host.On("OnCreate").Run(func(mock.Arguments) {
		order = append(order, "create")
		suite.Equal(1, suite.bus.Subscribers(suite.signal), "listener installed before host creation")
	}).Return()
	suite.host.On("OnDestroy").Return()

	c := suite.newCoordinator()
	c.Activate()
	defer c.Deactivate()

	suite.Equal([]string{"register", "create"}, order)
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func TestNew_RequiresDependencies(t *testing.T) {
	valid := func() coordinator.Options {
		return coordinator.Options{
			Host:        testutils.NewPermissiveHost(),
			Bus:         signalbus.NewLocalBus(),
			Navigator:   &testutils.RecordingNavigator{},
			Permissions: &testutils.MockPermissions{},
			AppID:       appID,
		}
	}

	tests := []struct {
		name   string
		mutate func(*coordinator.Options)
	}{
		{name: "host", mutate: func(o *coordinator.Options) { o.Host = nil }},
		{name: "bus", mutate: func(o *coordinator.Options) { o.Bus = nil }},
		{name: "navigator", mutate: func(o *coordinator.Options) { o.Navigator = nil }},
		{name: "permissions", mutate: func(o *coordinator.Options) { o.Permissions = nil }},
		{name: "app id", mutate: func(o *coordinator.Options) { o.AppID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid()
			tt.mutate(&opts)
			_, err := coordinator.New(opts)
			assert.Error(t, err)
		})
	}

	_, err := coordinator.New(valid())
	require.NoError(t, err)
}
