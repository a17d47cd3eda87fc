package testutils

import (
	"sync"

	"github.com/srg/bitpoints/internal/platform"
	"github.com/stretchr/testify/mock"
)

// MockHost implements coordinator.Host
type MockHost struct {
	mock.Mock
}

func (m *MockHost) RegisterPlugin(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockHost) OnCreate() {
	m.Called()
}

func (m *MockHost) OnDestroy() {
	m.Called()
}

func (m *MockHost) OnRequestPermissionsResult(requestCode int, permissions []string, grantResults []platform.PermissionState) {
	m.Called(requestCode, permissions, grantResults)
}

// NewPermissiveHost returns a MockHost that accepts every call.
func NewPermissiveHost() *MockHost {
	h := &MockHost{}
	h.On("RegisterPlugin", mock.Anything).Return(nil).Maybe()
	h.On("OnCreate").Return().Maybe()
	h.On("OnDestroy").Return().Maybe()
	h.On("OnRequestPermissionsResult", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	return h
}

// MockNavigator implements platform.Navigator
type MockNavigator struct {
	mock.Mock
}

func (m *MockNavigator) StartActivity(intent platform.Intent) error {
	args := m.Called(intent)
	return args.Error(0)
}

// MockPermissions implements platform.PermissionChecker and platform.PermissionRequester
type MockPermissions struct {
	mock.Mock
}

func (m *MockPermissions) CheckSelfPermission(permission string) platform.PermissionState {
	args := m.Called(permission)
	return args.Get(0).(platform.PermissionState)
}

func (m *MockPermissions) RequestPermissions(permissions []string, requestCode int) error {
	args := m.Called(permissions, requestCode)
	return args.Error(0)
}

// RecordingNavigator is a thread-safe platform.Navigator that records intents.
// Use it where StartActivity is called from emitter goroutines.
type RecordingNavigator struct {
	mu      sync.Mutex
	intents []platform.Intent
	Err     error
}

func (n *RecordingNavigator) StartActivity(intent platform.Intent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.intents = append(n.intents, intent)
	return n.Err
}

// Intents returns a copy of the recorded intents.
func (n *RecordingNavigator) Intents() []platform.Intent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]platform.Intent(nil), n.intents...)
}

// Count returns the number of recorded intents.
func (n *RecordingNavigator) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.intents)
}
