package host

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/bitpoints/internal/platform"
	"github.com/srg/bitpoints/internal/signalbus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Plugin is a native extension attached to the running bridge.
type Plugin interface {
	Name() string
	Load(ctx PluginContext) error
	HandleOnDestroy()
}

// PermissionResultHandler is implemented by plugins that consume permission prompt outcomes.
type PermissionResultHandler interface {
	HandleRequestPermissionsResult(requestCode int, permissions []string, grantResults []platform.PermissionState)
}

// PluginFactory creates a fresh plugin instance for one activity lifetime.
type PluginFactory func() Plugin

// PluginContext is handed to plugins on load.
type PluginContext struct {
	AppID       string
	SDK         platform.Version
	Bus         signalbus.Bus
	Permissions platform.PermissionChecker
	Logger      *logrus.Logger
}

// Activity is the lifecycle surface the host drives.
type Activity interface {
	OnCreate()
	OnDestroy()
	OnRequestPermissionsResult(requestCode int, permissions []string, grantResults []platform.PermissionState)
}

// Registry errors
var (
	ErrInvalidPluginName       = errors.New("invalid plugin name")
	ErrPluginNotFound          = errors.New("plugin not found")
	ErrPluginAlreadyRegistered = errors.New("plugin already registered")
)

// Bridge is a minimal in-memory bridge runtime: a catalog of plugin
// factories, the set registered for the current activity, and the
// instances loaded while the activity is live.
type Bridge struct {
	ctx    PluginContext
	logger *logrus.Entry

	mu         sync.Mutex
	catalog    map[string]PluginFactory
	registered *orderedmap.OrderedMap[string, PluginFactory]
	loaded     *orderedmap.OrderedMap[string, Plugin]
	created    bool
}

// NewBridge creates a bridge whose plugins receive ctx on load.
func NewBridge(ctx PluginContext) *Bridge {
	if ctx.Logger == nil {
		ctx.Logger = logrus.StandardLogger()
	}
	return &Bridge{
		ctx:        ctx,
		logger:     ctx.Logger.WithField("component", "bridge"),
		catalog:    make(map[string]PluginFactory),
		registered: orderedmap.New[string, PluginFactory](),
		loaded:     orderedmap.New[string, Plugin](),
	}
}

// Provide adds a plugin factory to the catalog of plugins that can be registered.
func (b *Bridge) Provide(name string, factory PluginFactory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalog[name] = factory
}

// RegisterPlugin attaches a catalog plugin to the current activity. It is
// loaded on the next OnCreate.
func (b *Bridge) RegisterPlugin(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidPluginName
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	factory, ok := b.catalog[name]
	if !ok || factory == nil {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if _, exists := b.registered.Get(name); exists {
		return fmt.Errorf("%w: %s", ErrPluginAlreadyRegistered, name)
	}
	b.registered.Set(name, factory)
	b.logger.WithField("plugin", name).Debug("Plugin registered")
	return nil
}

// OnCreate loads every registered plugin in registration order. Load
// failures are logged and the plugin is skipped.
func (b *Bridge) OnCreate() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.created {
		b.logger.Warn("Bridge already created")
		return
	}
	b.created = true

	for pair := b.registered.Oldest(); pair != nil; pair = pair.Next() {
		newPlugin := pair.Value
		plugin := newPlugin()
		if plugin == nil {
			b.logger.WithField("plugin", pair.Key).Error("Plugin factory returned nil")
			continue
		}
		if err := plugin.Load(b.ctx); err != nil {
			b.logger.WithError(err).WithField("plugin", pair.Key).Error("Failed to load plugin")
			continue
		}
		b.loaded.Set(pair.Key, plugin)
		b.logger.WithField("plugin", pair.Key).Info("Plugin loaded")
	}
}

// OnDestroy destroys loaded plugins in reverse load order and clears the
// registrations, so a recreated activity registers again.
func (b *Bridge) OnDestroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.created {
		return
	}
	b.created = false

	for pair := b.loaded.Newest(); pair != nil; pair = pair.Prev() {
		pair.Value.HandleOnDestroy()
		b.logger.WithField("plugin", pair.Key).Debug("Plugin destroyed")
	}
	b.loaded = orderedmap.New[string, Plugin]()
	b.registered = orderedmap.New[string, PluginFactory]()
}

// OnRequestPermissionsResult forwards a prompt outcome to loaded plugins that handle one.
func (b *Bridge) OnRequestPermissionsResult(requestCode int, permissions []string, grantResults []platform.PermissionState) {
	b.mu.Lock()
	var handlers []PermissionResultHandler
	for pair := b.loaded.Oldest(); pair != nil; pair = pair.Next() {
		if h, ok := pair.Value.(PermissionResultHandler); ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h.HandleRequestPermissionsResult(requestCode, permissions, grantResults)
	}
}

// Plugin returns a loaded plugin by name.
func (b *Bridge) Plugin(name string) (Plugin, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded.Get(name)
}

// Loaded returns the names of loaded plugins in load order.
func (b *Bridge) Loaded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, b.loaded.Len())
	for pair := b.loaded.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}
