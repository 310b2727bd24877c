package plugin

import (
	"context"
	"errors"

	"github.com/hearthd/sandboxd/internal/coordinator"
	"github.com/hearthd/sandboxd/internal/logging"
	"github.com/hearthd/sandboxd/internal/protocol"
	"github.com/hearthd/sandboxd/internal/proxy"
)

// ErrRefused signals that an integration's entry point executed but
// explicitly declined the entry — bad credentials, unreachable upstream on
// first contact, and similar. The runner reports it as a setup_failed
// classification, distinct from unexpected errors.
var ErrRefused = errors.New("plugin: setup refused")

// Entry is one configured instance of an integration.
type Entry struct {
	ID     string
	Domain string
	Config map[string]any
}

// Integration is the fixed entry-point contract every plugin implements.
type Integration interface {
	// SetupEntry configures one entry. It may register entities, create
	// coordinators, and issue proxied calls through the host handle.
	// Returning an error wrapping ErrRefused signals non-acceptance.
	SetupEntry(ctx context.Context, host Host, entry *Entry) error
}

// Unloader is implemented by integrations that need teardown beyond the
// runner's own timer and entity cleanup.
type Unloader interface {
	UnloadEntry(ctx context.Context, host Host, entry *Entry) error
}

// Host is the handle the runner supplies to an integration during setup.
// All capabilities route through the control channel; the plugin never
// touches the network or the host directly.
type Host interface {
	// EntryID identifies the entry being set up.
	EntryID() string
	// HTTP returns the outbound-request capability.
	HTTP() *proxy.Client
	// NewCoordinator creates a periodically-refreshed data source owned by
	// this entry. Its timer registration is cleaned up on unload.
	NewCoordinator(opts coordinator.Options) *coordinator.Coordinator
	// AddEntities registers entities under the given platform and records
	// the platform as forwarded. Registration messages are sent
	// synchronously, before AddEntities returns.
	AddEntities(platform string, entities ...Entity) error
	// UpdateState publishes a state change for a registered entity.
	UpdateState(entityID, state string, attributes map[string]any) error
	// Logger returns the entry-scoped logger.
	Logger() *logging.Logger
}

// Entity is the minimal contract for anything registered on the entity
// side-channel. Optional capabilities are separate interfaces, probed at
// registration time.
type Entity interface {
	// UniqueID is stable across restarts; the wire entity ID is
	// "<platform>.<unique_id>". Empty falls back to the literal "unknown".
	UniqueID() string
	Name() string
}

// StateProvider is implemented by entities that expose a state. Initial
// state is sent immediately after registration.
type StateProvider interface {
	State() (state string, attributes map[string]any)
}

// DeviceClassed is implemented by entities carrying a device-class tag.
type DeviceClassed interface {
	DeviceClass() string
}

// Featured is implemented by entities exposing a capability bitmask.
type Featured interface {
	SupportedFeatures() uint64
}

// DeviceDescribed is implemented by entities attached to a device.
type DeviceDescribed interface {
	DeviceInfo() *protocol.DeviceInfo
}
