package runner

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hearthd/sandboxd/internal/coordinator"
	"github.com/hearthd/sandboxd/internal/logging"
	"github.com/hearthd/sandboxd/internal/plugin"
	"github.com/hearthd/sandboxd/internal/protocol"
	"github.com/hearthd/sandboxd/internal/proxy"
	"github.com/hearthd/sandboxd/internal/shared/id"
)

// entryHost is the capability handle handed to a plugin for one entry. It
// implements plugin.Host and coordinator.Scheduler. All methods execute on
// the dispatcher goroutine (plugins are invoked from there), so access to
// the runner's tables needs no locking.
type entryHost struct {
	runner *Runner
	rec    *entryRecord
	log    *logging.Logger
}

var (
	_ plugin.Host           = (*entryHost)(nil)
	_ coordinator.Scheduler = (*entryHost)(nil)
)

func (h *entryHost) EntryID() string { return h.rec.entry.ID }

func (h *entryHost) HTTP() *proxy.Client { return h.runner.http }

func (h *entryHost) Logger() *logging.Logger { return h.log }

func (h *entryHost) NewCoordinator(opts coordinator.Options) *coordinator.Coordinator {
	c := coordinator.New(opts, h, h.log, h.runner.metrics)
	h.rec.coordinators = append(h.rec.coordinators, c)
	return c
}

// ScheduleUpdate registers a periodic timer with the host and binds it to
// the coordinator. The interval travels in whole seconds.
func (h *entryHost) ScheduleUpdate(c *coordinator.Coordinator) (id.TimerID, error) {
	timerID := id.NewTimerID(c.Name())
	interval := uint64(c.Interval() / time.Second)

	msg := protocol.ScheduleUpdate(timerID.String(), h.rec.entry.ID, c.Name(), interval)
	if err := h.runner.send(msg); err != nil {
		return "", fmt.Errorf("runner: register timer: %w", err)
	}

	h.runner.timers[timerID] = &timerBinding{coord: c, entryID: h.rec.entry.ID}
	h.rec.timerIDs = append(h.rec.timerIDs, timerID)
	return timerID, nil
}

// AddEntities registers entities under a platform, recording the platform
// as forwarded. Registration frames go out synchronously, so by the time
// setup_complete is sent every entity announced during setup is already on
// the wire. Entities providing a state get their initial state_update
// immediately after registration.
func (h *entryHost) AddEntities(platform string, entities ...plugin.Entity) error {
	h.rec.addPlatform(platform)

	for _, e := range entities {
		entityID := entityID(platform, e)
		msg := &protocol.Message{
			Type:     protocol.TypeEntityRegister,
			EntryID:  h.rec.entry.ID,
			EntityID: entityID,
			Platform: platform,
			Name:     e.Name(),
		}
		if dc, ok := e.(plugin.DeviceClassed); ok {
			msg.DeviceClass = dc.DeviceClass()
		}
		if f, ok := e.(plugin.Featured); ok {
			msg.Capabilities = map[string]any{"supported_features": f.SupportedFeatures()}
		}
		if dd, ok := e.(plugin.DeviceDescribed); ok {
			msg.DeviceInfo = dd.DeviceInfo()
		}
		if err := h.runner.send(msg); err != nil {
			return fmt.Errorf("runner: register entity %s: %w", entityID, err)
		}
		h.log.Debug("registered entity", zap.String("entity_id", entityID))

		if sp, ok := e.(plugin.StateProvider); ok {
			state, attrs := sp.State()
			if err := h.UpdateState(entityID, state, attrs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *entryHost) UpdateState(entityID, state string, attributes map[string]any) error {
	msg := &protocol.Message{
		Type:        protocol.TypeStateUpdate,
		EntityID:    entityID,
		State:       state,
		Attributes:  attributes,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.runner.send(msg); err != nil {
		return fmt.Errorf("runner: update state of %s: %w", entityID, err)
	}
	return nil
}

// entityID builds the wire entity ID. An entity without a unique ID gets
// the literal "unknown" rather than an empty segment.
func entityID(platform string, e plugin.Entity) string {
	uid := e.UniqueID()
	if uid == "" {
		uid = "unknown"
	}
	return platform + "." + uid
}
