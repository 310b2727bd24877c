package runner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthd/sandboxd/internal/config"
	"github.com/hearthd/sandboxd/internal/coordinator"
	"github.com/hearthd/sandboxd/internal/logging"
	"github.com/hearthd/sandboxd/internal/plugin"
	"github.com/hearthd/sandboxd/internal/protocol"
	"github.com/hearthd/sandboxd/internal/transport"
)

// harness runs a Runner over one end of an in-memory pipe and plays the
// host on the other end.
type harness struct {
	t    *testing.T
	host *transport.Transport
	done chan error
}

func newHarness(t *testing.T, registry *plugin.Registry) *harness {
	t.Helper()

	sandboxEnd, hostEnd := net.Pipe()
	r := New(transport.New(sandboxEnd, nil), registry, config.Default().Proxy, logging.NewNop(), nil)

	h := &harness{
		t:    t,
		host: transport.New(hostEnd, nil),
		done: make(chan error, 1),
	}
	go func() { h.done <- r.Run(context.Background()) }()
	t.Cleanup(func() { h.host.Close() })

	msg := h.recv()
	require.Equal(t, protocol.TypeReady, msg.Type)
	return h
}

func (h *harness) send(msg *protocol.Message) {
	h.t.Helper()
	require.NoError(h.t, h.host.Send(msg))
}

func (h *harness) recv() *protocol.Message {
	h.t.Helper()

	type result struct {
		msg *protocol.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := h.host.Receive()
		ch <- result{msg, err}
	}()

	select {
	case res := <-ch:
		require.NoError(h.t, res.err)
		return res.msg
	case <-time.After(5 * time.Second):
		h.t.Fatal("timed out waiting for a message from the runner")
		return nil
	}
}

func (h *harness) waitExit() error {
	h.t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("runner did not exit")
		return nil
	}
}

// scriptedIntegration drives its setup from a test-provided function.
type scriptedIntegration struct {
	setup  func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error
	unload func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error
}

func (s *scriptedIntegration) SetupEntry(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
	return s.setup(ctx, host, entry)
}

func (s *scriptedIntegration) UnloadEntry(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
	if s.unload == nil {
		return nil
	}
	return s.unload(ctx, host, entry)
}

type testEntity struct {
	uniqueID string
	name     string
	state    string
	attrs    map[string]any
	features uint64
}

func (e *testEntity) UniqueID() string { return e.uniqueID }
func (e *testEntity) Name() string     { return e.name }

func (e *testEntity) State() (string, map[string]any) { return e.state, e.attrs }

func (e *testEntity) SupportedFeatures() uint64 { return e.features }

func TestSetupUnknownDomain(t *testing.T) {
	h := newHarness(t, plugin.NewRegistry(t.TempDir(), nil))

	h.send(&protocol.Message{Type: protocol.TypeSetupIntegration, EntryID: "e1", Domain: "hologram"})

	reply := h.recv()
	assert.Equal(t, protocol.TypeSetupFailed, reply.Type)
	assert.Equal(t, "e1", reply.EntryID)
	assert.Equal(t, protocol.ErrIntegrationNotFound, reply.ErrorType)
	assert.Contains(t, reply.Error, "hologram")
}

func TestSetupRegistersEntitiesAndCompletes(t *testing.T) {
	reg := plugin.NewRegistry(t.TempDir(), nil)
	var gotConfig map[string]any
	require.NoError(t, reg.Register("weather", &scriptedIntegration{
		setup: func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
			gotConfig = entry.Config
			return host.AddEntities("weather", &testEntity{
				uniqueID: "home",
				name:     "Home",
				state:    "sunny",
				attrs:    map[string]any{"temperature": 21.5},
				features: 3,
			})
		},
	}))
	h := newHarness(t, reg)

	h.send(&protocol.Message{
		Type:    protocol.TypeSetupIntegration,
		EntryID: "e1",
		Domain:  "weather",
		Config:  map[string]any{"latitude": 52.5},
	})

	reg1 := h.recv()
	assert.Equal(t, protocol.TypeEntityRegister, reg1.Type)
	assert.Equal(t, "weather.home", reg1.EntityID)
	assert.Equal(t, "weather", reg1.Platform)
	assert.Equal(t, "Home", reg1.Name)
	require.NotNil(t, reg1.Capabilities)
	assert.EqualValues(t, 3, reg1.Capabilities["supported_features"])

	st := h.recv()
	assert.Equal(t, protocol.TypeStateUpdate, st.Type)
	assert.Equal(t, "weather.home", st.EntityID)
	assert.Equal(t, "sunny", st.State)
	assert.NotEmpty(t, st.LastUpdated)

	done := h.recv()
	assert.Equal(t, protocol.TypeSetupComplete, done.Type)
	assert.Equal(t, []string{"weather"}, done.Platforms)

	assert.Equal(t, map[string]any{"latitude": 52.5}, gotConfig)
}

func TestSetupEmptyUniqueIDFallsBack(t *testing.T) {
	reg := plugin.NewRegistry(t.TempDir(), nil)
	require.NoError(t, reg.Register("sensor", &scriptedIntegration{
		setup: func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
			return host.AddEntities("sensor", &testEntity{name: "Nameless"})
		},
	}))
	h := newHarness(t, reg)

	h.send(&protocol.Message{Type: protocol.TypeSetupIntegration, EntryID: "e1", Domain: "sensor"})

	reg1 := h.recv()
	assert.Equal(t, "sensor.unknown", reg1.EntityID)
	h.recv() // state_update
	h.recv() // setup_complete
}

func TestSetupRefusedClassifiedAsSetupFailed(t *testing.T) {
	reg := plugin.NewRegistry(t.TempDir(), nil)
	require.NoError(t, reg.Register("weather", &scriptedIntegration{
		setup: func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
			return fmt.Errorf("upstream said no: %w", plugin.ErrRefused)
		},
	}))
	h := newHarness(t, reg)

	h.send(&protocol.Message{Type: protocol.TypeSetupIntegration, EntryID: "e1", Domain: "weather"})

	reply := h.recv()
	assert.Equal(t, protocol.TypeSetupFailed, reply.Type)
	assert.Equal(t, protocol.ErrSetupFailed, reply.ErrorType)
	assert.Contains(t, reply.Error, "upstream said no")
}

func TestSetupPanicClassifiedAsUnknown(t *testing.T) {
	reg := plugin.NewRegistry(t.TempDir(), nil)
	require.NoError(t, reg.Register("weather", &scriptedIntegration{
		setup: func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
			panic("nil map write")
		},
	}))
	h := newHarness(t, reg)

	h.send(&protocol.Message{Type: protocol.TypeSetupIntegration, EntryID: "e1", Domain: "weather"})

	reply := h.recv()
	assert.Equal(t, protocol.TypeSetupFailed, reply.Type)
	assert.Equal(t, protocol.ErrUnknown, reply.ErrorType)
	assert.Contains(t, reply.Error, "nil map write")

	// The loop survived the panic.
	h.send(&protocol.Message{Type: protocol.TypeUnloadIntegration, EntryID: "ghost"})
	assert.Equal(t, protocol.TypeUnloadComplete, h.recv().Type)
}

func TestCoordinatorLifecycle(t *testing.T) {
	var fail bool
	reg := plugin.NewRegistry(t.TempDir(), nil)
	require.NoError(t, reg.Register("weather", &scriptedIntegration{
		setup: func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
			c := host.NewCoordinator(coordinator.Options{
				Name:     "weather",
				Interval: 30 * time.Minute,
				Update: func(ctx context.Context) (any, error) {
					if fail {
						return nil, errors.New("fetch exploded")
					}
					return "snapshot", nil
				},
			})
			return c.FirstRefresh(ctx)
		},
	}))
	h := newHarness(t, reg)

	h.send(&protocol.Message{Type: protocol.TypeSetupIntegration, EntryID: "e1", Domain: "weather"})

	sched := h.recv()
	require.Equal(t, protocol.TypeScheduleUpdate, sched.Type)
	assert.Equal(t, "e1", sched.EntryID)
	assert.True(t, strings.HasPrefix(sched.TimerID, "weather_"))
	assert.EqualValues(t, 1800, sched.IntervalSeconds)

	done := h.recv()
	require.Equal(t, protocol.TypeSetupComplete, done.Type)

	// Host fires the timer; the refresh succeeds.
	h.send(&protocol.Message{Type: protocol.TypeTriggerUpdate, TimerID: sched.TimerID})
	upd := h.recv()
	require.Equal(t, protocol.TypeUpdateComplete, upd.Type)
	assert.Equal(t, sched.TimerID, upd.TimerID)
	require.NotNil(t, upd.Success)
	assert.True(t, *upd.Success)

	// A failing refresh is reported, never escalated.
	fail = true
	h.send(&protocol.Message{Type: protocol.TypeTriggerUpdate, TimerID: sched.TimerID})
	upd = h.recv()
	require.NotNil(t, upd.Success)
	assert.False(t, *upd.Success)
	assert.Contains(t, upd.Error, "fetch exploded")

	// Unload cancels the timer and confirms.
	h.send(&protocol.Message{Type: protocol.TypeUnloadIntegration, EntryID: "e1"})
	cancel := h.recv()
	assert.Equal(t, protocol.TypeCancelTimer, cancel.Type)
	assert.Equal(t, sched.TimerID, cancel.TimerID)
	assert.Equal(t, protocol.TypeUnloadComplete, h.recv().Type)

	// A stale firing after cancellation reports failure.
	h.send(&protocol.Message{Type: protocol.TypeTriggerUpdate, TimerID: sched.TimerID})
	upd = h.recv()
	require.NotNil(t, upd.Success)
	assert.False(t, *upd.Success)
	assert.Equal(t, "unknown timer", upd.Error)
}

func TestTriggerUnknownTimer(t *testing.T) {
	h := newHarness(t, plugin.NewRegistry(t.TempDir(), nil))

	h.send(&protocol.Message{Type: protocol.TypeTriggerUpdate, TimerID: "weather_nope"})

	upd := h.recv()
	assert.Equal(t, protocol.TypeUpdateComplete, upd.Type)
	require.NotNil(t, upd.Success)
	assert.False(t, *upd.Success)
}

// TestProxiedFetchDuringSetup exercises the split concurrency model: the
// dispatcher suspends inside SetupEntry on a proxied call while the reader
// keeps draining the channel and resolves the response inline.
func TestProxiedFetchDuringSetup(t *testing.T) {
	reg := plugin.NewRegistry(t.TempDir(), nil)
	var body string
	require.NoError(t, reg.Register("weather", &scriptedIntegration{
		setup: func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
			resp, err := host.HTTP().Get(ctx, "https://api.example.test/forecast", nil)
			if err != nil {
				return err
			}
			body = resp.Text()
			return nil
		},
	}))
	h := newHarness(t, reg)

	h.send(&protocol.Message{Type: protocol.TypeSetupIntegration, EntryID: "e1", Domain: "weather"})

	req := h.recv()
	require.Equal(t, protocol.TypeHTTPRequest, req.Type)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "https://api.example.test/forecast", req.URL)
	require.NotEmpty(t, req.RequestID)

	h.send(&protocol.Message{
		Type:      protocol.TypeHTTPResponse,
		RequestID: req.RequestID,
		Status:    200,
		Body:      protocol.ByteBody(`{"temp":21}`),
	})

	done := h.recv()
	assert.Equal(t, protocol.TypeSetupComplete, done.Type)
	assert.Equal(t, `{"temp":21}`, body)
}

func TestHostErrorResponseFailsSetup(t *testing.T) {
	reg := plugin.NewRegistry(t.TempDir(), nil)
	require.NoError(t, reg.Register("weather", &scriptedIntegration{
		setup: func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
			_, err := host.HTTP().Get(ctx, "https://api.example.test/forecast", nil)
			return err
		},
	}))
	h := newHarness(t, reg)

	h.send(&protocol.Message{Type: protocol.TypeSetupIntegration, EntryID: "e1", Domain: "weather"})

	req := h.recv()
	h.send(&protocol.Message{
		Type:      protocol.TypeHTTPResponse,
		RequestID: req.RequestID,
		Error:     "dns lookup failed",
	})

	reply := h.recv()
	assert.Equal(t, protocol.TypeSetupFailed, reply.Type)
	assert.Equal(t, protocol.ErrUnknown, reply.ErrorType)
	assert.Contains(t, reply.Error, "dns lookup failed")
}

func TestUnloadRunsPluginHook(t *testing.T) {
	var unloaded bool
	reg := plugin.NewRegistry(t.TempDir(), nil)
	require.NoError(t, reg.Register("weather", &scriptedIntegration{
		setup: func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error { return nil },
		unload: func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
			unloaded = true
			return nil
		},
	}))
	h := newHarness(t, reg)

	h.send(&protocol.Message{Type: protocol.TypeSetupIntegration, EntryID: "e1", Domain: "weather"})
	require.Equal(t, protocol.TypeSetupComplete, h.recv().Type)

	h.send(&protocol.Message{Type: protocol.TypeUnloadIntegration, EntryID: "e1"})
	assert.Equal(t, protocol.TypeUnloadComplete, h.recv().Type)
	assert.True(t, unloaded)
}

func TestPeerCloseExitsCleanly(t *testing.T) {
	h := newHarness(t, plugin.NewRegistry(t.TempDir(), nil))

	h.host.Close()
	assert.NoError(t, h.waitExit())
}

func TestShutdownCommandExitsCleanly(t *testing.T) {
	var unloaded bool
	reg := plugin.NewRegistry(t.TempDir(), nil)
	require.NoError(t, reg.Register("weather", &scriptedIntegration{
		setup: func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error { return nil },
		unload: func(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
			unloaded = true
			return nil
		},
	}))
	h := newHarness(t, reg)

	h.send(&protocol.Message{Type: protocol.TypeSetupIntegration, EntryID: "e1", Domain: "weather"})
	require.Equal(t, protocol.TypeSetupComplete, h.recv().Type)

	h.send(&protocol.Message{Type: protocol.TypeShutdown})
	assert.NoError(t, h.waitExit())
	assert.True(t, unloaded)
}

func TestMalformedFrameIsFatal(t *testing.T) {
	sandboxEnd, hostEnd := net.Pipe()
	r := New(transport.New(sandboxEnd, nil), plugin.NewRegistry(t.TempDir(), nil), config.Default().Proxy, logging.NewNop(), nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	host := transport.New(hostEnd, nil)
	msg, err := host.Receive()
	require.NoError(t, err)
	require.Equal(t, protocol.TypeReady, msg.Type)

	_, err = hostEnd.Write([]byte("this is not json\n"))
	require.NoError(t, err)

	select {
	case err := <-done:
		var perr *transport.ProtocolError
		assert.ErrorAs(t, err, &perr)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not exit on malformed frame")
	}
	host.Close()
}

func TestUnknownMessageIgnored(t *testing.T) {
	h := newHarness(t, plugin.NewRegistry(t.TempDir(), nil))

	h.send(&protocol.Message{Type: "hologram_calibrate"})

	// Still responsive afterwards.
	h.send(&protocol.Message{Type: protocol.TypeUnloadIntegration, EntryID: "ghost"})
	assert.Equal(t, protocol.TypeUnloadComplete, h.recv().Type)
}
