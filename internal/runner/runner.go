package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hearthd/sandboxd/internal/config"
	"github.com/hearthd/sandboxd/internal/coordinator"
	"github.com/hearthd/sandboxd/internal/logging"
	"github.com/hearthd/sandboxd/internal/monitoring"
	"github.com/hearthd/sandboxd/internal/plugin"
	"github.com/hearthd/sandboxd/internal/protocol"
	"github.com/hearthd/sandboxd/internal/proxy"
	"github.com/hearthd/sandboxd/internal/shared/id"
	"github.com/hearthd/sandboxd/internal/transport"
)

// dispatchBuffer bounds queued lifecycle commands. The host operates in
// near-lockstep (one command, one reply), so the queue stays shallow; the
// buffer only absorbs bursts while a dispatch is suspended on a proxied call.
const dispatchBuffer = 64

// timerBinding routes a trigger_update firing to the coordinator that
// registered the timer.
type timerBinding struct {
	coord   *coordinator.Coordinator
	entryID string
}

// Runner owns the control channel, the correlation table, and the entry and
// timer tables. One Runner per sandbox process.
type Runner struct {
	tr       *transport.Transport
	table    *proxy.Table
	http     *proxy.Client
	registry *plugin.Registry
	log      *logging.Logger
	metrics  *monitoring.Metrics

	// entries and timers are owned by the dispatcher goroutine; see the
	// package comment.
	entries map[string]*entryRecord
	timers  map[id.TimerID]*timerBinding

	dispatch chan *protocol.Message

	// localClose marks an intentional channel close (signal-driven
	// shutdown) so the reader reports it as graceful, not as a failure.
	localClose atomic.Bool
}

// New creates a runner over a connected channel. Metrics may be nil.
func New(tr *transport.Transport, registry *plugin.Registry, proxyCfg config.ProxyConfig, log *logging.Logger, metrics *monitoring.Metrics) *Runner {
	if log == nil {
		log = logging.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	table := proxy.NewTable(log)
	client := proxy.NewClient(table, tr, proxy.Options{
		DefaultTimeout:    proxyCfg.DefaultTimeout(),
		RequestsPerSecond: proxyCfg.RequestsPerSecond,
		Burst:             proxyCfg.Burst,
	}, log, metrics)

	return &Runner{
		tr:       tr,
		table:    table,
		http:     client,
		registry: registry,
		log:      log.Named("runner"),
		metrics:  metrics,
		entries:  make(map[string]*entryRecord),
		timers:   make(map[id.TimerID]*timerBinding),
		dispatch: make(chan *protocol.Message, dispatchBuffer),
	}
}

// Run announces readiness and processes the channel until it closes. It
// returns nil on clean closure (peer EOF, shutdown command, or Shutdown)
// and the underlying error on a protocol violation.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("sandbox runner starting",
		zap.Strings("domains", r.registry.Domains()))

	if err := r.send(protocol.Ready()); err != nil {
		return fmt.Errorf("runner: announce ready: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.dispatchLoop(ctx)
	}()

	fatal := r.readLoop()

	// Teardown order matters: fail pending proxied calls first so a
	// dispatch suspended on one observes ErrChannelClosed and the
	// dispatcher can drain, then release the descriptor.
	r.table.Close()
	close(r.dispatch)
	<-done
	r.tr.Close()

	r.log.Info("sandbox runner stopped", zap.Bool("clean", fatal == nil))
	return fatal
}

// Shutdown closes the channel from our side. The read loop unblocks and
// Run returns nil.
func (r *Runner) Shutdown() {
	r.localClose.Store(true)
	r.tr.Close()
}

// readLoop is the single channel consumer. Correlated responses are
// resolved inline (fulfillment never blocks); lifecycle commands are
// queued for the dispatcher.
func (r *Runner) readLoop() error {
	for {
		msg, err := r.tr.Receive()
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || r.localClose.Load() {
				r.log.Info("control channel closed")
				return nil
			}
			var perr *transport.ProtocolError
			if errors.As(err, &perr) {
				r.log.Error("malformed frame, terminating",
					zap.ByteString("line", perr.Line),
					zap.Error(perr.Err))
				return err
			}
			r.log.Error("channel read failed", zap.Error(err))
			return err
		}

		r.metrics.MessagesReceived.WithLabelValues(string(msg.Type)).Inc()

		switch msg.Type {
		case protocol.TypeHTTPResponse:
			r.table.Fulfill(msg)
		case protocol.TypeAck:
			// Pure acknowledgment of a fire-and-forget message.
		case protocol.TypeError:
			r.log.Error("host reported error", zap.String("message", msg.Text))
		case protocol.TypeShutdown:
			r.log.Info("shutdown requested by host")
			r.dispatch <- msg
			return nil
		default:
			r.dispatch <- msg
		}
	}
}

// dispatchLoop processes lifecycle commands strictly one at a time in
// arrival order.
func (r *Runner) dispatchLoop(ctx context.Context) {
	for msg := range r.dispatch {
		switch msg.Type {
		case protocol.TypeSetupIntegration:
			r.handleSetup(ctx, msg)
		case protocol.TypeUnloadIntegration:
			r.handleUnload(ctx, msg)
		case protocol.TypeTriggerUpdate:
			r.handleTrigger(ctx, msg)
		case protocol.TypeShutdown:
			r.unloadAll(ctx)
		default:
			// Unknown types are ignored for forward compatibility.
			r.log.Warn("ignoring unrecognized message",
				zap.String("type", string(msg.Type)))
		}
	}
}

func (r *Runner) send(msg *protocol.Message) error {
	if err := r.tr.Send(msg); err != nil {
		return err
	}
	r.metrics.MessagesSent.WithLabelValues(string(msg.Type)).Inc()
	return nil
}

// sendReply sends a reply whose delivery failure cannot be reported to the
// host anyway; it is logged and swallowed.
func (r *Runner) sendReply(msg *protocol.Message) {
	if err := r.send(msg); err != nil && !errors.Is(err, transport.ErrClosed) {
		r.log.Error("failed to send reply",
			zap.String("type", string(msg.Type)),
			zap.Error(err))
	}
}

// unloadAll tears down every running entry, used on host-initiated
// shutdown. Unload confirmations are not sent; the host is past caring.
func (r *Runner) unloadAll(ctx context.Context) {
	for entryID, rec := range r.entries {
		r.log.Info("unloading entry on shutdown", zap.String("entry_id", entryID))
		r.teardownEntry(ctx, rec, false)
		delete(r.entries, entryID)
	}
}
