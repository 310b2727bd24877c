package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hearthd/sandboxd/internal/plugin"
	"github.com/hearthd/sandboxd/internal/protocol"
	"github.com/hearthd/sandboxd/internal/shared/id"
)

// handleSetup drives one entry through Created → Importing → Configured →
// Running, answering with setup_complete or a classified setup_failed.
// Nothing a plugin does during setup can take the loop down: resolution
// failures, returned errors, and panics all land in setup_failed.
func (r *Runner) handleSetup(ctx context.Context, msg *protocol.Message) {
	log := r.log.With(
		zap.String("entry_id", msg.EntryID),
		zap.String("domain", msg.Domain))
	log.Info("setting up entry")

	if prev, exists := r.entries[msg.EntryID]; exists {
		// The host should unload before re-setup; recover by tearing the
		// stale instance down first.
		log.Warn("entry already present, replacing",
			zap.String("state", prev.state.String()))
		r.teardownEntry(ctx, prev, true)
		delete(r.entries, msg.EntryID)
		r.metrics.EntriesActive.Dec()
	}

	rec := &entryRecord{
		entry: &plugin.Entry{
			ID:     msg.EntryID,
			Domain: msg.Domain,
			Config: msg.Config,
		},
		state: EntryCreated,
	}

	rec.state = EntryImporting
	res := r.registry.Resolve(msg.Domain)
	if !res.OK() {
		rec.state = EntryErrorDuringSetup
		r.metrics.SetupFailures.WithLabelValues(string(res.Failure)).Inc()
		log.Warn("entry resolution failed",
			zap.String("error_type", string(res.Failure)),
			zap.String("detail", res.Detail))
		r.sendReply(protocol.SetupFailed(msg.EntryID, res.Failure, res.Detail, res.MissingPackage))
		return
	}
	rec.integration = res.Integration
	rec.state = EntryConfigured

	host := &entryHost{
		runner: r,
		rec:    rec,
		log:    log.Named(msg.Domain),
	}
	if err := r.runSetup(ctx, host, rec); err != nil {
		rec.state = EntryErrorDuringSetup
		kind := protocol.ErrUnknown
		if errors.Is(err, plugin.ErrRefused) {
			kind = protocol.ErrSetupFailed
		}
		r.metrics.SetupFailures.WithLabelValues(string(kind)).Inc()
		log.Warn("entry setup failed",
			zap.String("error_type", string(kind)),
			zap.Error(err))

		// Timers registered before the failure would otherwise fire into a
		// half-built entry.
		r.teardownEntry(ctx, rec, true)
		r.sendReply(protocol.SetupFailed(msg.EntryID, kind, err.Error(), ""))
		return
	}

	rec.state = EntryRunning
	r.entries[msg.EntryID] = rec
	r.metrics.EntriesActive.Inc()
	log.Info("entry running", zap.Strings("platforms", rec.platforms))
	r.sendReply(protocol.SetupComplete(msg.EntryID, rec.platforms))
}

// runSetup invokes the plugin entry point with panic containment. A panic
// surfaces as an ordinary error classified as unknown.
func (r *Runner) runSetup(ctx context.Context, host *entryHost, rec *entryRecord) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic during setup: %v", v)
		}
	}()
	return rec.integration.SetupEntry(ctx, host, rec.entry)
}

// handleUnload tears down one entry and always confirms, even for an entry
// the runner does not know: unload of an unknown entry is idempotent, not
// an error.
func (r *Runner) handleUnload(ctx context.Context, msg *protocol.Message) {
	log := r.log.With(zap.String("entry_id", msg.EntryID))

	rec, ok := r.entries[msg.EntryID]
	if !ok {
		log.Warn("unload for unknown entry")
		r.sendReply(protocol.UnloadComplete(msg.EntryID))
		return
	}

	log.Info("unloading entry")
	rec.state = EntryUnloading
	r.teardownEntry(ctx, rec, true)
	rec.state = EntryUnloaded

	delete(r.entries, msg.EntryID)
	r.metrics.EntriesActive.Dec()
	r.sendReply(protocol.UnloadComplete(msg.EntryID))
}

// teardownEntry cancels the entry's host-side timers and runs the plugin's
// optional unload hook. Plugin teardown failures are logged, never
// propagated: the entry is going away regardless. When notifyHost is
// false (process shutdown) cancel frames are skipped; the host is tearing
// the timers down itself.
func (r *Runner) teardownEntry(ctx context.Context, rec *entryRecord, notifyHost bool) {
	for _, timerID := range rec.timerIDs {
		delete(r.timers, timerID)
		if notifyHost {
			r.sendReply(protocol.CancelTimer(timerID.String()))
		}
	}
	rec.timerIDs = nil

	if u, ok := rec.integration.(plugin.Unloader); ok {
		host := &entryHost{runner: r, rec: rec, log: r.log.Named(rec.entry.Domain)}
		if err := r.runUnload(ctx, u, host, rec); err != nil {
			r.log.Warn("plugin unload hook failed",
				zap.String("entry_id", rec.entry.ID),
				zap.Error(err))
		}
	}
}

func (r *Runner) runUnload(ctx context.Context, u plugin.Unloader, host *entryHost, rec *entryRecord) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic during unload: %v", v)
		}
	}()
	return u.UnloadEntry(ctx, host, rec.entry)
}

// handleTrigger fires the coordinator bound to a timer and reports the
// outcome. A refresh failure is an update_complete with success false; the
// host owns retry timing through the next firing.
func (r *Runner) handleTrigger(ctx context.Context, msg *protocol.Message) {
	binding, ok := r.timers[id.TimerID(msg.TimerID)]
	if !ok {
		// Stale firing: the timer raced its own cancellation.
		r.log.Warn("trigger for unknown timer", zap.String("timer_id", msg.TimerID))
		r.sendReply(protocol.UpdateComplete(msg.TimerID, false, "unknown timer"))
		return
	}

	err := binding.coord.Refresh(ctx)
	if err != nil {
		r.sendReply(protocol.UpdateComplete(msg.TimerID, false, err.Error()))
		return
	}
	r.sendReply(protocol.UpdateComplete(msg.TimerID, true, ""))
}
