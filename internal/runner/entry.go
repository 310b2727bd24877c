package runner

import (
	"github.com/hearthd/sandboxd/internal/coordinator"
	"github.com/hearthd/sandboxd/internal/plugin"
	"github.com/hearthd/sandboxd/internal/shared/id"
)

// EntryState is the lifecycle state of one configured entry inside the
// sandbox.
type EntryState int

// Entry lifecycle states. ErrorDuringSetup is terminal: a failed entry is
// never retried in-process — the host decides whether to issue a fresh
// setup_integration.
const (
	EntryCreated EntryState = iota
	EntryImporting
	EntryConfigured
	EntryRunning
	EntryUnloading
	EntryUnloaded
	EntryErrorDuringSetup
)

func (s EntryState) String() string {
	switch s {
	case EntryCreated:
		return "created"
	case EntryImporting:
		return "importing"
	case EntryConfigured:
		return "configured"
	case EntryRunning:
		return "running"
	case EntryUnloading:
		return "unloading"
	case EntryUnloaded:
		return "unloaded"
	case EntryErrorDuringSetup:
		return "error_during_setup"
	default:
		return "unknown"
	}
}

// entryRecord tracks one entry's state and everything registered on its
// behalf, so unload can tear it all down. Owned by the dispatcher goroutine.
type entryRecord struct {
	entry       *plugin.Entry
	integration plugin.Integration
	state       EntryState

	// platforms holds forwarding targets in first-forward order.
	platforms    []string
	coordinators []*coordinator.Coordinator
	timerIDs     []id.TimerID
}

func (rec *entryRecord) addPlatform(platform string) {
	for _, p := range rec.platforms {
		if p == platform {
			return
		}
	}
	rec.platforms = append(rec.platforms, platform)
}
