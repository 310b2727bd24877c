// Package statistics is a built-in sensor integration: a coordinator
// periodically fetches a numeric sample series through the proxied HTTP
// client and publishes aggregate statistics as one sensor entity.
package statistics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/hearthd/sandboxd/internal/coordinator"
	"github.com/hearthd/sandboxd/internal/plugin"
)

// Domain is the integration's registry name.
const Domain = "statistics"

// Platform is the platform entities are forwarded to.
const Platform = "sensor"

// DefaultInterval is the refresh cadence when the entry configures none.
const DefaultInterval = 5 * time.Minute

// Summary is one coordinator snapshot of sample aggregates.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Integration implements the statistics domain.
type Integration struct{}

// SetupEntry validates the source URL, fetches the first sample set, and
// registers the sensor entity.
func (Integration) SetupEntry(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
	url, _ := entry.Config["url"].(string)
	if url == "" {
		return fmt.Errorf("%w: missing source url", plugin.ErrRefused)
	}
	name, _ := entry.Config["name"].(string)
	if name == "" {
		name = "Statistics"
	}
	interval := DefaultInterval
	if secs, ok := entry.Config["interval_seconds"].(float64); ok && secs > 0 {
		interval = time.Duration(secs) * time.Second
	}

	coord := host.NewCoordinator(coordinator.Options{
		Name:     Domain,
		Interval: interval,
		Update: func(ctx context.Context) (any, error) {
			return fetchSummary(ctx, host, url)
		},
	})
	if err := coord.FirstRefresh(ctx); err != nil {
		return fmt.Errorf("%w: initial sample fetch: %v", plugin.ErrRefused, err)
	}

	ent := &entity{uniqueID: entry.ID, name: name, coord: coord}
	if err := host.AddEntities(Platform, ent); err != nil {
		return err
	}

	entityID := Platform + "." + ent.uniqueID
	coord.AddListener(func() {
		state, attrs := ent.State()
		if err := host.UpdateState(entityID, state, attrs); err != nil {
			host.Logger().Warn("state push failed",
				zap.String("entity_id", entityID), zap.Error(err))
		}
	})
	return nil
}

func fetchSummary(ctx context.Context, host plugin.Host, url string) (*Summary, error) {
	resp, err := host.HTTP().Get(ctx, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}
	if resp.Status != 200 {
		return nil, fmt.Errorf("statistics: upstream returned status %d", resp.Status)
	}
	samples, err := parseSamples(resp.Bytes())
	if err != nil {
		return nil, err
	}
	return summarize(samples)
}

// parseSamples accepts either a bare JSON number array or an object with a
// "samples" array.
func parseSamples(raw []byte) ([]float64, error) {
	var samples []float64
	if err := sonic.Unmarshal(raw, &samples); err == nil {
		return samples, nil
	}

	var wrapped struct {
		Samples []float64 `json:"samples"`
	}
	if err := sonic.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("statistics: parse samples: %w", err)
	}
	return wrapped.Samples, nil
}

func summarize(samples []float64) (*Summary, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("statistics: sample set is empty")
	}

	s := &Summary{
		Count: len(samples),
		Mean:  stat.Mean(samples, nil),
		Min:   floats.Min(samples),
		Max:   floats.Max(samples),
	}
	if len(samples) > 1 {
		s.StdDev = stat.StdDev(samples, nil)
	}
	return s, nil
}

// entity is the single sensor entity of one entry. Its state is the mean;
// the remaining aggregates travel in attributes.
type entity struct {
	uniqueID string
	name     string
	coord    *coordinator.Coordinator
}

func (e *entity) UniqueID() string    { return e.uniqueID }
func (e *entity) Name() string        { return e.name }
func (e *entity) DeviceClass() string { return "measurement" }

func (e *entity) State() (string, map[string]any) {
	s, ok := e.coord.Data().(*Summary)
	if !ok || s == nil {
		return "unavailable", nil
	}
	return strconv.FormatFloat(s.Mean, 'f', -1, 64), map[string]any{
		"sample_count":       s.Count,
		"mean":               s.Mean,
		"standard_deviation": s.StdDev,
		"min_value":          s.Min,
		"max_value":          s.Max,
	}
}
