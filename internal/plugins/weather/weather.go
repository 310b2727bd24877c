// Package weather is the built-in weather integration. One entry tracks
// one location: a coordinator periodically fetches the upstream compact
// forecast through the proxied HTTP client and publishes current
// conditions plus daily and hourly forecasts as entity attributes.
package weather

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hearthd/sandboxd/internal/coordinator"
	"github.com/hearthd/sandboxd/internal/plugin"
)

// Domain is the integration's registry name.
const Domain = "weather"

// Platform is the single platform entities are forwarded to.
const Platform = "weather"

// DefaultEndpoint is the upstream compact-forecast API.
const DefaultEndpoint = "https://api.met.no/weatherapi/locationforecast/2.0/compact"

// DefaultIntervalSeconds is the refresh cadence registered with the host.
const DefaultIntervalSeconds = 1800

// Forecast capability bitmask.
const (
	FeatureForecastDaily      uint64 = 1
	FeatureForecastHourly     uint64 = 2
	FeatureForecastTwiceDaily uint64 = 4
)

const userAgent = "sandboxd-weather/1.0"

// Config is the per-entry configuration, decoded from the setup payload.
type Config struct {
	Latitude  float64
	Longitude float64
	Name      string
	Endpoint  string
}

func configFromEntry(entry *plugin.Entry) (Config, error) {
	cfg := Config{Name: "Weather", Endpoint: DefaultEndpoint}

	lat, ok := floatValue(entry.Config["latitude"])
	if !ok {
		return cfg, fmt.Errorf("missing or invalid latitude")
	}
	lon, ok := floatValue(entry.Config["longitude"])
	if !ok {
		return cfg, fmt.Errorf("missing or invalid longitude")
	}
	cfg.Latitude, cfg.Longitude = lat, lon

	if name, ok := entry.Config["name"].(string); ok && name != "" {
		cfg.Name = name
	}
	if url, ok := entry.Config["url"].(string); ok && url != "" {
		cfg.Endpoint = url
	}
	return cfg, nil
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Integration implements the weather domain.
type Integration struct{}

// SetupEntry validates the location, performs the first forecast fetch,
// and registers the weather entity. An invalid config or a failed first
// fetch is a refusal; the host decides whether to retry the entry.
func (Integration) SetupEntry(ctx context.Context, host plugin.Host, entry *plugin.Entry) error {
	cfg, err := configFromEntry(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", plugin.ErrRefused, err)
	}

	url := fmt.Sprintf("%s?lat=%.4f&lon=%.4f", cfg.Endpoint, cfg.Latitude, cfg.Longitude)
	coord := host.NewCoordinator(coordinator.Options{
		Name:     Domain,
		Interval: DefaultIntervalSeconds * time.Second,
		Update: func(ctx context.Context) (any, error) {
			return fetchForecast(ctx, host, url)
		},
	})

	if err := coord.FirstRefresh(ctx); err != nil {
		return fmt.Errorf("%w: initial forecast fetch: %v", plugin.ErrRefused, err)
	}

	ent := &entity{
		uniqueID: entry.ID,
		name:     cfg.Name,
		coord:    coord,
	}
	if err := host.AddEntities(Platform, ent); err != nil {
		return err
	}

	// Push refreshed conditions to the host after every successful update.
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

func fetchForecast(ctx context.Context, host plugin.Host, url string) (*Data, error) {
	resp, err := host.HTTP().Get(ctx, url, map[string]string{
		"User-Agent": userAgent,
		"Accept":     "application/json",
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != 200 {
		return nil, fmt.Errorf("weather: upstream returned status %d", resp.Status)
	}
	return parseForecast(resp.Bytes())
}

// entity is the single weather entity of one entry.
type entity struct {
	uniqueID string
	name     string
	coord    *coordinator.Coordinator
}

func (e *entity) UniqueID() string { return e.uniqueID }
func (e *entity) Name() string     { return e.name }

func (e *entity) SupportedFeatures() uint64 {
	return FeatureForecastDaily | FeatureForecastHourly
}

// State renders the latest snapshot. The condition doubles as the entity
// state; everything else travels in attributes.
func (e *entity) State() (string, map[string]any) {
	data, ok := e.coord.Data().(*Data)
	if !ok || data == nil {
		return "unavailable", nil
	}

	state := data.Current.Condition
	if state == "" {
		state = "unknown"
	}

	attrs := make(map[string]any)
	cur := data.Current
	putFloat(attrs, "temperature", cur.Temperature)
	putFloat(attrs, "humidity", cur.Humidity)
	putFloat(attrs, "pressure", cur.Pressure)
	putFloat(attrs, "wind_speed", cur.WindSpeed)
	putFloat(attrs, "wind_bearing", cur.WindBearing)
	putFloat(attrs, "wind_gust", cur.WindGust)
	putFloat(attrs, "cloud_coverage", cur.CloudCoverage)
	putFloat(attrs, "dew_point", cur.DewPoint)
	putFloat(attrs, "uv_index", cur.UVIndex)
	if cur.Condition != "" {
		attrs["condition"] = cur.Condition
	}
	attrs["forecast_daily"] = data.Daily
	attrs["forecast_hourly"] = data.Hourly
	return state, attrs
}

func putFloat(attrs map[string]any, key string, v *float64) {
	if v != nil {
		attrs[key] = *v
	}
}
