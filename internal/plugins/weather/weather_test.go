package weather

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthd/sandboxd/internal/coordinator"
	"github.com/hearthd/sandboxd/internal/plugin"
)

func emptyCoordinator() *coordinator.Coordinator {
	return coordinator.New(coordinator.Options{Name: Domain}, nil, nil, nil)
}

func TestConditionFromSymbol(t *testing.T) {
	cases := map[string]string{
		"clearsky_day":           ConditionSunny,
		"clearsky_night":         ConditionClearNight,
		"clearsky_polartwilight": ConditionClearNight,
		"fair_day":               ConditionPartlyCloudy,
		"partlycloudy_night":     ConditionPartlyCloudy,
		"cloudy":                 ConditionCloudy,
		"fog":                    ConditionFog,
		"lightrain":              ConditionRainy,
		"rainshowers_day":        ConditionRainy,
		"heavyrain":              ConditionPouring,
		"rainandthunder":         ConditionLightningRainy,
		"sleetshowers_day":       ConditionSnowyRainy,
		"heavysnow":              ConditionSnowy,
		"snowandthunder":         ConditionLightning,
		"volcanic_ash":           ConditionExceptional,
		"":                       "",
	}
	for code, want := range cases {
		assert.Equal(t, want, conditionFromSymbol(code), "symbol %q", code)
	}
}

const sampleForecast = `{
  "properties": {
    "timeseries": [
      {
        "time": "2026-08-27T09:00:00Z",
        "data": {
          "instant": {"details": {
            "air_temperature": 18.2,
            "relative_humidity": 71.0,
            "air_pressure_at_sea_level": 1014.5,
            "wind_speed": 3.4,
            "wind_from_direction": 220.0,
            "cloud_area_fraction": 45.0,
            "dew_point_temperature": 12.8
          }},
          "next_1_hours": {
            "summary": {"symbol_code": "partlycloudy_day"},
            "details": {"precipitation_amount": 0.0}
          }
        }
      },
      {
        "time": "2026-08-27T12:00:00Z",
        "data": {
          "instant": {"details": {"air_temperature": 20.1, "wind_speed": 4.0}},
          "next_1_hours": {
            "summary": {"symbol_code": "rain"},
            "details": {"precipitation_amount": 1.2}
          },
          "next_6_hours": {
            "summary": {"symbol_code": "rainshowers_day"},
            "details": {
              "precipitation_amount": 3.4,
              "air_temperature_max": 21.0,
              "air_temperature_min": 14.2
            }
          }
        }
      },
      {
        "time": "2026-08-28T12:00:00Z",
        "data": {
          "instant": {"details": {"air_temperature": 17.0}},
          "next_6_hours": {
            "summary": {"symbol_code": "clearsky_day"},
            "details": {
              "air_temperature_max": 19.5,
              "air_temperature_min": 11.0
            }
          }
        }
      }
    ]
  }
}`

func TestParseForecast(t *testing.T) {
	data, err := parseForecast([]byte(sampleForecast))
	require.NoError(t, err)

	assert.Equal(t, ConditionPartlyCloudy, data.Current.Condition)
	require.NotNil(t, data.Current.Temperature)
	assert.InDelta(t, 18.2, *data.Current.Temperature, 0.001)
	require.NotNil(t, data.Current.Pressure)
	assert.InDelta(t, 1014.5, *data.Current.Pressure, 0.001)

	require.Len(t, data.Hourly, 2)
	assert.Equal(t, "2026-08-27T09:00:00Z", data.Hourly[0].Datetime)
	assert.Equal(t, ConditionRainy, data.Hourly[1].Condition)
	require.NotNil(t, data.Hourly[1].Precipitation)
	assert.InDelta(t, 1.2, *data.Hourly[1].Precipitation, 0.001)

	require.Len(t, data.Daily, 2)
	assert.Equal(t, "2026-08-27T12:00:00Z", data.Daily[0].Datetime)
	assert.Equal(t, ConditionRainy, data.Daily[0].Condition)
	require.NotNil(t, data.Daily[0].Temperature)
	assert.InDelta(t, 21.0, *data.Daily[0].Temperature, 0.001)
	require.NotNil(t, data.Daily[0].TempLow)
	assert.InDelta(t, 14.2, *data.Daily[0].TempLow, 0.001)
	assert.Equal(t, ConditionSunny, data.Daily[1].Condition)
}

func TestParseForecastEmpty(t *testing.T) {
	_, err := parseForecast([]byte(`{"properties":{"timeseries":[]}}`))
	assert.Error(t, err)

	_, err = parseForecast([]byte(`not json`))
	assert.Error(t, err)
}

func TestConfigFromEntry(t *testing.T) {
	cfg, err := configFromEntry(&plugin.Entry{Config: map[string]any{
		"latitude":  52.52,
		"longitude": 13.405,
		"name":      "Berlin",
	}})
	require.NoError(t, err)
	assert.Equal(t, "Berlin", cfg.Name)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.InDelta(t, 52.52, cfg.Latitude, 0.001)

	_, err = configFromEntry(&plugin.Entry{Config: map[string]any{"latitude": 52.52}})
	assert.Error(t, err)

	_, err = configFromEntry(&plugin.Entry{Config: map[string]any{
		"latitude": "north", "longitude": 13.405,
	}})
	assert.Error(t, err)
}

func TestEntityStateWithoutData(t *testing.T) {
	e := &entity{uniqueID: "e1", name: "Weather", coord: emptyCoordinator()}
	state, attrs := e.State()
	assert.Equal(t, "unavailable", state)
	assert.Nil(t, attrs)
}

func TestEntityFeatures(t *testing.T) {
	e := &entity{}
	assert.Equal(t, FeatureForecastDaily|FeatureForecastHourly, e.SupportedFeatures())
}
