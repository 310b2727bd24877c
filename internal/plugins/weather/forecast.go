package weather

import (
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"
)

// Observation is the current-conditions snapshot published as entity
// attributes. Field names match what the host engine reads.
type Observation struct {
	Condition     string   `json:"condition,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	Pressure      *float64 `json:"pressure,omitempty"`
	WindSpeed     *float64 `json:"wind_speed,omitempty"`
	WindBearing   *float64 `json:"wind_bearing,omitempty"`
	WindGust      *float64 `json:"wind_gust,omitempty"`
	CloudCoverage *float64 `json:"cloud_coverage,omitempty"`
	DewPoint      *float64 `json:"dew_point,omitempty"`
	UVIndex       *float64 `json:"uv_index,omitempty"`
}

// Forecast is one forecast slot, hourly or daily.
type Forecast struct {
	Datetime      string   `json:"datetime"`
	Condition     string   `json:"condition,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TempLow       *float64 `json:"templow,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	Precipitation *float64 `json:"precipitation,omitempty"`
	WindSpeed     *float64 `json:"wind_speed,omitempty"`
	WindBearing   *float64 `json:"wind_bearing,omitempty"`
	CloudCoverage *float64 `json:"cloud_coverage,omitempty"`
}

// Data is one coordinator snapshot.
type Data struct {
	Current Observation
	Hourly  []Forecast
	Daily   []Forecast
}

// locationforecast mirrors the upstream compact-format document, limited
// to the fields consumed here.
type locationforecast struct {
	Properties struct {
		Timeseries []struct {
			Time string `json:"time"`
			Data struct {
				Instant struct {
					Details instantDetails `json:"details"`
				} `json:"instant"`
				Next1Hours *periodSummary `json:"next_1_hours"`
				Next6Hours *periodSummary `json:"next_6_hours"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

type instantDetails struct {
	AirTemperature        *float64 `json:"air_temperature"`
	AirPressureAtSeaLevel *float64 `json:"air_pressure_at_sea_level"`
	RelativeHumidity      *float64 `json:"relative_humidity"`
	WindSpeed             *float64 `json:"wind_speed"`
	WindSpeedOfGust       *float64 `json:"wind_speed_of_gust"`
	WindFromDirection     *float64 `json:"wind_from_direction"`
	CloudAreaFraction     *float64 `json:"cloud_area_fraction"`
	DewPointTemperature   *float64 `json:"dew_point_temperature"`
	UltravioletIndex      *float64 `json:"ultraviolet_index_clear_sky"`
}

type periodSummary struct {
	Summary struct {
		SymbolCode string `json:"symbol_code"`
	} `json:"summary"`
	Details struct {
		PrecipitationAmount *float64 `json:"precipitation_amount"`
		AirTemperatureMax   *float64 `json:"air_temperature_max"`
		AirTemperatureMin   *float64 `json:"air_temperature_min"`
	} `json:"details"`
}

// parseForecast decodes an upstream compact-format document into a
// snapshot: current conditions from the first timeseries entry, hourly
// slots from next_1_hours, and daily slots aggregated from the midday
// next_6_hours periods.
func parseForecast(raw []byte) (*Data, error) {
	var doc locationforecast
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("weather: parse forecast: %w", err)
	}
	series := doc.Properties.Timeseries
	if len(series) == 0 {
		return nil, fmt.Errorf("weather: forecast document has no timeseries")
	}

	data := &Data{}

	now := series[0]
	d := now.Data.Instant.Details
	data.Current = Observation{
		Temperature:   d.AirTemperature,
		Humidity:      d.RelativeHumidity,
		Pressure:      d.AirPressureAtSeaLevel,
		WindSpeed:     d.WindSpeed,
		WindGust:      d.WindSpeedOfGust,
		WindBearing:   d.WindFromDirection,
		CloudCoverage: d.CloudAreaFraction,
		DewPoint:      d.DewPointTemperature,
		UVIndex:       d.UltravioletIndex,
	}
	if now.Data.Next1Hours != nil {
		data.Current.Condition = conditionFromSymbol(now.Data.Next1Hours.Summary.SymbolCode)
	} else if now.Data.Next6Hours != nil {
		data.Current.Condition = conditionFromSymbol(now.Data.Next6Hours.Summary.SymbolCode)
	}

	daily := make(map[string]*Forecast)
	for _, ts := range series {
		at, err := time.Parse(time.RFC3339, ts.Time)
		if err != nil {
			continue
		}
		det := ts.Data.Instant.Details

		if p := ts.Data.Next1Hours; p != nil {
			data.Hourly = append(data.Hourly, Forecast{
				Datetime:      ts.Time,
				Condition:     conditionFromSymbol(p.Summary.SymbolCode),
				Temperature:   det.AirTemperature,
				Humidity:      det.RelativeHumidity,
				Precipitation: p.Details.PrecipitationAmount,
				WindSpeed:     det.WindSpeed,
				WindBearing:   det.WindFromDirection,
				CloudCoverage: det.CloudAreaFraction,
			})
		}

		// One daily slot per calendar day, anchored at the midday period.
		if p := ts.Data.Next6Hours; p != nil && at.UTC().Hour() == 12 {
			day := at.UTC().Format("2006-01-02")
			if _, seen := daily[day]; !seen {
				daily[day] = &Forecast{
					Datetime:      ts.Time,
					Condition:     conditionFromSymbol(p.Summary.SymbolCode),
					Temperature:   p.Details.AirTemperatureMax,
					TempLow:       p.Details.AirTemperatureMin,
					Precipitation: p.Details.PrecipitationAmount,
					WindSpeed:     det.WindSpeed,
					WindBearing:   det.WindFromDirection,
				}
			}
		}
	}

	days := make([]string, 0, len(daily))
	for day := range daily {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		data.Daily = append(data.Daily, *daily[day])
	}

	return data, nil
}
