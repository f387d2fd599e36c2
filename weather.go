package main

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// WeatherReporter fetches weather for the known location and records it in the app state.
type WeatherReporter struct {
	remote RemoteService
	state  *AppState
	logger *zap.Logger
}

// NewWeatherReporter creates a reporter.
func NewWeatherReporter(remote RemoteService, state *AppState, logger *zap.Logger) *WeatherReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherReporter{remote: remote, state: state, logger: logger}
}

// Refresh fetches the current weather. It is best-effort: without a location, or on any failure,
// it returns nil and leaves the last reading in place.
func (w *WeatherReporter) Refresh(ctx context.Context) *WeatherData {
	loc := w.state.Location()
	if loc == nil {
		w.logger.Debug("no location, skipping weather")
		return nil
	}
	data, err := w.remote.Weather(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		w.logger.Warn("weather request failed", zap.Error(err))
		return nil
	}
	if data == nil {
		return nil
	}
	w.state.SetWeather(data)
	return data
}

// Describe renders weather in the configured unit, e.g. "sunny, 25°C".
func (w *WeatherReporter) Describe(data *WeatherData) string {
	return fmt.Sprintf("%s, %s", data.Condition, FormatTemperature(data.Temperature, w.state.Settings().TempUnit))
}

// FormatTemperature renders celsius in unit, rounded to a whole degree (halves round up).
func FormatTemperature(celsius float64, unit TempUnit) string {
	if unit == Fahrenheit {
		return fmt.Sprintf("%d°F", int(math.Floor(celsius*9/5+32+0.5)))
	}
	return fmt.Sprintf("%d°C", int(math.Floor(celsius+0.5)))
}
