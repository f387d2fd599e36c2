package main

import (
	"context"
	"errors"
	"testing"
)

func TestFormatTemperature(t *testing.T) {
	tests := []struct {
		celsius float64
		unit    TempUnit
		want    string
	}{
		{25, Celsius, "25°C"},
		{25, Fahrenheit, "77°F"},
		{-40, Fahrenheit, "-40°F"},
		{21.5, Celsius, "22°C"},
		{-2.5, Celsius, "-2°C"},
		{0, Fahrenheit, "32°F"},
	}
	for _, tt := range tests {
		if got := FormatTemperature(tt.celsius, tt.unit); got != tt.want {
			t.Errorf("FormatTemperature(%v, %s) = %q, want %q", tt.celsius, tt.unit, got, tt.want)
		}
	}
}

func TestWeatherReporterRefresh(t *testing.T) {
	state := newTestAppState(t, &fakeClock{now: testNow})
	remote := &fakeRemote{weather: &WeatherData{Condition: "sunny", Temperature: 25}}
	w := NewWeatherReporter(remote, state, nil)

	if got := w.Refresh(context.Background()); got != nil {
		t.Fatalf("Refresh without location = %+v, want nil", got)
	}

	state.SetLocation(&Location{Latitude: 41, Longitude: 29})
	got := w.Refresh(context.Background())
	if got == nil || state.Weather() != got {
		t.Fatalf("Refresh = %+v, state = %+v", got, state.Weather())
	}
	if d := w.Describe(got); d != "sunny, 25°C" {
		t.Fatalf("Describe = %q", d)
	}

	// Failures keep the last reading.
	remote.weather, remote.weatherErr = nil, errors.New("offline")
	if w.Refresh(context.Background()) != nil || state.Weather() != got {
		t.Fatal("failed refresh replaced the last reading")
	}
}
