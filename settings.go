package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultSettings applies until the user saves their own.
var DefaultSettings = Settings{
	NotificationTime: "08:00",
	TempUnit:         Celsius,
	Theme:            ThemeDark,
	Language:         English,
}

// Validate checks every field against its allowed values.
func (s Settings) Validate() error {
	if _, err := time.Parse(NotificationLayout, s.NotificationTime); err != nil {
		return fmt.Errorf("invalid notification time %q: want HH:MM", s.NotificationTime)
	}
	switch s.TempUnit {
	case Celsius, Fahrenheit:
	default:
		return fmt.Errorf("invalid temperature unit %q", s.TempUnit)
	}
	switch s.Theme {
	case ThemeLight, ThemeDark, ThemeHighContrast:
	default:
		return fmt.Errorf("invalid theme %q", s.Theme)
	}
	switch s.Language {
	case English, Turkish:
	default:
		return fmt.Errorf("invalid language %q", s.Language)
	}
	return nil
}

// SettingsStore persists the singleton settings record.
type SettingsStore struct {
	cell   *Cell[Settings]
	logger *zap.Logger
}

// NewSettingsStore creates a settings store on top of the persisted store.
func NewSettingsStore(store *KVStore, logger *zap.Logger) *SettingsStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsStore{cell: NewCell[Settings](store, SettingsKey), logger: logger}
}

// Load returns the stored settings, or DefaultSettings when none were saved. Fields left
// empty by an older record fall back to their defaults.
func (ss *SettingsStore) Load() (Settings, error) {
	s, err := ss.cell.Get(DefaultSettings)
	if err != nil {
		return DefaultSettings, err
	}
	if s.NotificationTime == "" {
		s.NotificationTime = DefaultSettings.NotificationTime
	}
	if s.TempUnit == "" {
		s.TempUnit = DefaultSettings.TempUnit
	}
	if s.Theme == "" {
		s.Theme = DefaultSettings.Theme
	}
	if s.Language == "" {
		s.Language = DefaultSettings.Language
	}
	return s, nil
}

// Saved reports whether settings were ever saved.
func (ss *SettingsStore) Saved() (bool, error) {
	return ss.cell.Exists()
}

// Save validates and overwrites the stored settings.
func (ss *SettingsStore) Save(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := ss.cell.Set(s); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	ss.logger.Debug("saved settings", zap.Any("settings", s))
	return nil
}

// ApplySetting returns s with one field changed by its REPL/tool name.
func ApplySetting(s Settings, key, value string) (Settings, error) {
	switch key {
	case "language", "lang":
		s.Language = Language(value)
	case "theme":
		s.Theme = Theme(value)
	case "unit", "tempUnit", "temp_unit":
		s.TempUnit = TempUnit(value)
	case "notify", "notificationTime", "notification_time":
		s.NotificationTime = value
	default:
		return s, fmt.Errorf("unknown setting %q", key)
	}
	return s, s.Validate()
}
