package main

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AppState is the single owner of client-side view state. All mutations go through its methods.
type AppState struct {
	conversations *ConversationStore
	reminders     *ReminderStore
	settingsStore *SettingsStore
	now           func() time.Time
	logger        *zap.Logger

	mu           sync.RWMutex
	selectedDate string
	settings     Settings
	location     *Location
	loading      bool
	liveState    SessionState
	userLive     string
	aiLive       string
	weather      *WeatherData
	settingsSubs []func(Settings)
}

// NewAppState loads the settings and selects today. now defaults to time.Now.
func NewAppState(conversations *ConversationStore, reminders *ReminderStore, settingsStore *SettingsStore, now func() time.Time, logger *zap.Logger) (*AppState, error) {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	settings, err := settingsStore.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	s := &AppState{
		conversations: conversations,
		reminders:     reminders,
		settingsStore: settingsStore,
		now:           now,
		logger:        logger,
		settings:      settings,
	}
	if err := s.SelectDate(s.Today()); err != nil {
		return nil, err
	}
	return s, nil
}

// Today returns today's date key in local time.
func (s *AppState) Today() string {
	return s.now().Format(DateLayout)
}

// SelectedDate returns the date being viewed.
func (s *AppState) SelectedDate() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedDate
}

// SelectDate switches the viewed date and seeds it with a welcome message if it is empty.
func (s *AppState) SelectDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}

	s.mu.Lock()
	s.selectedDate = date
	lang := s.settings.Language
	s.mu.Unlock()

	if _, err := s.conversations.EnsureWelcome(date, Translate(lang, "welcomeMessage")); err != nil {
		return err
	}
	s.logger.Debug("selected date", zap.String("date", date))
	return nil
}

// Settings returns the cached settings.
func (s *AppState) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SaveSettings validates and persists settings. A language change re-runs the welcome check on
// the viewed date; days that already hold messages keep them.
func (s *AppState) SaveSettings(settings Settings) error {
	if err := s.settingsStore.Save(settings); err != nil {
		return err
	}

	s.mu.Lock()
	languageChanged := s.settings.Language != settings.Language
	s.settings = settings
	date := s.selectedDate
	s.mu.Unlock()

	if languageChanged {
		if _, err := s.conversations.EnsureWelcome(date, Translate(settings.Language, "welcomeMessage")); err != nil {
			return err
		}
	}

	s.mu.RLock()
	subs := append([]func(Settings){}, s.settingsSubs...)
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(settings)
	}
	return nil
}

// OnSettingsSaved registers fn to run after every successful SaveSettings.
func (s *AppState) OnSettingsSaved(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settingsSubs = append(s.settingsSubs, fn)
}

// Language returns the active UI language.
func (s *AppState) Language() Language {
	return s.Settings().Language
}

// Translate looks key up in the active language.
func (s *AppState) Translate(key string) string {
	return Translate(s.Language(), key)
}

// SetLocation records the user's position; nil clears it.
func (s *AppState) SetLocation(loc *Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = loc
}

// Location returns the known position, or nil.
func (s *AppState) Location() *Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location
}

// BeginSend sets the loading flag. It returns false when a send is already in flight.
func (s *AppState) BeginSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return false
	}
	s.loading = true
	return true
}

// EndSend clears the loading flag.
func (s *AppState) EndSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
}

// Loading reports whether a send is in flight.
func (s *AppState) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetWeather records the latest weather reading.
func (s *AppState) SetWeather(w *WeatherData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weather = w
}

// Weather returns the latest weather reading, or nil.
func (s *AppState) Weather() *WeatherData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weather
}

// OnState mirrors the live session state.
func (s *AppState) OnState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveState = state
	if state == StateClosed {
		s.userLive, s.aiLive = "", ""
	}
}

// OnTranscript mirrors the live session transcripts.
func (s *AppState) OnTranscript(user, ai string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLive, s.aiLive = user, ai
}

// LiveTranscripts returns the transient live transcripts.
func (s *AppState) LiveTranscripts() (user, ai string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userLive, s.aiLive
}

// LiveState returns the last observed live session state.
func (s *AppState) LiveState() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveState
}

// CalendarDates returns every date with messages or reminders plus today, newest first.
func (s *AppState) CalendarDates() ([]string, error) {
	seen := map[string]bool{s.Today(): true}

	messageDates, err := s.conversations.Dates()
	if err != nil {
		return nil, err
	}
	reminderDates, err := s.reminders.Dates()
	if err != nil {
		return nil, err
	}
	for _, d := range messageDates {
		seen[d] = true
	}
	for _, d := range reminderDates {
		seen[d] = true
	}

	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// FormatDate renders a date key as Today, Yesterday or a long localized date.
func (s *AppState) FormatDate(date string) string {
	lang := s.Language()
	now := s.now()
	if date == now.Format(DateLayout) {
		return Translate(lang, "today")
	}
	if date == now.AddDate(0, 0, -1).Format(DateLayout) {
		return Translate(lang, "yesterday")
	}
	t, err := time.ParseInLocation(DateLayout, date, now.Location())
	if err != nil {
		return date
	}
	return FormatLongDate(lang, t)
}
