package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// NoticeKind classifies a transient notification.
type NoticeKind string

const (
	NoticeWeather  NoticeKind = "weather"
	NoticeReminder NoticeKind = "reminder"
)

// Notice is a transient notification. Notices are shown, never persisted.
type Notice struct {
	Kind NoticeKind
	Text string
	At   time.Time
}

// Notifier delivers notices to the active surface.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// DailySpec converts an HH:MM notification time to a cron spec.
func DailySpec(hhmm string) (string, error) {
	t, err := time.Parse(NotificationLayout, hhmm)
	if err != nil {
		return "", fmt.Errorf("invalid notification time %q: want HH:MM", hhmm)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

// Scheduler runs the daily weather notice and announces due reminders.
type Scheduler struct {
	state     *AppState
	reminders *ReminderStore
	weather   *WeatherReporter
	notifier  Notifier
	now       func() time.Time
	logger    *zap.Logger

	mu        sync.Mutex
	cron      *cron.Cron
	ctx       context.Context
	daily     cron.EntryID
	dailySpec string
	lastTick  time.Time
}

// NewScheduler creates a scheduler. now defaults to time.Now.
func NewScheduler(state *AppState, reminders *ReminderStore, weather *WeatherReporter, notifier Notifier, now func() time.Time, logger *zap.Logger) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		state:     state,
		reminders: reminders,
		weather:   weather,
		notifier:  notifier,
		now:       now,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start registers the jobs and starts the cron runner. Jobs stop when ctx is done or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.lastTick = s.now()
	s.mu.Unlock()

	if err := s.Reschedule(s.state.Settings().NotificationTime); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 1m", s.CheckReminders); err != nil {
		return fmt.Errorf("failed to register reminder check: %w", err)
	}
	s.state.OnSettingsSaved(func(settings Settings) {
		if err := s.Reschedule(settings.NotificationTime); err != nil {
			s.logger.Warn("failed to reschedule daily notice", zap.Error(err))
		}
	})

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("daily", s.DailySpec()))
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the cron runner and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Reschedule replaces the daily weather job. An unchanged time is a no-op.
func (s *Scheduler) Reschedule(hhmm string) error {
	spec, err := DailySpec(hhmm)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.dailySpec {
		return nil
	}
	id, err := s.cron.AddFunc(spec, s.RunDaily)
	if err != nil {
		return fmt.Errorf("failed to register daily notice: %w", err)
	}
	if s.daily != 0 {
		s.cron.Remove(s.daily)
	}
	s.daily, s.dailySpec = id, spec
	s.logger.Debug("daily notice scheduled", zap.String("spec", spec))
	return nil
}

// DailySpec returns the cron spec of the daily job.
func (s *Scheduler) DailySpec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailySpec
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// RunDaily announces the current weather. Without a location or a reading it only logs.
func (s *Scheduler) RunDaily() {
	data := s.weather.Refresh(s.jobContext())
	if data == nil {
		s.logger.Info("skipping daily weather notice")
		return
	}
	unit := s.state.Settings().TempUnit
	text := fmt.Sprintf(s.state.Translate("weatherNotice"), data.Condition, FormatTemperature(data.Temperature, unit))
	s.notifier.Notify(Notice{Kind: NoticeWeather, Text: text, At: s.now()})
}

// CheckReminders announces reminders due since the previous check.
func (s *Scheduler) CheckReminders() {
	now := s.now()
	s.mu.Lock()
	from := s.lastTick
	s.lastTick = now
	s.mu.Unlock()
	if from.IsZero() {
		return
	}

	due, err := s.reminders.Due(from, now)
	if err != nil {
		s.logger.Error("failed to read due reminders", zap.Error(err))
		return
	}
	for _, e := range due {
		at, _ := time.Parse(time.RFC3339, e.Time)
		text := fmt.Sprintf(s.state.Translate("reminderNotice"), e.Title, at.In(s.reminders.loc).Format(NotificationLayout))
		s.logger.Info("reminder due", zap.String("id", e.ID), zap.String("title", e.Title))
		s.notifier.Notify(Notice{Kind: NoticeReminder, Text: text, At: now})
	}
}
