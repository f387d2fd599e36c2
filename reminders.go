package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyTitle is returned when a reminder has no title.
var ErrEmptyTitle = errors.New("reminder title is empty")

// ReminderStore holds calendar reminders bucketed by local date.
type ReminderStore struct {
	cell   *BucketCell[CalendarEvent]
	loc    *time.Location
	logger *zap.Logger
}

// NewReminderStore creates a reminder store. Date keys are computed in loc (time.Local when nil).
func NewReminderStore(store *KVStore, loc *time.Location, logger *zap.Logger) *ReminderStore {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderStore{
		cell:   NewBucketCell[CalendarEvent](store, EventsPrefix),
		loc:    loc,
		logger: logger,
	}
}

// ParseReminderTime accepts RFC 3339 or the local YYYY-MM-DDTHH:MM form.
func ParseReminderTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(LocalTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reminder time %q: want RFC 3339 or %s", s, LocalTimeLayout)
	}
	return t, nil
}

// Add stores a new reminder under its local calendar date.
func (rs *ReminderStore) Add(title, isoTime string) (CalendarEvent, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return CalendarEvent{}, ErrEmptyTitle
	}
	at, err := ParseReminderTime(isoTime, rs.loc)
	if err != nil {
		return CalendarEvent{}, err
	}

	event := CalendarEvent{
		ID:    uuid.NewString(),
		Title: title,
		Time:  at.UTC().Format(time.RFC3339),
	}
	date := at.In(rs.loc).Format(DateLayout)
	if err := rs.cell.Update(date, func(cur []CalendarEvent) ([]CalendarEvent, error) {
		return append(cur, event), nil
	}); err != nil {
		return CalendarEvent{}, fmt.Errorf("failed to add reminder: %w", err)
	}

	rs.logger.Debug("added reminder", zap.String("date", date), zap.String("id", event.ID))
	return event, nil
}

// Delete removes the reminder id from date. Unknown ids are ignored; an emptied date is pruned.
func (rs *ReminderStore) Delete(date, id string) error {
	err := rs.cell.Update(date, func(cur []CalendarEvent) ([]CalendarEvent, error) {
		kept := cur[:0:0]
		for _, e := range cur {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		return kept, nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete reminder %q: %w", id, err)
	}
	return nil
}

// ForDate returns the reminders of date.
func (rs *ReminderStore) ForDate(date string) ([]CalendarEvent, error) {
	return rs.cell.Get(date)
}

// ListAll returns every reminder keyed by date.
func (rs *ReminderStore) ListAll() (EventsByDate, error) {
	all, err := rs.cell.All()
	if err != nil {
		return nil, err
	}
	return EventsByDate(all), nil
}

// Dates returns every date holding reminders, ascending.
func (rs *ReminderStore) Dates() ([]string, error) {
	return rs.cell.Dates()
}

// Due returns reminders whose time falls in (from, to], ordered by time.
func (rs *ReminderStore) Due(from, to time.Time) ([]CalendarEvent, error) {
	if !to.After(from) {
		return nil, nil
	}

	type dueEvent struct {
		event CalendarEvent
		at    time.Time
	}
	var due []dueEvent
	for day := from.In(rs.loc); !day.After(to.In(rs.loc).Add(24 * time.Hour)); day = day.AddDate(0, 0, 1) {
		events, err := rs.cell.Get(day.Format(DateLayout))
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			at, err := time.Parse(time.RFC3339, e.Time)
			if err != nil {
				rs.logger.Warn("skipping reminder with bad time", zap.String("id", e.ID), zap.Error(err))
				continue
			}
			if at.After(from) && !at.After(to) {
				due = append(due, dueEvent{event: e, at: at})
			}
		}
	}

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	events := make([]CalendarEvent, len(due))
	for i, d := range due {
		events[i] = d.event
	}
	return events, nil
}
