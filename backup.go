package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// BackupFormatVersion is the version written into every backup.
const BackupFormatVersion = "1"

// Backup is a complete export of the user's data.
type Backup struct {
	Version       string         `json:"version"`
	ExportedAt    time.Time      `json:"exported_at"`
	Settings      *Settings      `json:"settings,omitempty"`
	Conversations MessagesByDate `json:"conversations"`
	Reminders     EventsByDate   `json:"reminders"`
}

// ImportResult counts what an import added.
type ImportResult struct {
	Messages  int  `json:"messages"`
	Reminders int  `json:"reminders"`
	Settings  bool `json:"settings"`
}

// Export snapshots settings, conversations and reminders.
func (a *App) Export() (*Backup, error) {
	conversations, err := a.conversations.All()
	if err != nil {
		return nil, fmt.Errorf("failed to export conversations: %w", err)
	}
	reminders, err := a.reminders.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to export reminders: %w", err)
	}
	settings := a.state.Settings()
	return &Backup{
		Version:       BackupFormatVersion,
		ExportedAt:    a.state.now().UTC(),
		Settings:      &settings,
		Conversations: conversations,
		Reminders:     reminders,
	}, nil
}

// WriteBackup exports the user's data as indented JSON.
func (a *App) WriteBackup(w io.Writer) error {
	backup, err := a.Export()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(backup); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// Import merges a backup into the stores. Messages and reminders whose id already exists on
// their date are skipped, so importing the same backup twice is a no-op.
func (a *App) Import(b *Backup) (ImportResult, error) {
	var res ImportResult
	if b.Version != BackupFormatVersion {
		return res, fmt.Errorf("unsupported backup version %q", b.Version)
	}
	for date, msgs := range b.Conversations {
		if !validDate(date) {
			return res, fmt.Errorf("invalid date %q in backup", date)
		}
		n, err := a.conversations.Merge(date, msgs)
		if err != nil {
			return res, err
		}
		res.Messages += n
	}
	for date, events := range b.Reminders {
		if !validDate(date) {
			return res, fmt.Errorf("invalid date %q in backup", date)
		}
		n, err := a.reminders.Merge(date, events)
		if err != nil {
			return res, err
		}
		res.Reminders += n
	}
	if b.Settings != nil {
		if err := a.state.SaveSettings(*b.Settings); err != nil {
			return res, err
		}
		res.Settings = true
	}
	a.logger.Info("imported backup",
		zap.Int("messages", res.Messages),
		zap.Int("reminders", res.Reminders),
		zap.Bool("settings", res.Settings))
	return res, nil
}

// ReadBackup decodes a backup and imports it.
func (a *App) ReadBackup(r io.Reader) (ImportResult, error) {
	var b Backup
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return ImportResult{}, fmt.Errorf("failed to decode backup: %w", err)
	}
	return a.Import(&b)
}

func validDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}

// Merge appends the messages of date whose ids are not stored yet and returns how many it added.
func (cs *ConversationStore) Merge(date string, msgs []Message) (int, error) {
	added := 0
	err := cs.cell.Update(date, func(cur []Message) ([]Message, error) {
		added = 0
		seen := make(map[string]bool, len(cur))
		for _, m := range cur {
			seen[m.ID] = true
		}
		for _, m := range msgs {
			if m.ID == "" || seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			cur = append(cur, m)
			added++
		}
		return cur, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to merge messages into %s: %w", date, err)
	}
	return added, nil
}

// Merge adds the reminders of date whose ids are not stored yet and returns how many it added.
func (rs *ReminderStore) Merge(date string, events []CalendarEvent) (int, error) {
	added := 0
	err := rs.cell.Update(date, func(cur []CalendarEvent) ([]CalendarEvent, error) {
		added = 0
		seen := make(map[string]bool, len(cur))
		for _, e := range cur {
			seen[e.ID] = true
		}
		for _, e := range events {
			if e.ID == "" || seen[e.ID] {
				continue
			}
			if _, err := time.Parse(time.RFC3339, e.Time); err != nil {
				return nil, fmt.Errorf("reminder %q has invalid time %q", e.ID, e.Time)
			}
			seen[e.ID] = true
			cur = append(cur, e)
			added++
		}
		return cur, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to merge reminders into %s: %w", date, err)
	}
	return added, nil
}
