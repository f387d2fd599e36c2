package main

import (
	"fmt"

	"go.uber.org/zap"
)

// ConversationStore holds the date-partitioned conversation log.
type ConversationStore struct {
	cell   *BucketCell[Message]
	logger *zap.Logger
}

// NewConversationStore creates a conversation store on top of the persisted store.
func NewConversationStore(store *KVStore, logger *zap.Logger) *ConversationStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationStore{
		cell:   NewBucketCell[Message](store, MessagesPrefix),
		logger: logger,
	}
}

// Get returns the messages of date in append order; empty when the date has none.
func (cs *ConversationStore) Get(date string) ([]Message, error) {
	return cs.cell.Get(date)
}

// WelcomeID returns the id of the synthesized welcome message for date.
func WelcomeID(date string) string {
	return date + WelcomeIDSuffix
}

// EnsureWelcome seeds an empty date with one AI welcome message. Days that already hold
// messages are left untouched.
func (cs *ConversationStore) EnsureWelcome(date, welcomeText string) (bool, error) {
	inserted := false
	err := cs.cell.Update(date, func(cur []Message) ([]Message, error) {
		inserted = false
		if len(cur) > 0 {
			return cur, nil
		}
		inserted = true
		return []Message{{ID: WelcomeID(date), Text: welcomeText, Sender: SenderAI}}, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to insert welcome for %s: %w", date, err)
	}
	if inserted {
		cs.logger.Debug("inserted welcome message", zap.String("date", date))
	}
	return inserted, nil
}

// Append adds msg at the end of date's sequence, creating the day if needed.
func (cs *ConversationStore) Append(date string, msg Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message for %s has no id", date)
	}
	err := cs.cell.Update(date, func(cur []Message) ([]Message, error) {
		return append(cur, msg), nil
	})
	if err != nil {
		return fmt.Errorf("failed to append message to %s: %w", date, err)
	}
	return nil
}

// Dates returns every date holding messages, ascending.
func (cs *ConversationStore) Dates() ([]string, error) {
	return cs.cell.Dates()
}

// All returns the full conversation log.
func (cs *ConversationStore) All() (MessagesByDate, error) {
	all, err := cs.cell.All()
	if err != nil {
		return nil, err
	}
	return MessagesByDate(all), nil
}

// Subscribe registers fn to run after every committed change to a day.
func (cs *ConversationStore) Subscribe(fn func(date string, messages []Message)) (cancel func()) {
	return cs.cell.Subscribe(fn)
}
