package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Embedder produces embeddings for a retrieval task type.
type Embedder interface {
	Embed(ctx context.Context, text, taskType string) ([]float32, error)
}

// makeEmbeddingFunc adapts an Embedder to chromem. Text carrying QueryTaskPrefix is embedded as
// a query, everything else as a document.
func makeEmbeddingFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		taskType := TaskTypeDocument
		if strings.HasPrefix(text, QueryTaskPrefix) {
			taskType = TaskTypeQuery
			text = strings.TrimPrefix(text, QueryTaskPrefix)
		}
		return e.Embed(ctx, text, taskType)
	}
}

// RecallHit is one message matching a history search.
type RecallHit struct {
	Date       string  `json:"date"`
	MessageID  string  `json:"message_id"`
	Sender     Sender  `json:"sender"`
	Text       string  `json:"text"`
	Similarity float32 `json:"similarity"`
}

type recallJob struct {
	date     string
	messages []Message
}

// RecallIndex is a semantic index over conversation messages.
type RecallIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
	mu         sync.RWMutex

	jobs chan recallJob
}

// OpenRecallIndex loads or creates a persistent index in dir.
func OpenRecallIndex(dir string, compress bool, embedder Embedder, logger *zap.Logger) (*RecallIndex, error) {
	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("failed to open recall index: %w", err)
	}
	return newRecallIndex(db, embedder, logger)
}

// NewMemoryRecallIndex creates an index that is never written to disk.
func NewMemoryRecallIndex(embedder Embedder, logger *zap.Logger) (*RecallIndex, error) {
	return newRecallIndex(chromem.NewDB(), embedder, logger)
}

func newRecallIndex(db *chromem.DB, embedder Embedder, logger *zap.Logger) (*RecallIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	collection, err := db.GetOrCreateCollection(RecallCollection, nil, makeEmbeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	logger.Info("recall index ready", zap.Int("documents", collection.Count()))
	return &RecallIndex{
		db:         db,
		collection: collection,
		logger:     logger,
		jobs:       make(chan recallJob, 64),
	}, nil
}

func recallDocID(date, messageID string) string {
	return date + "/" + messageID
}

// Index embeds the messages of one date that are not indexed yet.
func (r *RecallIndex) Index(ctx context.Context, date string, messages []Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, m := range messages {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		id := recallDocID(date, m.ID)
		if _, err := r.collection.GetByID(ctx, id); err == nil {
			continue
		}
		err := r.collection.AddDocument(ctx, chromem.Document{
			ID:      id,
			Content: m.Text,
			Metadata: map[string]string{
				"date":       date,
				"message_id": m.ID,
				"sender":     string(m.Sender),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to index message %s: %w", id, err)
		}
		added++
	}
	if added > 0 {
		r.logger.Debug("indexed messages", zap.String("date", date), zap.Int("added", added))
	}
	return nil
}

// Follow queues every conversation change for indexing by Run.
func (r *RecallIndex) Follow(conversations *ConversationStore) (cancel func()) {
	return conversations.Subscribe(func(date string, messages []Message) {
		select {
		case r.jobs <- recallJob{date: date, messages: messages}:
		default:
			r.logger.Warn("recall queue full, dropping update", zap.String("date", date))
		}
	})
}

// Backfill indexes every stored conversation.
func (r *RecallIndex) Backfill(ctx context.Context, conversations *ConversationStore) error {
	all, err := conversations.All()
	if err != nil {
		return err
	}
	for date, messages := range all {
		if err := r.Index(ctx, date, messages); err != nil {
			return err
		}
	}
	return nil
}

// Run indexes queued updates until ctx is done.
func (r *RecallIndex) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.jobs:
			if err := r.Index(ctx, job.date, job.messages); err != nil {
				r.logger.Warn("recall indexing failed", zap.String("date", job.date), zap.Error(err))
			}
		}
	}
}

// Count returns the number of indexed messages.
func (r *RecallIndex) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collection.Count()
}

// Search returns up to n messages most similar to query, best first.
func (r *RecallIndex) Search(ctx context.Context, query string, n int) ([]RecallHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if count := r.collection.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}
	results, err := r.collection.Query(ctx, QueryTaskPrefix+query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("recall search failed: %w", err)
	}

	hits := make([]RecallHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, RecallHit{
			Date:       res.Metadata["date"],
			MessageID:  res.Metadata["message_id"],
			Sender:     Sender(res.Metadata["sender"]),
			Text:       res.Content,
			Similarity: res.Similarity,
		})
	}
	return hits, nil
}
