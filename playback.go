package main

import (
	"fmt"

	"go.uber.org/zap"
)

// AudioOutput is a clocked output device that plays buffers at scheduled times.
type AudioOutput interface {
	// Now returns the output clock in seconds.
	Now() float64
	// Schedule queues buf to start playing at the given clock time.
	Schedule(id uint64, buf *AudioBuffer, at float64) error
	// Stop silences a scheduled or playing buffer. Unknown ids are ignored.
	Stop(id uint64)
	Close() error
}

// ScheduledBuffer is one entry of the playback queue.
type ScheduledBuffer struct {
	ID    uint64
	Start float64
	End   float64
}

// PlaybackQueue schedules decoded buffers back to back on an AudioOutput. It is owned by a
// single goroutine.
type PlaybackQueue struct {
	out    AudioOutput
	logger *zap.Logger

	cursor float64
	nextID uint64
	active []ScheduledBuffer
}

// NewPlaybackQueue creates a queue playing on out.
func NewPlaybackQueue(out AudioOutput, logger *zap.Logger) *PlaybackQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaybackQueue{out: out, logger: logger}
}

// Enqueue schedules buf at max(now, end of the previous buffer).
func (q *PlaybackQueue) Enqueue(buf *AudioBuffer) (ScheduledBuffer, error) {
	now := q.out.Now()
	q.prune(now)

	start := q.cursor
	if now > start {
		start = now
	}
	q.nextID++
	entry := ScheduledBuffer{ID: q.nextID, Start: start, End: start + buf.Duration()}

	if err := q.out.Schedule(entry.ID, buf, entry.Start); err != nil {
		return ScheduledBuffer{}, fmt.Errorf("failed to schedule playback: %w", err)
	}
	q.cursor = entry.End
	q.active = append(q.active, entry)
	return entry, nil
}

// Interrupt stops every active buffer, clears the queue and resets the cursor.
func (q *PlaybackQueue) Interrupt() {
	for _, e := range q.active {
		q.out.Stop(e.ID)
	}
	if len(q.active) > 0 {
		q.logger.Debug("playback interrupted", zap.Int("stopped", len(q.active)))
	}
	q.active = nil
	q.cursor = 0
}

// Active returns the buffers that have not finished playing.
func (q *PlaybackQueue) Active() []ScheduledBuffer {
	q.prune(q.out.Now())
	out := make([]ScheduledBuffer, len(q.active))
	copy(out, q.active)
	return out
}

// Cursor returns the end time of the last scheduled buffer, or 0 after an interrupt.
func (q *PlaybackQueue) Cursor() float64 {
	return q.cursor
}

// prune drops finished entries. Ends are non-decreasing so finished entries form a prefix.
func (q *PlaybackQueue) prune(now float64) {
	i := 0
	for i < len(q.active) && q.active[i].End <= now {
		i++
	}
	if i > 0 {
		q.active = append(q.active[:0:0], q.active[i:]...)
	}
}
