package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SpeechPlayer reads messages aloud through the remote speech model and a local speaker.
type SpeechPlayer struct {
	remote  RemoteService
	speaker Speaker
	logger  *zap.Logger
}

// NewSpeechPlayer creates a player.
func NewSpeechPlayer(remote RemoteService, speaker Speaker, logger *zap.Logger) *SpeechPlayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpeechPlayer{remote: remote, speaker: speaker, logger: logger}
}

// Speak synthesizes text and blocks until playback ends or ctx is done.
func (p *SpeechPlayer) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	err := p.speak(ctx, text)
	if err != nil {
		p.logger.Warn("speech playback failed", zap.Error(err))
	}
	return err
}

func (p *SpeechPlayer) speak(ctx context.Context, text string) error {
	audio, err := p.remote.SynthesizeSpeech(ctx, text)
	if err != nil {
		return err
	}
	buf, err := DecodeAudio(audio, OutputSampleRate, 1)
	if err != nil {
		return fmt.Errorf("failed to decode speech: %w", err)
	}

	out, err := p.speaker.Open(OutputSampleRate, 1)
	if err != nil {
		return fmt.Errorf("failed to open speaker: %w", err)
	}
	defer out.Close()

	if err := out.Schedule(1, buf, out.Now()); err != nil {
		return fmt.Errorf("failed to schedule speech: %w", err)
	}
	p.logger.Debug("speaking", zap.Duration("duration", buf.PlaybackDuration()))

	timer := time.NewTimer(buf.PlaybackDuration())
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		out.Stop(1)
		return ctx.Err()
	}
}
