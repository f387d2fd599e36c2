package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// SessionState is the lifecycle state of a live voice session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateRequesting
	StateStreaming
	StateInterrupted
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateInterrupted:
		return "interrupted"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

var (
	// ErrSessionStarted is returned by Start on a session that already left Idle.
	ErrSessionStarted = errors.New("live session already started")
	// ErrSessionStopped is returned by Start when Stop ran before startup finished.
	ErrSessionStopped = errors.New("live session stopped during startup")
)

// Microphone grants exclusive capture of the default input device.
type Microphone interface {
	Acquire(ctx context.Context) (CaptureStream, error)
}

// CaptureStream is an acquired input device.
type CaptureStream interface {
	// Attach starts delivering fixed-size blocks of mono samples. onBlock owns the slice.
	Attach(blockSize int, onBlock func(samples []float32)) error
	// Detach stops block delivery.
	Detach() error
	// Stop releases the device.
	Stop() error
}

// Speaker opens clocked audio outputs.
type Speaker interface {
	Open(sampleRate, channels int) (AudioOutput, error)
}

// LiveConfig configures a duplex voice connection.
type LiveConfig struct {
	Model               string
	Voice               string
	InputTranscription  bool
	OutputTranscription bool
}

// ServerMessage is one inbound live message, decoded from the remote protocol.
type ServerMessage struct {
	InputText    string
	OutputText   string
	TurnComplete bool
	Interrupted  bool
	Audio        []string // Base64 PCM16 payloads at 24 kHz
}

// LiveConn is an open duplex voice connection.
type LiveConn interface {
	SendAudio(chunk AudioChunk) error
	// Receive blocks for the next message. It returns io.EOF after a clean remote close.
	Receive() (*ServerMessage, error)
	Close() error
}

// VoiceService opens duplex voice connections.
type VoiceService interface {
	Connect(ctx context.Context, cfg LiveConfig) (LiveConn, error)
}

// LiveObserver receives state and transcript updates from a live session.
type LiveObserver interface {
	OnState(state SessionState)
	OnTranscript(user, ai string)
}

// LiveSession runs one duplex voice conversation. Capture blocks and inbound messages are
// handled on a single event loop goroutine.
type LiveSession struct {
	mic       Microphone
	speaker   Speaker
	voice     VoiceService
	cfg       LiveConfig
	blockSize int
	observer  LiveObserver
	logger    *zap.Logger

	mu       sync.Mutex
	state    SessionState
	userText string
	aiText   string

	events chan func()
	done   chan struct{}

	conn    LiveConn
	capture CaptureStream
	out     AudioOutput
	queue   *PlaybackQueue

	stopOnce sync.Once
	stopErr  error
}

// NewLiveSession creates an idle session. observer may be nil.
func NewLiveSession(mic Microphone, speaker Speaker, voice VoiceService, cfg LiveConfig, blockSize int, observer LiveObserver, logger *zap.Logger) *LiveSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	if blockSize <= 0 {
		blockSize = CaptureBlockSize
	}
	cfg.InputTranscription = true
	cfg.OutputTranscription = true
	return &LiveSession{
		mic:       mic,
		speaker:   speaker,
		voice:     voice,
		cfg:       cfg,
		blockSize: blockSize,
		observer:  observer,
		logger:    logger,
		events:    make(chan func(), 64),
		done:      make(chan struct{}),
	}
}

// State returns the current state.
func (s *LiveSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session reaches Closed.
func (s *LiveSession) Done() <-chan struct{} {
	return s.done
}

// Transcripts returns the accumulated user and AI transcripts of the current turn.
func (s *LiveSession) Transcripts() (user, ai string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userText, s.aiText
}

func (s *LiveSession) setState(state SessionState) bool {
	s.mu.Lock()
	if s.state == state || s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = state
	s.mu.Unlock()

	s.logger.Debug("live session state", zap.Stringer("state", state))
	if s.observer != nil {
		s.observer.OnState(state)
	}
	return true
}

// Start acquires the microphone, opens the output and the remote session, then streams until
// Stop, a remote close, a remote error or ctx cancellation.
func (s *LiveSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.mu.Unlock()
	s.setState(StateRequesting)

	capture, err := s.mic.Acquire(ctx)
	if err != nil {
		s.logger.Error("microphone unavailable", zap.Error(err))
		return s.abort(fmt.Errorf("failed to acquire microphone: %w", err))
	}
	if !s.hold(func() { s.capture = capture }) {
		return multierr.Combine(ErrSessionStopped, capture.Stop())
	}

	out, err := s.speaker.Open(OutputSampleRate, AudioChannels)
	if err != nil {
		s.logger.Error("speaker unavailable", zap.Error(err))
		return s.abort(fmt.Errorf("failed to open audio output: %w", err))
	}
	if !s.hold(func() { s.out = out }) {
		return multierr.Combine(ErrSessionStopped, out.Close())
	}
	s.queue = NewPlaybackQueue(out, s.logger)

	conn, err := s.voice.Connect(ctx, s.cfg)
	if err != nil {
		s.logger.Error("live connect failed", zap.Error(err))
		return s.abort(fmt.Errorf("failed to open live session: %w", err))
	}
	if !s.hold(func() { s.conn = conn }) {
		return multierr.Combine(ErrSessionStopped, conn.Close())
	}

	s.setState(StateStreaming)
	go s.loop()
	go s.read()
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()

	if err := capture.Attach(s.blockSize, func(samples []float32) {
		s.post(func() { s.sendBlock(samples) })
	}); err != nil {
		s.logger.Error("capture attach failed", zap.Error(err))
		return s.abort(fmt.Errorf("failed to attach capture: %w", err))
	}
	return nil
}

// hold records a resource acquired by Start unless the session was stopped meanwhile.
func (s *LiveSession) hold(set func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	set()
	return true
}

func (s *LiveSession) abort(err error) error {
	return multierr.Append(err, s.Stop())
}

// Stop tears the session down. Every release step is attempted even when an earlier one fails,
// and each resource is released at most once. Later calls return the first call's result.
func (s *LiveSession) Stop() error {
	s.stopOnce.Do(func() {
		s.setState(StateClosed)

		s.mu.Lock()
		conn, capture, out := s.conn, s.capture, s.out
		s.mu.Unlock()

		var err error
		if conn != nil {
			err = multierr.Append(err, conn.Close())
		}
		if capture != nil {
			err = multierr.Append(err, capture.Stop())
			err = multierr.Append(err, capture.Detach())
		}
		if out != nil {
			err = multierr.Append(err, out.Close())
		}
		if err != nil {
			s.logger.Warn("live session teardown", zap.Error(err))
		}
		s.stopErr = err
		close(s.done)
	})
	return s.stopErr
}

func (s *LiveSession) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

func (s *LiveSession) loop() {
	for {
		select {
		case fn := <-s.events:
			if s.State() == StateClosed {
				continue
			}
			fn()
		case <-s.done:
			return
		}
	}
}

func (s *LiveSession) read() {
	for {
		msg, err := s.conn.Receive()
		if err != nil {
			s.post(func() {
				if errors.Is(err, io.EOF) {
					s.logger.Info("live session closed by remote")
				} else {
					s.logger.Error("live session receive failed", zap.Error(err))
				}
				s.Stop()
			})
			return
		}
		s.post(func() { s.handle(msg) })
	}
}

func (s *LiveSession) sendBlock(samples []float32) {
	if err := s.conn.SendAudio(NewPCMChunk(samples, InputSampleRate)); err != nil {
		s.logger.Warn("failed to send audio block", zap.Error(err))
	}
}

// updateTranscript applies fn to the accumulators and publishes the result.
func (s *LiveSession) updateTranscript(fn func(user, ai *string)) {
	s.mu.Lock()
	fn(&s.userText, &s.aiText)
	user, ai := s.userText, s.aiText
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.OnTranscript(user, ai)
	}
}

func (s *LiveSession) handle(msg *ServerMessage) {
	if msg.InputText != "" {
		s.updateTranscript(func(user, _ *string) { *user += msg.InputText })
	}
	if msg.OutputText != "" {
		s.updateTranscript(func(_, ai *string) { *ai += msg.OutputText })
	}
	if msg.TurnComplete {
		s.updateTranscript(func(user, ai *string) { *user, *ai = "", "" })
		if s.State() == StateInterrupted {
			s.setState(StateStreaming)
		}
	}
	for _, payload := range msg.Audio {
		buf, err := DecodeAudio(payload, OutputSampleRate, AudioChannels)
		if err != nil {
			s.logger.Warn("dropping undecodable audio", zap.Error(err))
			continue
		}
		if s.State() == StateInterrupted {
			s.setState(StateStreaming)
		}
		if _, err := s.queue.Enqueue(buf); err != nil {
			s.logger.Warn("dropping audio", zap.Error(err))
		}
	}
	if msg.Interrupted {
		s.queue.Interrupt()
		s.setState(StateInterrupted)
	}
}
