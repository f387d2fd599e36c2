package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type fakeOutput struct {
	mu        sync.Mutex
	now       float64
	scheduled []ScheduledBuffer
	stopped   []uint64
	closed    int
	closeErr  error
}

func (o *fakeOutput) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) setNow(now float64) {
	o.mu.Lock()
	o.now = now
	o.mu.Unlock()
}

func (o *fakeOutput) Schedule(id uint64, buf *AudioBuffer, at float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed > 0 {
		return errors.New("output closed")
	}
	o.scheduled = append(o.scheduled, ScheduledBuffer{ID: id, Start: at, End: at + buf.Duration()})
	return nil
}

func (o *fakeOutput) Stop(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = append(o.stopped, id)
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return o.closeErr
}

func (o *fakeOutput) snapshot() (scheduled []ScheduledBuffer, stopped []uint64, closed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ScheduledBuffer(nil), o.scheduled...), append([]uint64(nil), o.stopped...), o.closed
}

type fakeSpeaker struct {
	mu     sync.Mutex
	out    *fakeOutput
	err    error
	opened int
	lastHz int
}

func (s *fakeSpeaker) Open(sampleRate, channels int) (AudioOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.opened++
	s.lastHz = sampleRate
	return s.out, nil
}

type fakeCapture struct {
	mu        sync.Mutex
	blockSize int
	onBlock   func([]float32)
	attachErr error
	stopErr   error
	stopped   int
	detached  int
}

func (c *fakeCapture) Attach(blockSize int, onBlock func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attachErr != nil {
		return c.attachErr
	}
	c.blockSize = blockSize
	c.onBlock = onBlock
	return nil
}

func (c *fakeCapture) Detach() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached++
	c.onBlock = nil
	return nil
}

func (c *fakeCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
	return c.stopErr
}

func (c *fakeCapture) emit(samples []float32) {
	c.mu.Lock()
	fn := c.onBlock
	c.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

func (c *fakeCapture) counts() (stopped, detached int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped, c.detached
}

type fakeMicrophone struct {
	capture *fakeCapture
	err     error
}

func (m *fakeMicrophone) Acquire(ctx context.Context) (CaptureStream, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.capture, nil
}

type fakeLiveConn struct {
	in       chan *ServerMessage
	recvErr  chan error
	closeErr error

	mu     sync.Mutex
	sent   []AudioChunk
	closed int
	done   chan struct{}
}

func newFakeLiveConn() *fakeLiveConn {
	return &fakeLiveConn{
		in:      make(chan *ServerMessage, 16),
		recvErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (c *fakeLiveConn) SendAudio(chunk AudioChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, chunk)
	return nil
}

func (c *fakeLiveConn) Receive() (*ServerMessage, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case err := <-c.recvErr:
		return nil, err
	case <-c.done:
		return nil, io.EOF
	}
}

func (c *fakeLiveConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	if c.closed == 1 {
		close(c.done)
	}
	return c.closeErr
}

func (c *fakeLiveConn) sentChunks() []AudioChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AudioChunk(nil), c.sent...)
}

func (c *fakeLiveConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeVoiceService struct {
	conn *fakeLiveConn
	err  error
	cfg  LiveConfig
}

func (v *fakeVoiceService) Connect(ctx context.Context, cfg LiveConfig) (LiveConn, error) {
	v.cfg = cfg
	if v.err != nil {
		return nil, v.err
	}
	return v.conn, nil
}

type transcript struct{ user, ai string }

type fakeObserver struct {
	mu          sync.Mutex
	states      []SessionState
	transcripts []transcript
}

func (o *fakeObserver) OnState(state SessionState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *fakeObserver) OnTranscript(user, ai string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcripts = append(o.transcripts, transcript{user, ai})
}

func (o *fakeObserver) snapshot() ([]SessionState, []transcript) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]SessionState(nil), o.states...), append([]transcript(nil), o.transcripts...)
}

type chatCall struct {
	history   []ChatTurn
	prompt    string
	grounding bool
	location  *Location
}

// fakeRemote records calls and returns canned replies.
type fakeRemote struct {
	mu sync.Mutex

	chatReply *ChatReply
	chatErr   error
	chatCalls []chatCall
	block     chan struct{} // when set, Chat waits on it

	analyzeReply string
	analyzeErr   error
	analyzed     []string

	editReply *ImageData
	editErr   error
	edited    []string

	speech    string
	speechErr error

	weather    *WeatherData
	weatherErr error
}

func (r *fakeRemote) Chat(ctx context.Context, history []ChatTurn, prompt string, useGrounding bool, loc *Location) (*ChatReply, error) {
	r.mu.Lock()
	r.chatCalls = append(r.chatCalls, chatCall{history, prompt, useGrounding, loc})
	block := r.block
	r.mu.Unlock()
	if block != nil {
		<-block
	}
	return r.chatReply, r.chatErr
}

func (r *fakeRemote) AnalyzeImage(ctx context.Context, prompt string, image ImageData) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyzed = append(r.analyzed, prompt)
	return r.analyzeReply, r.analyzeErr
}

func (r *fakeRemote) EditImage(ctx context.Context, prompt string, image ImageData) (*ImageData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edited = append(r.edited, prompt)
	return r.editReply, r.editErr
}

func (r *fakeRemote) SynthesizeSpeech(ctx context.Context, text string) (string, error) {
	return r.speech, r.speechErr
}

func (r *fakeRemote) Weather(ctx context.Context, lat, lon float64) (*WeatherData, error) {
	return r.weather, r.weatherErr
}

func (r *fakeRemote) calls() []chatCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chatCall(nil), r.chatCalls...)
}

// fakeClock is a settable wall clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
