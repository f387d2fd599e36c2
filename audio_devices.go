package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// MalgoMicrophone captures mono float32 audio from the default input device.
type MalgoMicrophone struct {
	sampleRate int
	logger     *zap.Logger
}

// NewMalgoMicrophone creates a microphone capturing at sampleRate.
func NewMalgoMicrophone(sampleRate int, logger *zap.Logger) *MalgoMicrophone {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MalgoMicrophone{sampleRate: sampleRate, logger: logger}
}

// Acquire opens and starts the capture device. Samples are discarded until Attach.
func (m *MalgoMicrophone) Acquire(ctx context.Context) (CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	c := &malgoCapture{mctx: mctx, logger: m.logger}
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.sampleRate)

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: c.onData})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("microphone unavailable: %w", err)
	}
	c.device = device
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("failed to start microphone: %w", err)
	}
	m.logger.Debug("microphone acquired", zap.Int("sample_rate", m.sampleRate))
	return c, nil
}

type malgoCapture struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	logger *zap.Logger

	mu       sync.Mutex
	blocks   *blockAccumulator
	onBlock  func([]float32)
	stopOnce sync.Once
}

func (c *malgoCapture) onData(_, input []byte, _ uint32) {
	samples := make([]float32, len(input)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
	}

	c.mu.Lock()
	blocks, fn := c.blocks, c.onBlock
	var ready [][]float32
	if blocks != nil {
		ready = blocks.push(samples)
	}
	c.mu.Unlock()

	for _, block := range ready {
		fn(block)
	}
}

func (c *malgoCapture) Attach(blockSize int, onBlock func([]float32)) error {
	if blockSize < 1 {
		return fmt.Errorf("invalid block size %d", blockSize)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = newBlockAccumulator(blockSize)
	c.onBlock = onBlock
	return nil
}

func (c *malgoCapture) Detach() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks, c.onBlock = nil, nil
	return nil
}

func (c *malgoCapture) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		err = c.device.Stop()
		c.device.Uninit()
		err = multierr.Append(err, c.mctx.Uninit())
		c.mctx.Free()
		c.logger.Debug("microphone released")
	})
	return err
}

// blockAccumulator regroups device periods into fixed-size blocks.
type blockAccumulator struct {
	size    int
	pending []float32
}

func newBlockAccumulator(size int) *blockAccumulator {
	return &blockAccumulator{size: size, pending: make([]float32, 0, size)}
}

// push appends samples and returns every completed block. Returned slices are not reused.
func (a *blockAccumulator) push(samples []float32) [][]float32 {
	var out [][]float32
	for len(samples) > 0 {
		n := a.size - len(a.pending)
		if n > len(samples) {
			n = len(samples)
		}
		a.pending = append(a.pending, samples[:n]...)
		samples = samples[n:]
		if len(a.pending) == a.size {
			out = append(out, a.pending)
			a.pending = make([]float32, 0, a.size)
		}
	}
	return out
}

// OtoSpeaker opens outputs on a shared oto context. oto allows one context per process, so the
// first Open fixes the sample rate and channel count.
type OtoSpeaker struct {
	bufferSize time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	ctx      *oto.Context
	rate     int
	channels int
}

// NewOtoSpeaker creates a speaker with the given device buffer size.
func NewOtoSpeaker(bufferSize time.Duration, logger *zap.Logger) *OtoSpeaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OtoSpeaker{bufferSize: bufferSize, logger: logger}
}

func (s *OtoSpeaker) context(sampleRate, channels int) (*oto.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		if s.rate != sampleRate || s.channels != channels {
			return nil, fmt.Errorf("speaker already open at %d Hz x%d", s.rate, s.channels)
		}
		return s.ctx, nil
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   s.bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init speaker: %w", err)
	}
	<-ready
	s.ctx, s.rate, s.channels = ctx, sampleRate, channels
	return ctx, nil
}

// Open starts a player fed by a silence-padded timeline.
func (s *OtoSpeaker) Open(sampleRate, channels int) (AudioOutput, error) {
	ctx, err := s.context(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	out := &otoOutput{timeline: newPCMTimeline(sampleRate, channels), logger: s.logger}
	out.player = ctx.NewPlayer(out)
	out.player.Play()
	return out, nil
}

type otoOutput struct {
	timeline *pcmTimeline
	player   *oto.Player
	logger   *zap.Logger
}

func (o *otoOutput) Read(p []byte) (int, error) {
	return o.timeline.Read(p)
}

// Now is the position of the sound being heard: bytes pulled by oto minus what it still buffers.
func (o *otoOutput) Now() float64 {
	return o.timeline.heard(o.player.BufferedSize())
}

func (o *otoOutput) Schedule(id uint64, buf *AudioBuffer, at float64) error {
	return o.timeline.Schedule(id, buf, at)
}

// Stop drops the buffer and, if it was audible, clears the device buffer.
func (o *otoOutput) Stop(id uint64) {
	if o.timeline.Stop(id) {
		o.player.Reset()
		o.player.Play()
	}
}

func (o *otoOutput) Close() error {
	o.timeline.Close()
	return o.player.Close()
}

var errTimelineClosed = errors.New("audio output closed")

type timelineSegment struct {
	id    uint64
	start int // byte offset on the timeline
	data  []byte
	off   int
}

// pcmTimeline is an io.Reader that plays scheduled PCM16 segments at their byte offsets and
// fills gaps with silence. Its clock is the number of bytes read, which runs ahead of the sound
// by whatever the device still buffers; see heard. Segments scheduled before the read position
// start at the read position.
type pcmTimeline struct {
	rate      int
	frameSize int

	mu       sync.Mutex
	pos      int
	segments []*timelineSegment
	closed   bool
}

func newPCMTimeline(rate, channels int) *pcmTimeline {
	return &pcmTimeline{rate: rate, frameSize: 2 * channels}
}

// Now returns the read position in seconds.
func (t *pcmTimeline) Now() float64 {
	return t.heard(0)
}

// heard returns the read position in seconds less buffered bytes not yet played.
func (t *pcmTimeline) heard(buffered int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	played := t.pos - buffered
	if played < 0 {
		played = 0
	}
	return float64(played/t.frameSize) / float64(t.rate)
}

func (t *pcmTimeline) Schedule(id uint64, buf *AudioBuffer, at float64) error {
	if buf.SampleRate != t.rate || len(buf.Channels)*2 != t.frameSize {
		return fmt.Errorf("buffer format %d Hz x%d does not match output", buf.SampleRate, len(buf.Channels))
	}
	data := buf.Interleaved()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTimelineClosed
	}
	start := int(math.Round(at*float64(t.rate))) * t.frameSize
	if start < t.pos {
		start = t.pos
	}
	t.segments = append(t.segments, &timelineSegment{id: id, start: start, data: data})
	sort.SliceStable(t.segments, func(i, j int) bool { return t.segments[i].start < t.segments[j].start })
	return nil
}

// Stop removes segment id and reports whether it had started playing.
func (t *pcmTimeline) Stop(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, seg := range t.segments {
		if seg.id == id {
			t.segments = append(t.segments[:i], t.segments[i+1:]...)
			return seg.off > 0
		}
	}
	return false
}

func (t *pcmTimeline) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.segments = nil
}

func (t *pcmTimeline) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) {
		if len(t.segments) == 0 {
			clear(p[n:])
			t.pos += len(p) - n
			n = len(p)
			break
		}
		seg := t.segments[0]
		if gap := seg.start + seg.off - t.pos; gap > 0 {
			k := min(gap, len(p)-n)
			clear(p[n : n+k])
			n += k
			t.pos += k
			continue
		}
		k := copy(p[n:], seg.data[seg.off:])
		n += k
		t.pos += k
		seg.off += k
		if seg.off == len(seg.data) {
			t.segments = t.segments[1:]
		}
	}
	return n, nil
}
