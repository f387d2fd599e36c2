package main

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrMisalignedPCM is returned when PCM input does not hold a whole number of frames.
var ErrMisalignedPCM = errors.New("pcm length is not a multiple of the frame size")

// AudioChunk is one realtime audio payload as sent over the wire.
type AudioChunk struct {
	Data     string // Base64 encoded PCM16 little-endian
	MIMEType string
}

// AudioBuffer is decoded planar float audio ready for playback.
type AudioBuffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the number of sample frames per channel.
func (b *AudioBuffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length in seconds.
func (b *AudioBuffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// PlaybackDuration returns the playback length as a time.Duration.
func (b *AudioBuffer) PlaybackDuration() time.Duration {
	return time.Duration(b.Duration() * float64(time.Second))
}

// Interleaved packs the buffer back into interleaved PCM16 little-endian bytes.
func (b *AudioBuffer) Interleaved() []byte {
	frames := b.Frames()
	n := len(b.Channels)
	samples := make([]float32, 0, frames*n)
	for i := 0; i < frames; i++ {
		for c := 0; c < n; c++ {
			samples = append(samples, b.Channels[c][i])
		}
	}
	return Float32ToPCM16(samples)
}

// Base64Encode encodes bytes with the standard RFC 4648 alphabet.
func Base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64Decode decodes a standard RFC 4648 string.
func Base64Decode(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	return data, nil
}

// PCM16ToFloat32 decodes interleaved signed 16-bit little-endian PCM into planar float samples
// in [-1, 1).
func PCM16ToFloat32(pcm []byte, sampleRate, channels int) (*AudioBuffer, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes, %d channels", ErrMisalignedPCM, len(pcm), channels)
	}

	frames := len(pcm) / (2 * channels)
	buf := &AudioBuffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[off:]))
			buf.Channels[c][i] = float32(sample) / 32768.0
		}
	}
	return buf, nil
}

// Float32ToPCM16 packs float samples as signed 16-bit little-endian PCM. Out-of-range samples
// saturate at the int16 limits.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32768.0)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// PCMMIMEType returns the realtime input MIME type for rate.
func PCMMIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// NewPCMChunk encodes one capture block for the live endpoint.
func NewPCMChunk(samples []float32, rate int) AudioChunk {
	return AudioChunk{
		Data:     Base64Encode(Float32ToPCM16(samples)),
		MIMEType: PCMMIMEType(rate),
	}
}

// DecodeAudio turns a base64 PCM16 payload into a playable buffer.
func DecodeAudio(b64 string, sampleRate, channels int) (*AudioBuffer, error) {
	pcm, err := Base64Decode(b64)
	if err != nil {
		return nil, err
	}
	return PCM16ToFloat32(pcm, sampleRate, channels)
}
