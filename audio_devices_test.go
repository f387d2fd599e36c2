package main

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBlockAccumulator(t *testing.T) {
	a := newBlockAccumulator(4)
	if got := a.push([]float32{1, 2, 3}); len(got) != 0 {
		t.Fatalf("partial push emitted %v", got)
	}
	got := a.push([]float32{4, 5, 6, 7, 8, 9})
	want := [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
	}
	got = a.push([]float32{10, 11, 12})
	if diff := cmp.Diff([][]float32{{9, 10, 11, 12}}, got); diff != "" {
		t.Fatalf("carry-over mismatch (-want +got):\n%s", diff)
	}
}

// monoBuffer builds a buffer whose PCM16 samples are all 0x0101.
func monoBuffer(rate, frames int) *AudioBuffer {
	ch := make([]float32, frames)
	for i := range ch {
		ch[i] = 257.0 / 32768
	}
	return &AudioBuffer{SampleRate: rate, Channels: [][]float32{ch}}
}

func TestPCMTimelinePadsGapsWithSilence(t *testing.T) {
	tl := newPCMTimeline(10, 1)
	// Frame 2 at 10 Hz is 0.2s.
	if err := tl.Schedule(1, monoBuffer(10, 2), 0.2); err != nil {
		t.Fatal(err)
	}

	p := make([]byte, 12)
	n, err := tl.Read(p)
	if err != nil || n != 12 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	want := []byte{0, 0, 0, 0, 1, 1, 1, 1, 0, 0, 0, 0}
	if !bytes.Equal(p, want) {
		t.Fatalf("Read = %v, want %v", p, want)
	}
	if tl.Now() != 0.6 {
		t.Fatalf("Now = %v, want 0.6", tl.Now())
	}
}

func TestPCMTimelineLateScheduleAndStop(t *testing.T) {
	tl := newPCMTimeline(10, 1)
	tl.Read(make([]byte, 4))

	// Past start times play from the current position.
	tl.Schedule(1, monoBuffer(10, 1), 0)
	tl.Schedule(2, monoBuffer(10, 1), 1)
	if tl.Stop(2) {
		t.Fatal("Stop reported an unplayed buffer as started")
	}
	p := make([]byte, 4)
	tl.Read(p)
	if !bytes.Equal(p, []byte{1, 1, 0, 0}) {
		t.Fatalf("Read = %v", p)
	}

	if err := tl.Schedule(3, &AudioBuffer{SampleRate: 24000, Channels: [][]float32{{0}}}, 0); err == nil {
		t.Fatal("accepted mismatched sample rate")
	}

	tl.Close()
	if _, err := tl.Read(p); !errors.Is(err, io.EOF) {
		t.Fatalf("Read after close err = %v", err)
	}
	if err := tl.Schedule(4, monoBuffer(10, 1), 0); err == nil {
		t.Fatal("Schedule after close succeeded")
	}
}

func TestPCMTimelineHeardSubtractsBufferedAudio(t *testing.T) {
	tl := newPCMTimeline(10, 1)
	tl.Read(make([]byte, 20)) // 10 frames pulled

	tests := []struct {
		buffered int
		want     float64
	}{
		{0, 1},
		{6, 0.7},
		{7, 0.6}, // partial frames round down
		{40, 0},
	}
	for _, tt := range tests {
		if got := tl.heard(tt.buffered); got != tt.want {
			t.Errorf("heard(%d) = %v, want %v", tt.buffered, got, tt.want)
		}
	}
}
