package analysis

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
)

func TestDownsample(t *testing.T) {
	freq := make([]uint8, 128)
	for i := range freq {
		freq[i] = uint8(i)
	}

	got := Downsample(freq, 16)
	// Each bar averages 8 consecutive values: 8i + 3.5, rounded half up
	for i, v := range got {
		want := uint8(8*i + 4)
		if v != want {
			t.Errorf("bar %d = %d, want %d", i, v, want)
		}
	}
}

func TestDownsampleShortInput(t *testing.T) {
	freq := []uint8{10, 20, 30}
	got := Downsample(freq, 16)
	want := Frame{10, 20, 30}
	if got != want {
		t.Errorf("Downsample() = %v, want %v", got, want)
	}

	if got := Downsample(nil, 16); got != (Frame{}) {
		t.Errorf("Downsample(nil) = %v, want zeros", got)
	}
}

func TestNewAnalyserValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"not power of two", Options{FFTSize: 100, Smoothing: 0.8, MinDecibels: -100, MaxDecibels: -30}},
		{"too small", Options{FFTSize: 16, Smoothing: 0.8, MinDecibels: -100, MaxDecibels: -30}},
		{"smoothing", Options{FFTSize: 256, Smoothing: 1, MinDecibels: -100, MaxDecibels: -30}},
		{"decibel range", Options{FFTSize: 256, Smoothing: 0.8, MinDecibels: -30, MaxDecibels: -100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAnalyser(beep.Silence(-1), tt.opts); err == nil {
				t.Error("NewAnalyser() expected error")
			}
		})
	}
}

func sine(bin, size int) beep.Streamer {
	i := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for k := range samples {
			v := math.Sin(2 * math.Pi * float64(bin) * float64(i) / float64(size))
			samples[k] = [2]float64{v, v}
			i++
		}
		return len(samples), true
	})
}

func TestAnalyserWarmUp(t *testing.T) {
	a, err := NewAnalyser(beep.Silence(-1), DefaultOptions)
	if err != nil {
		t.Fatal(err)
	}
	if a.FrequencyBinCount() != 128 {
		t.Errorf("FrequencyBinCount() = %d, want 128", a.FrequencyBinCount())
	}

	dst := make([]uint8, a.FrequencyBinCount())
	a.Stream(make([][2]float64, 100))
	if err := a.ByteFrequencyData(dst); !errors.Is(err, ErrNotWarm) {
		t.Fatalf("ByteFrequencyData() = %v, want ErrNotWarm", err)
	}

	a.Stream(make([][2]float64, 200))
	if err := a.ByteFrequencyData(dst); err != nil {
		t.Fatalf("ByteFrequencyData() error = %v", err)
	}
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("silence bin %d = %d, want 0", i, v)
		}
	}
}

func TestAnalyserFindsTone(t *testing.T) {
	a, err := NewAnalyser(sine(8, 256), DefaultOptions)
	if err != nil {
		t.Fatal(err)
	}

	dst := make([]uint8, a.FrequencyBinCount())
	for range 10 {
		a.Stream(make([][2]float64, 256))
		if err := a.ByteFrequencyData(dst); err != nil {
			t.Fatal(err)
		}
	}

	if dst[8] != 255 {
		t.Errorf("tone bin = %d, want 255", dst[8])
	}
	if dst[100] >= dst[8] {
		t.Errorf("far bin %d not below tone bin %d", dst[100], dst[8])
	}
}

func TestAnalyserPassesThrough(t *testing.T) {
	done := false
	src := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if done {
			return 0, false
		}
		done = true
		for i := range samples {
			samples[i] = [2]float64{0.25, 0.75}
		}
		return len(samples), true
	})

	a, err := NewAnalyser(src, DefaultOptions)
	if err != nil {
		t.Fatal(err)
	}

	buf := make([][2]float64, 4)
	if n, ok := a.Stream(buf); n != 4 || !ok || buf[0] != [2]float64{0.25, 0.75} {
		t.Errorf("Stream() = %d, %v, %v", n, ok, buf[0])
	}
	if n, ok := a.Stream(buf); n != 0 || ok {
		t.Errorf("Stream() after exhaustion = %d, %v, want 0, false", n, ok)
	}
}

type fakeSource struct {
	reads atomic.Int32
	fail  int32
	value uint8
}

func (f *fakeSource) FrequencyBinCount() int { return 32 }

func (f *fakeSource) ByteFrequencyData(dst []uint8) error {
	if f.reads.Add(1) <= f.fail {
		return ErrNotWarm
	}
	for i := range dst {
		dst[i] = f.value
	}
	return nil
}

func TestFramesSkipsFailedReads(t *testing.T) {
	src := &fakeSource{fail: 2, value: 40}
	ticks := make(chan time.Time, 5)
	for range 5 {
		ticks <- time.Now()
	}
	close(ticks)

	var frames []Frame
	for f := range Frames(context.Background(), src, ticks) {
		frames = append(frames, f)
	}

	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[0][0] != 40 || frames[0][15] != 40 {
		t.Errorf("frame = %v, want all 40", frames[0])
	}
}

func TestFramesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range Frames(ctx, &fakeSource{}, make(chan time.Time)) {
		t.Fatal("frame yielded after cancel")
	}
}

func TestLoopRestart(t *testing.T) {
	l := NewLoop(time.Millisecond)
	if l.Running() {
		t.Fatal("new loop is running")
	}

	l.Start(&fakeSource{value: 10})
	waitFor(t, func() bool { return l.Frame()[0] == 10 })

	l.Start(&fakeSource{value: 200})
	waitFor(t, func() bool { return l.Frame()[0] == 200 })

	l.Stop()
	l.Stop()
	if l.Running() {
		t.Error("loop still running after Stop")
	}
	if l.Frame()[0] != 200 {
		t.Errorf("last frame not kept: %v", l.Frame())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
