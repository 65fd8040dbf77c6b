package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
)

type fakeDevice struct {
	mu        sync.Mutex
	inits     int
	suspends  int
	resumes   int
	closes    int
	source    beep.Streamer
	initErr   error
	resumeErr error
}

func (d *fakeDevice) Init(beep.SampleRate, int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initErr != nil {
		return d.initErr
	}
	d.inits++
	return nil
}

func (d *fakeDevice) Play(s beep.Streamer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = s
}

func (d *fakeDevice) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = nil
}

func (d *fakeDevice) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suspends++
	return nil
}

func (d *fakeDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resumes++
	return d.resumeErr
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDevice) pull(n int) [][2]float64 {
	d.mu.Lock()
	src := d.source
	d.mu.Unlock()
	buf := make([][2]float64, n)
	if src != nil {
		src.Stream(buf)
	}
	return buf
}

func block(values ...float32) Block {
	right := make([]float32, len(values))
	for i, v := range values {
		right[i] = -v
	}
	return Block{Left: values, Right: right}
}

func TestContextLifecycle(t *testing.T) {
	dev := &fakeDevice{}
	c := NewContext(dev, 44100, 100*time.Millisecond, 0)

	if c.State() != StateClosed {
		t.Fatalf("new context state = %v, want closed", c.State())
	}
	if err := c.Resume(); !errors.Is(err, ErrClosed) {
		t.Errorf("Resume() on closed context = %v, want ErrClosed", err)
	}
	if err := c.Connect(NewNode(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() on closed context = %v, want ErrClosed", err)
	}

	if err := c.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if err := c.Ensure(); err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	if dev.inits != 1 {
		t.Errorf("device initialised %d times, want 1", dev.inits)
	}
	if c.State() != StateRunning {
		t.Errorf("state = %v, want running", c.State())
	}

	if err := c.Suspend(); err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}
	if c.State() != StateSuspended {
		t.Errorf("state = %v, want suspended", c.State())
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if c.State() != StateRunning || dev.resumes != 1 {
		t.Errorf("state = %v resumes = %d, want running and 1", c.State(), dev.resumes)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.State() != StateClosed || dev.closes != 1 {
		t.Errorf("state = %v closes = %d after Close", c.State(), dev.closes)
	}

	if err := c.Ensure(); err != nil {
		t.Fatalf("Ensure() after Close error = %v", err)
	}
	if dev.inits != 2 {
		t.Errorf("device initialised %d times after reopen, want 2", dev.inits)
	}
}

func TestContextEnsureFailure(t *testing.T) {
	dev := &fakeDevice{initErr: errors.New("no audio device")}
	c := NewContext(dev, 44100, 100*time.Millisecond, 0)

	if err := c.Ensure(); err == nil {
		t.Fatal("Ensure() expected error")
	}
	if c.State() != StateClosed {
		t.Errorf("state = %v, want closed", c.State())
	}
}

func TestContextMixesConnectedNodes(t *testing.T) {
	dev := &fakeDevice{}
	c := NewContext(dev, 44100, 100*time.Millisecond, 0)
	if err := c.Ensure(); err != nil {
		t.Fatal(err)
	}

	// Nothing connected still yields a full buffer of silence
	out := dev.pull(4)
	for i, s := range out {
		if s != [2]float64{} {
			t.Fatalf("sample %d = %v, want silence", i, s)
		}
	}

	n := NewNode(0)
	n.Enqueue(block(0.5, 0.25, 0.125, 0.0625))
	n.Start()
	defer n.Stop()
	if err := c.Connect(n); err != nil {
		t.Fatal(err)
	}

	out = dev.pull(4)
	want := []float64{0.5, 0.25, 0.125, 0.0625}
	for i := range want {
		if out[i][0] != want[i] || out[i][1] != -want[i] {
			t.Errorf("sample %d = %v, want [%v %v]", i, out[i], want[i], -want[i])
		}
	}

	c.Mute(true)
	n.Enqueue(block(1, 1))
	out = dev.pull(2)
	if out[0] != [2]float64{} {
		t.Errorf("muted sample = %v, want silence", out[0])
	}
}

func TestNodeStreamsQueuedBlocks(t *testing.T) {
	n := NewNode(0)
	n.Enqueue(block(1, 2, 3))
	n.Enqueue(block(4, 5))

	buf := make([][2]float64, 4)
	if got, ok := n.Stream(buf); got != 4 || !ok {
		t.Fatalf("Stream() before Start = %d, %v", got, ok)
	}
	if buf[0] != [2]float64{} {
		t.Errorf("node emitted data before Start: %v", buf[0])
	}

	n.Start()
	defer n.Stop()

	n.Stream(buf)
	for i, want := range []float64{1, 2, 3, 4} {
		if buf[i][0] != want {
			t.Errorf("sample %d = %v, want %v", i, buf[i][0], want)
		}
	}
	if n.Queued() != 1 {
		t.Errorf("Queued() = %d, want 1", n.Queued())
	}

	n.Stream(buf)
	if buf[0][0] != 5 || buf[1][0] != 0 {
		t.Errorf("underrun buffer = %v, want 5 then silence", buf)
	}
	if n.Underruns() != 1 {
		t.Errorf("Underruns() = %d, want 1", n.Underruns())
	}
}

func TestNodePauseHoldsQueue(t *testing.T) {
	n := NewNode(0)
	n.Start()
	defer n.Stop()
	n.Enqueue(block(1, 2))

	n.Pause()
	buf := make([][2]float64, 2)
	n.Stream(buf)
	if buf[0][0] != 0 || n.Queued() != 2 {
		t.Errorf("paused node consumed data: buf=%v queued=%d", buf, n.Queued())
	}

	n.Resume()
	n.Stream(buf)
	if buf[0][0] != 1 || buf[1][0] != 2 {
		t.Errorf("resumed buffer = %v", buf)
	}
}

func TestNodeStopDetaches(t *testing.T) {
	n := NewNode(0)
	n.Start()
	n.Enqueue(block(1))
	n.Stop()
	n.Stop()

	if got, ok := n.Stream(make([][2]float64, 1)); got != 0 || ok {
		t.Errorf("Stream() after Stop = %d, %v, want 0, false", got, ok)
	}
	n.Enqueue(block(1))
	if n.Queued() != 0 {
		t.Errorf("stopped node accepted data")
	}
	if !n.Stopped() {
		t.Error("Stopped() = false")
	}
}

func TestNodeSignalsNeedData(t *testing.T) {
	n := NewNode(4)
	called := make(chan struct{}, 8)
	n.OnNeedData(func() { called <- struct{}{} })
	n.Start()
	defer n.Stop()

	n.Enqueue(block(1, 2, 3, 4, 5, 6))
	n.Stream(make([][2]float64, 1))
	select {
	case <-called:
		t.Fatal("need-data raised above low water")
	case <-time.After(20 * time.Millisecond):
	}

	n.Stream(make([][2]float64, 3))
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("need-data not raised below low water")
	}
}

func TestNewDevice(t *testing.T) {
	for _, name := range []string{"speaker", "oto", "null"} {
		if _, err := NewDevice(name); err != nil {
			t.Errorf("NewDevice(%q) error = %v", name, err)
		}
	}
	if _, err := NewDevice("alsa"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("NewDevice(alsa) error = %v, want ErrUnknownBackend", err)
	}
}

func TestNullDeviceDrains(t *testing.T) {
	d := &NullDevice{}
	if err := d.Init(44100, 4410); err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	n := NewNode(0)
	n.Start()
	defer n.Stop()
	n.Enqueue(Block{Left: make([]float32, 100), Right: make([]float32, 100)})
	d.Play(n)

	deadline := time.Now().Add(2 * time.Second)
	for n.Queued() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("null device did not pull samples")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestContextLatestAsyncRequestWins(t *testing.T) {
	dev := &fakeDevice{}
	c := NewContext(dev, 44100, 100*time.Millisecond, 0)
	if err := c.Ensure(); err != nil {
		t.Fatal(err)
	}

	for range 50 {
		c.SuspendAsync()
		c.ResumeAsync()
	}
	time.Sleep(50 * time.Millisecond)
	if c.State() != StateRunning {
		t.Errorf("state = %v, want running", c.State())
	}

	c.ResumeAsync()
	c.SuspendAsync()
	time.Sleep(50 * time.Millisecond)
	if c.State() != StateSuspended {
		t.Errorf("state = %v, want suspended", c.State())
	}
}
