package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bitbox/playback"
	"bitbox/player"
	"bitbox/wakelock"
)

type fakePlayer struct {
	mu      sync.Mutex
	state   player.State
	output  playback.State
	index   int
	resumes int
	onState func(player.State)
}

func (p *fakePlayer) State() player.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	if p.state != player.StatePlaying {
		p.mu.Unlock()
		return
	}
	p.state = player.StatePaused
	f := p.onState
	p.mu.Unlock()
	if f != nil {
		f(player.StatePaused)
	}
}

func (p *fakePlayer) OutputState() playback.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output
}

func (p *fakePlayer) ResumeAudioContext() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumes++
	p.output = playback.StateRunning
	return nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     int
	acquires int
	err      error
}

func (l *fakeLocker) Acquire(context.Context) (wakelock.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if l.err != nil {
		return nil, l.err
	}
	l.held++
	return &fakeLock{l: l}, nil
}

type fakeLock struct {
	l *fakeLocker
}

func (f *fakeLock) Release() error {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	f.l.held--
	return nil
}

func TestHiddenPausesPlayback(t *testing.T) {
	p := &fakePlayer{state: player.StatePlaying, output: playback.StateRunning, index: 2}
	locker := &fakeLocker{}
	g := NewGuard(p, locker)
	p.onState = g.PlaybackChanged

	g.PlaybackChanged(player.StatePlaying)
	if !g.Held() {
		t.Fatal("wake lock not acquired while playing")
	}

	g.SetVisibility(Hidden)
	if p.State() != player.StatePaused {
		t.Errorf("state = %v, want paused", p.State())
	}
	if p.index != 2 {
		t.Errorf("index changed to %d", p.index)
	}
	if g.Held() || locker.held != 0 {
		t.Error("wake lock held while hidden")
	}
}

func TestVisibleResumesOutputOnly(t *testing.T) {
	p := &fakePlayer{state: player.StatePlaying, output: playback.StateRunning}
	locker := &fakeLocker{}
	g := NewGuard(p, locker)
	p.onState = g.PlaybackChanged

	g.SetVisibility(Hidden)
	p.mu.Lock()
	p.output = playback.StateSuspended
	p.mu.Unlock()

	g.SetVisibility(Visible)
	if p.State() != player.StatePaused {
		t.Errorf("state = %v, want to stay paused", p.State())
	}
	if p.OutputState() != playback.StateRunning || p.resumes != 1 {
		t.Errorf("output %v after %d resumes, want running after 1", p.OutputState(), p.resumes)
	}
	if g.Held() {
		t.Error("wake lock acquired while paused")
	}
}

func TestVisibleReacquiresWhilePlaying(t *testing.T) {
	p := &fakePlayer{state: player.StatePlaying, output: playback.StateRunning}
	locker := &fakeLocker{}
	g := NewGuard(p, locker)

	g.mu.Lock()
	g.visible = false
	g.mu.Unlock()
	g.PlaybackChanged(player.StatePlaying)
	if g.Held() {
		t.Fatal("wake lock acquired while hidden")
	}

	g.SetVisibility(Visible)
	if !g.Held() {
		t.Error("wake lock not acquired on becoming visible while playing")
	}
	if p.resumes != 0 {
		t.Error("running output was resumed")
	}
}

func TestWakeLockFollowsPlayback(t *testing.T) {
	locker := &fakeLocker{}
	g := NewGuard(&fakePlayer{}, locker)

	g.PlaybackChanged(player.StatePlaying)
	g.PlaybackChanged(player.StatePlaying)
	if locker.held != 1 || locker.acquires != 1 {
		t.Errorf("held %d after %d acquires, want one lock", locker.held, locker.acquires)
	}

	for _, s := range []player.State{player.StatePaused, player.StateStopped, player.StateEnded} {
		g.PlaybackChanged(player.StatePlaying)
		g.PlaybackChanged(s)
		if g.Held() || locker.held != 0 {
			t.Errorf("wake lock held in state %v", s)
		}
	}
}

func TestWakeLockFailureSwallowed(t *testing.T) {
	locker := &fakeLocker{err: errors.New("not supported")}
	g := NewGuard(&fakePlayer{}, locker)

	g.PlaybackChanged(player.StatePlaying)
	if g.Held() {
		t.Error("Held() = true after failed acquire")
	}
	g.PlaybackChanged(player.StatePlaying)
	if locker.acquires != 2 {
		t.Errorf("acquires = %d, want retry on next transition", locker.acquires)
	}
	g.Close()
}
