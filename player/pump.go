package player

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"bitbox/engine"
	"bitbox/playback"
)

// Engine is the synthesis engine as seen by the player.
type Engine interface {
	SetSampleRate(rate int) error
	SetLoopCount(n int) error
	Open(path string) error
	Close() error
	Play() error
	Stop() error
	Ended() bool
	Seek(samplePos int64) error
	FillBuffer(left, right engine.Region, count int) error
	Memory() *engine.Arena
}

// Sink receives rendered blocks in order.
type Sink interface {
	Enqueue(b playback.Block)
}

// Pump moves sample blocks from the engine to the attached sink. It is
// called from the sink's need-data signal and never fails: anything missing
// makes it a no-op.
type Pump struct {
	mu         sync.Mutex
	engine     Engine
	left       engine.Region
	right      engine.Region
	hasRegions bool
	sink       Sink
	session    uint64
	active     bool

	blockSize int
	batch     int
	rearm     time.Duration
	delay     time.Duration
	clock     Clock
	last      time.Time

	// advance is resolved when the deferred advance fires, never when it is
	// scheduled.
	advance atomic.Pointer[func(session uint64)]

	logger *slog.Logger
}

// PumpOptions configures a Pump.
type PumpOptions struct {
	BlockSize    int
	BatchCount   int
	RearmWindow  time.Duration
	AdvanceDelay time.Duration
}

// NewPump creates an inactive pump for eng.
func NewPump(eng Engine, opts PumpOptions, clock Clock) *Pump {
	return &Pump{
		engine:    eng,
		blockSize: opts.BlockSize,
		batch:     opts.BatchCount,
		rearm:     opts.RearmWindow,
		delay:     opts.AdvanceDelay,
		clock:     clock,
		logger:    slog.With("component", "pump"),
	}
}

// SetRegions sets the engine memory regions blocks are rendered into.
func (p *Pump) SetRegions(left, right engine.Region) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.left, p.right = left, right
	p.hasRegions = true
}

// ClearRegions forgets the regions, returning whether any were set.
func (p *Pump) ClearRegions() (left, right engine.Region, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	left, right, ok = p.left, p.right, p.hasRegions
	p.hasRegions = false
	return left, right, ok
}

// SetAdvanceHandler installs the action run by a guarded auto-advance. It
// receives the session that observed the end of its track.
func (p *Pump) SetAdvanceHandler(f func(session uint64)) {
	if f == nil {
		p.advance.Store(nil)
		return
	}
	p.advance.Store(&f)
}

// Attach connects the pump to sink for a new session and activates it.
func (p *Pump) Attach(sink Sink, session uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
	p.session = session
	p.active = true
}

// Detach disconnects the sink. Once Detach returns no further block from the
// old session is delivered.
func (p *Pump) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = nil
	p.active = false
}

// SetActive enables or disables pumping without detaching.
func (p *Pump) SetActive(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = active
}

// Pump delivers one batch of blocks, or schedules an auto-advance when the
// engine reports the track has ended.
func (p *Pump) Pump() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active || p.engine == nil || p.sink == nil || !p.hasRegions {
		return
	}

	if p.engine.Ended() {
		p.guardedAdvance()
		return
	}

	mem := p.engine.Memory()
	for range p.batch {
		if err := p.engine.FillBuffer(p.left, p.right, p.blockSize); err != nil {
			p.logger.Debug("Failed to fill buffer", slog.Any("error", err))
			return
		}
		left, err := mem.View(p.left, p.blockSize)
		if err != nil {
			p.logger.Debug("Failed to read left region", slog.Any("error", err))
			return
		}
		right, err := mem.View(p.right, p.blockSize)
		if err != nil {
			p.logger.Debug("Failed to read right region", slog.Any("error", err))
			return
		}

		// The engine reuses its regions on the next fill
		p.sink.Enqueue(playback.Block{
			Left:  slices.Clone(left),
			Right: slices.Clone(right),
		})
	}
}

func (p *Pump) guardedAdvance() {
	now := p.clock.Now()
	if !p.last.IsZero() && now.Sub(p.last) <= p.rearm {
		return
	}
	p.last = now

	session := p.session
	p.logger.Debug("Track ended, scheduling advance", slog.Uint64("session", session))
	p.clock.AfterFunc(p.delay, func() {
		if f := p.advance.Load(); f != nil {
			(*f)(session)
		}
	})
}
