package playback

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// Node is a streaming output node fed with blocks of rendered samples.
// When the queued sample count drops below the low-water mark the node
// raises a need-data signal, delivered to the OnNeedData handler on the
// node's own goroutine. Missing data is played as silence.
type Node struct {
	mu        sync.Mutex
	queue     []Block
	offset    int // read position within queue[0]
	queued    int
	lowWater  int
	started   bool
	paused    bool
	stopped   bool
	underruns int

	handler  func()
	needData chan struct{}
	done     chan struct{}
	once     sync.Once
}

var _ beep.Streamer = (*Node)(nil)

// NewNode creates a node that requests data while fewer than lowWater
// samples are queued.
func NewNode(lowWater int) *Node {
	return &Node{
		lowWater: lowWater,
		needData: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// OnNeedData sets the handler invoked for each need-data signal.
func (n *Node) OnNeedData(f func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = f
}

// Enqueue appends a block. The node takes ownership of its slices.
func (n *Node) Enqueue(b Block) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped || b.Len() == 0 {
		return
	}
	n.queue = append(n.queue, b)
	n.queued += b.Len()
}

// Queued returns the number of samples waiting to be played.
func (n *Node) Queued() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.queued
}

// Underruns returns how many Stream calls ran out of queued data.
func (n *Node) Underruns() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.underruns
}

// Start begins playback and starts delivering need-data signals.
func (n *Node) Start() {
	n.mu.Lock()
	if n.started || n.stopped {
		n.mu.Unlock()
		return
	}
	n.started = true
	n.mu.Unlock()

	go n.dispatch()
}

func (n *Node) dispatch() {
	for {
		select {
		case <-n.done:
			return
		case <-n.needData:
			n.mu.Lock()
			h := n.handler
			stopped := n.stopped
			n.mu.Unlock()
			if h != nil && !stopped {
				h()
			}
		}
	}
}

// Pause makes the node emit silence and hold its queue.
func (n *Node) Pause() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paused = true
}

// Resume continues playback after Pause.
func (n *Node) Resume() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paused = false
}

// Stop drops queued data and detaches the node: the next Stream call reports
// exhaustion so the mixer removes it.
func (n *Node) Stop() {
	n.mu.Lock()
	n.stopped = true
	n.queue = nil
	n.offset = 0
	n.queued = 0
	n.handler = nil
	n.mu.Unlock()

	n.once.Do(func() { close(n.done) })
}

// Stopped reports whether Stop has been called.
func (n *Node) Stopped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopped
}

func (n *Node) Err() error {
	return nil
}

func (n *Node) Stream(samples [][2]float64) (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return 0, false
	}
	if !n.started || n.paused {
		clear(samples)
		return len(samples), true
	}

	i := 0
	for i < len(samples) && len(n.queue) > 0 {
		b := n.queue[0]
		for ; i < len(samples) && n.offset < b.Len(); i++ {
			samples[i][0] = float64(b.Left[n.offset])
			samples[i][1] = float64(b.Right[n.offset])
			n.offset++
		}
		if n.offset >= b.Len() {
			n.queue[0] = Block{}
			n.queue = n.queue[1:]
			n.offset = 0
		}
	}
	n.queued -= i

	if i < len(samples) {
		n.underruns++
		clear(samples[i:])
	}

	if n.queued < n.lowWater {
		select {
		case n.needData <- struct{}{}:
		default:
		}
	}
	return len(samples), true
}
