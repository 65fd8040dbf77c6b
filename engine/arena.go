package engine

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrArenaFull     = errors.New("engine: no free memory region")
	ErrRegionInvalid = errors.New("engine: invalid memory region")
)

// Region is an opaque handle to one fixed-size sample region owned by an Arena.
type Region int

// Arena is the engine's sample memory: a fixed set of pre-allocated float32
// regions addressed by slot. A view returned by View stays valid only until
// the next write into the same region.
type Arena struct {
	mu      sync.Mutex
	slotLen int
	slots   [][]float32
	used    []bool
}

// NewArena allocates slots regions of slotLen samples each.
func NewArena(slots, slotLen int) *Arena {
	a := &Arena{
		slotLen: slotLen,
		slots:   make([][]float32, slots),
		used:    make([]bool, slots),
	}
	for i := range a.slots {
		a.slots[i] = make([]float32, slotLen)
	}
	return a
}

// SlotLen returns the capacity of every region in samples.
func (a *Arena) SlotLen() int {
	return a.slotLen
}

// Alloc reserves a free region.
func (a *Arena) Alloc() (Region, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, used := range a.used {
		if !used {
			a.used[i] = true
			return Region(i), nil
		}
	}
	return -1, ErrArenaFull
}

// Free releases a region back to the arena.
func (a *Arena) Free(r Region) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.valid(r) {
		a.used[r] = false
	}
}

// View returns the first n samples of a region.
func (a *Arena) View(r Region, n int) ([]float32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.valid(r) || !a.used[r] {
		return nil, ErrRegionInvalid
	}
	if n < 0 || n > a.slotLen {
		return nil, fmt.Errorf("engine: view of %d samples exceeds region size %d", n, a.slotLen)
	}
	return a.slots[r][:n], nil
}

func (a *Arena) valid(r Region) bool {
	return r >= 0 && int(r) < len(a.slots)
}
