// Package mocks holds deterministic stand-ins for the clock and random source.
package mocks

import (
	"sync"

	"github.com/mcoot/dealgame/internal/dependencies/random"
)

var _ random.Random = (*MockRandom)(nil)

// MockRandom replays queued values and returns zero once a queue is drained.
// With nothing queued, generated case values take the lowest value of each
// range and every banker offer uses the minimum factor.
type MockRandom struct {
	mu     sync.Mutex
	ints   []int
	floats []float64
}

func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn pops the next queued int, reduced modulo n
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

// Float64 pops the next queued float
func (r *MockRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ints = append(r.ints, values...)
}

func (r *MockRandom) QueueFloat64(values ...float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.floats = append(r.floats, values...)
}
