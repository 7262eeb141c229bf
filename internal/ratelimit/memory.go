package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/barberconnect/internal/clock"
)

// sweepEvery controls how often expired windows are dropped from memory.
const sweepEvery = 1024

type window struct {
	count   int
	resetAt time.Time
}

// MemoryWindow keeps counters in process memory. Counters do not survive a
// restart and are not shared between instances.
type MemoryWindow struct {
	clock clock.Clock

	mu      sync.Mutex
	windows map[string]*window
	calls   int
}

func NewMemoryWindow(c clock.Clock) *MemoryWindow {
	if c == nil {
		c = clock.New()
	}
	return &MemoryWindow{
		clock:   c,
		windows: make(map[string]*window),
	}
}

func (m *MemoryWindow) Allow(ctx context.Context, key string, policy Policy) (*Result, error) {
	if key == "" {
		return nil, errors.New("rate limiter key is empty")
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}

	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweep(now)
	}

	w, ok := m.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(policy.Window)}
		m.windows[key] = w
		return newResult(policy, w.count, w.resetAt, now), nil
	}

	w.count++
	return newResult(policy, w.count, w.resetAt, now), nil
}

func (m *MemoryWindow) sweep(now time.Time) {
	for key, w := range m.windows {
		if now.After(w.resetAt) {
			delete(m.windows, key)
		}
	}
}

// Len reports how many windows are tracked.
func (m *MemoryWindow) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
