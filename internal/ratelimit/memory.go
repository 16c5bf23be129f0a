package ratelimit

import (
	"context"
	"sync"
	"time"
)

const memorySweepThreshold = 10000

// Memory is an in-process GCRA limiter for single-instance deployments and
// tests.
type Memory struct {
	rate Rate
	now  func() time.Time

	mu  sync.Mutex
	tat map[string]time.Time
}

// NewMemory builds a limiter for rate.
func NewMemory(rate Rate) (*Memory, error) {
	if err := rate.Validate(); err != nil {
		return nil, err
	}
	return &Memory{rate: rate, now: time.Now, tat: map[string]time.Time{}}, nil
}

func (m *Memory) CheckAndConsume(_ context.Context, key string) (bool, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	next, limited := gcra(m.tat[key], now, m.rate)
	if limited {
		return true, nil
	}
	m.tat[key] = next
	if len(m.tat) > memorySweepThreshold {
		m.sweep(now)
	}
	return false, nil
}

// sweep drops keys whose TAT has passed; they behave exactly like absent keys.
func (m *Memory) sweep(now time.Time) {
	for k, t := range m.tat {
		if !t.After(now) {
			delete(m.tat, k)
		}
	}
}
