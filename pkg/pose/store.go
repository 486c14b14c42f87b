package pose

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Store keeps the latest sample per device. It is safe for concurrent use and
// is the Source handed to the solvers by network ingestion (websocket, MQTT).
type Store struct {
	clock    clock.Clock
	maxAge   time.Duration
	mu       sync.RWMutex
	samples  map[Device]Sample
	received uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the clock used to stamp and age samples.
func WithClock(c clock.Clock) StoreOption {
	return func(s *Store) { s.clock = c }
}

// WithMaxAge reports samples older than d as missing. Zero disables the check.
func WithMaxAge(d time.Duration) StoreOption {
	return func(s *Store) { s.maxAge = d }
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		clock:   clock.New(),
		samples: make(map[Device]Sample),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update records a sample for device. A zero sample time is replaced by now.
func (s *Store) Update(device Device, sample Sample) {
	if sample.Time.IsZero() {
		sample.Time = s.clock.Now()
	}
	s.mu.Lock()
	s.samples[device] = sample
	s.received++
	s.mu.Unlock()
}

// Latest implements Source.
func (s *Store) Latest(device Device) (Sample, bool) {
	s.mu.RLock()
	sample, ok := s.samples[device]
	s.mu.RUnlock()
	if !ok {
		return Sample{}, false
	}
	if s.maxAge > 0 && s.clock.Since(sample.Time) > s.maxAge {
		return Sample{}, false
	}
	return sample, true
}

// Received returns the number of samples recorded since creation.
func (s *Store) Received() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.received
}
