package health

import (
	"fmt"
	"sort"
	"sync"

	"fundledger/src/model"
)

// Set hands out one monitor per terminal group, creating them lazily.
type Set struct {
	mu         sync.Mutex
	cfg        Config
	remediator Remediator
	monitors   map[string]*Monitor
}

// NewSet builds an empty monitor set.
func NewSet(cfg Config, remediator Remediator) *Set {
	return &Set{
		cfg:        cfg,
		remediator: remediator,
		monitors:   make(map[string]*Monitor),
	}
}

// Monitor returns the monitor owning the given group's state.
func (s *Set) Monitor(group string) *Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[group]
	if !ok {
		m = NewMonitor(group, s.cfg, s.remediator)
		s.monitors[group] = m
	}
	return m
}

// States returns the current state of every known group, ordered by
// group key.
func (s *Set) States() []model.HealthState {
	s.mu.Lock()
	monitors := make([]*Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		monitors = append(monitors, m)
	}
	s.mu.Unlock()

	out := make([]model.HealthState, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, m.State())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

// Reset manually resets one group's monitor.
func (s *Set) Reset(group string) error {
	s.mu.Lock()
	m, ok := s.monitors[group]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown terminal group %q", group)
	}
	m.Reset()
	return nil
}
