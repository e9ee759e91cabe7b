package engine

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Memory is a headless Engine keeping regions in memory. User gestures are
// simulated with Draw, Click and Drag, which fire the registered callbacks
// outside the engine lock.
type Memory struct {
	mu      sync.RWMutex
	regions map[string]Region
	order   []string

	created []func(Region)
	clicked []func(Region)

	newID func() string
}

// MemoryOption configures a Memory engine
type MemoryOption func(*Memory)

// WithIDGenerator replaces the uuid based region id generator
func WithIDGenerator(fn func() string) MemoryOption {
	return func(m *Memory) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewMemory returns an empty headless engine
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		regions: make(map[string]Region),
		newID:   func() string { return "region-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddRegion materializes a region without firing region-created
func (m *Memory) AddRegion(start, end float64, style Style) (Region, error) {
	if err := ValidateSpan(start, end); err != nil {
		return Region{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r := Region{ID: m.newID(), Start: start, End: end, Style: style}
	m.regions[r.ID] = r
	m.order = append(m.order, r.ID)
	return r, nil
}

func (m *Memory) RemoveRegion(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.regions[id]; !ok {
		return unknownRegion(id)
	}
	delete(m.regions, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	return nil
}

func (m *Memory) SetOptions(id string, style Style) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.regions[id]
	if !ok {
		return unknownRegion(id)
	}
	r.Style = style
	m.regions[id] = r
	return nil
}

func (m *Memory) Region(id string) (Region, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regions[id]
	return r, ok
}

// Regions returns every region in creation order
func (m *Memory) Regions() []Region {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Region, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.regions[id])
	}
	return out
}

// Clear drops all regions, as happens when audio is reloaded
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions = make(map[string]Region)
	m.order = nil
}

func (m *Memory) OnRegionCreated(fn func(Region)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, fn)
}

func (m *Memory) OnRegionClicked(fn func(Region)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicked = append(m.clicked, fn)
}

// Draw simulates a drag selection creating a new region
func (m *Memory) Draw(start, end float64) (Region, error) {
	r, err := m.AddRegion(start, end, PendingStyle)
	if err != nil {
		return Region{}, err
	}

	m.mu.RLock()
	handlers := slices.Clone(m.created)
	m.mu.RUnlock()

	for _, fn := range handlers {
		fn(r)
	}
	return r, nil
}

// Click simulates a click on an existing region
func (m *Memory) Click(id string) error {
	m.mu.RLock()
	r, ok := m.regions[id]
	handlers := slices.Clone(m.clicked)
	m.mu.RUnlock()

	if !ok {
		return unknownRegion(id)
	}
	for _, fn := range handlers {
		fn(r)
	}
	return nil
}

// Drag moves or resizes a region. The core reads geometry lazily so no event fires.
func (m *Memory) Drag(id string, start, end float64) error {
	if err := ValidateSpan(start, end); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.regions[id]
	if !ok {
		return unknownRegion(id)
	}
	r.Start, r.End = start, end
	m.regions[id] = r
	return nil
}

var (
	_ Engine = (*Memory)(nil)
	_ Events = (*Memory)(nil)
)
