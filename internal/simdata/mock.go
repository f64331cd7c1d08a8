package simdata

import (
	"fmt"
	"sync"

	"skyrelay/internal/wire"
)

// Mock implements Provider for tests: it returns a fixed (but settable)
// user position and records whatever positions are pushed back for
// other aircraft, so a test can assert on them.
type Mock struct {
	mu sync.Mutex

	name string
	pos  *wire.AircraftPosition
	err  error

	others map[uint8]wire.AircraftPosition
}

// NewMock returns a Mock that reports name as its identity and pos as
// the user's current position.
func NewMock(name string, pos wire.AircraftPosition) *Mock {
	return &Mock{name: name, pos: &pos, others: make(map[uint8]wire.AircraftPosition)}
}

func (m *Mock) Name() string       { return m.name }
func (m *Mock) Connect() error     { return nil }
func (m *Mock) Disconnect() error  { return nil }

// SetUserPosition updates the position GetUserAircraftPosition returns.
func (m *Mock) SetUserPosition(pos wire.AircraftPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos = &pos
}

// SetError makes every later GetUserAircraftPosition call fail with err,
// until SetError(nil) clears it.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Mock) GetUserAircraftPosition() (wire.AircraftPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return wire.AircraftPosition{}, m.err
	}
	if m.pos == nil {
		return wire.AircraftPosition{}, fmt.Errorf("simdata: mock has no position set")
	}
	return *m.pos, nil
}

func (m *Mock) SetOtherAircraftPosition(slotID uint8, pos wire.AircraftPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.others[slotID] = pos
	return nil
}

// OtherAircraftPosition returns the last position recorded for slotID,
// for test assertions.
func (m *Mock) OtherAircraftPosition(slotID uint8) (wire.AircraftPosition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.others[slotID]
	return pos, ok
}
