package hub

import (
	"net"
	"sync"

	"skyrelay/internal/wire"
)

// sessionMember is the hub's view of one connected client: identity, the
// last-reported position, its authoritative source address, and the
// lifecycle counters the membership catalog drives.
type sessionMember struct {
	mu sync.Mutex

	uuid uint32
	slot uint8

	addr     *net.UDPAddr
	name     string
	callsign string

	position         wire.AircraftPosition
	pendingBroadcast bool

	staleCounter           int
	reapCounter            int
	nameBroadcastCountdown int
}

func newSessionMember(uuid uint32, addr *net.UDPAddr, pos wire.AircraftPosition, identity *wire.Identity) *sessionMember {
	m := &sessionMember{
		uuid:             uuid,
		addr:             addr,
		position:         pos,
		pendingBroadcast: true,
		slot:             wire.NoSlot,
	}
	if identity != nil {
		m.name = identity.Name
		m.callsign = identity.Callsign
	}
	return m
}

// membership.Member implementation.

func (m *sessionMember) UUID() uint32         { return m.uuid }
func (m *sessionMember) SlotID() uint8        { return m.slot }
func (m *sessionMember) SetSlotID(slot uint8) { m.slot = slot }

func (m *sessionMember) StaleCounter() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.staleCounter
}

func (m *sessionMember) IncStaleCounter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleCounter++
}

func (m *sessionMember) ResetStaleCounter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleCounter = 0
}

func (m *sessionMember) ReapCounter() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reapCounter
}

func (m *sessionMember) IncReapCounter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapCounter++
}

// Hub-specific accessors, each guarded by the member's own lock so a
// position update can proceed concurrently with a broadcast tick
// reading uuid/slot/address.

func (m *sessionMember) Addr() *net.UDPAddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

func (m *sessionMember) updatePosition(pos wire.AircraftPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = pos
	m.pendingBroadcast = true
}

// takePendingPosition returns the member's position and whether a
// broadcast is due, clearing the pending flag (consuming it) as it does.
func (m *sessionMember) takePendingPosition() (wire.AircraftPosition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, pending := m.position, m.pendingBroadcast
	m.pendingBroadcast = false
	return pos, pending
}

// dueForNameBroadcast decrements the countdown and reports whether it
// has reached zero, resetting it to period ticks if so.
func (m *sessionMember) dueForNameBroadcast(periodTicks int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nameBroadcastCountdown--
	if m.nameBroadcastCountdown > 0 {
		return false
	}
	m.nameBroadcastCountdown = periodTicks
	return true
}

func (m *sessionMember) identity() wire.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return wire.Identity{Name: m.name, Callsign: m.callsign}
}
