// Package membership implements the fixed-capacity session roster: a
// 16-slot table of active members plus a short-lived expired list, used
// identically by the hub (tracking connected clients) and the client
// link (tracking other aircraft reported by the hub).
package membership

import (
	"errors"
	"sync"

	"skyrelay/internal/wire"
)

// ErrFull is returned by Add when all MaxInSession slots are occupied.
var ErrFull = errors.New("membership: catalog is full")

// Member is the behaviour a catalog entry must provide. Rather than a
// base class, the catalog is generic over any type satisfying this
// interface — the hub's session member and the client link's tracked
// aircraft both implement it independently.
type Member interface {
	UUID() uint32

	SlotID() uint8
	SetSlotID(slot uint8)

	StaleCounter() int
	IncStaleCounter()
	ResetStaleCounter()

	ReapCounter() int
	IncReapCounter()
}

// Catalog is a fixed-capacity table of active members, keyed both by
// slot (the compact index the client link hands to its simulator data
// provider) and by UUID (for
// REPORT/LEAVING lookups), plus a list of recently-removed members
// retained briefly so a rebroadcast can announce their departure.
type Catalog[M Member] struct {
	mu       sync.Mutex
	occupied [wire.MaxInSession]bool
	slots    [wire.MaxInSession]M
	byUUID   map[uint32]M
	expired  []expiredEntry[M]
}

type expiredEntry[M Member] struct {
	member      M
	reapCounter int
}

// New returns an empty Catalog.
func New[M Member]() *Catalog[M] {
	return &Catalog[M]{byUUID: make(map[uint32]M)}
}

// Add inserts m into the lowest-numbered free slot, assigning that slot
// via m.SetSlotID. It returns ErrFull if the catalog already holds
// MaxInSession members.
func (c *Catalog[M]) Add(m M) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for slot := 0; slot < wire.MaxInSession; slot++ {
		if c.occupied[slot] {
			continue
		}
		m.SetSlotID(uint8(slot))
		c.occupied[slot] = true
		c.slots[slot] = m
		c.byUUID[m.UUID()] = m
		return nil
	}
	return ErrFull
}

// Find returns the active member with the given UUID.
func (c *Catalog[M]) Find(uuid uint32) (M, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byUUID[uuid]
	return m, ok
}

// FindBySlot returns the active member occupying slot, if any.
func (c *Catalog[M]) FindBySlot(slot uint8) (M, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(slot) >= wire.MaxInSession || !c.occupied[slot] {
		var zero M
		return zero, false
	}
	return c.slots[slot], true
}

// Active returns every currently-active member, ordered by slot.
func (c *Catalog[M]) Active() []M {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]M, 0, wire.MaxInSession)
	for slot := 0; slot < wire.MaxInSession; slot++ {
		if c.occupied[slot] {
			out = append(out, c.slots[slot])
		}
	}
	return out
}

// Remove takes the member with the given UUID out of the active table
// and appends it to the expired list, freeing its slot. It reports
// whether a member with that UUID was found.
func (c *Catalog[M]) Remove(uuid uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(uuid)
}

func (c *Catalog[M]) removeLocked(uuid uint32) bool {
	m, ok := c.byUUID[uuid]
	if !ok {
		return false
	}
	delete(c.byUUID, uuid)
	c.occupied[m.SlotID()] = false
	var zero M
	c.slots[m.SlotID()] = zero
	c.expired = append(c.expired, expiredEntry[M]{member: m})
	return true
}

// CheckLapsed advances the staleness counter of every active member by
// one and removes the first of them, in slot order, whose counter now
// exceeds limit, returning it. At most one member is removed per call,
// matching the once-per-tick cadence of the hub and client link loops
// that drive it.
func (c *Catalog[M]) CheckLapsed(limit int) (M, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lapsed M
	found := false
	for slot := 0; slot < wire.MaxInSession; slot++ {
		if !c.occupied[slot] {
			continue
		}
		m := c.slots[slot]
		m.IncStaleCounter()
		if !found && m.StaleCounter() > limit {
			lapsed, found = m, true
		}
	}
	if found {
		c.removeLocked(lapsed.UUID())
	}
	return lapsed, found
}

// ReapExpired advances the reap counter of every expired member by one
// and erases at most one of them — the first whose counter exceeds
// threshold — from the expired list entirely. It returns the erased
// member, if any.
func (c *Catalog[M]) ReapExpired(threshold int) (M, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	erase := -1
	for i := range c.expired {
		c.expired[i].member.IncReapCounter()
		c.expired[i].reapCounter++
		if erase < 0 && c.expired[i].reapCounter > threshold {
			erase = i
		}
	}
	if erase >= 0 {
		m := c.expired[erase].member
		c.expired = append(c.expired[:erase], c.expired[erase+1:]...)
		return m, true
	}
	var zero M
	return zero, false
}

// ExpiredUUIDs returns the UUIDs of every member currently in the
// expired list, in the order they were removed. The hub uses this to
// populate a WORLDSTATE's expired[] section.
func (c *Catalog[M]) ExpiredUUIDs() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint32, len(c.expired))
	for i, e := range c.expired {
		out[i] = e.member.UUID()
	}
	return out
}

// Count returns the number of currently-active members.
func (c *Catalog[M]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, occ := range c.occupied {
		if occ {
			n++
		}
	}
	return n
}
