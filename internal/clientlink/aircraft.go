package clientlink

import (
	"sync"

	"skyrelay/internal/wire"
)

// trackedAircraft is the client link's view of one other session
// member: identity, slot/catalog bookkeeping, and the smoothing
// Predictor driving what gets pushed into the simulator.
type trackedAircraft struct {
	mu sync.Mutex

	uuid uint32
	slot uint8

	name     string
	callsign string

	staleCounter int
	reapCounter  int

	predictor Predictor
}

func newTrackedAircraft(uuid uint32) *trackedAircraft {
	return &trackedAircraft{uuid: uuid, slot: wire.NoSlot}
}

// membership.Member implementation.

func (a *trackedAircraft) UUID() uint32         { return a.uuid }
func (a *trackedAircraft) SlotID() uint8        { return a.slot }
func (a *trackedAircraft) SetSlotID(slot uint8) { a.slot = slot }

func (a *trackedAircraft) StaleCounter() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staleCounter
}

func (a *trackedAircraft) IncStaleCounter() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.staleCounter++
}

func (a *trackedAircraft) ResetStaleCounter() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.staleCounter = 0
}

func (a *trackedAircraft) ReapCounter() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reapCounter
}

func (a *trackedAircraft) IncReapCounter() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reapCounter++
}

// Identity/predictor accessors.

func (a *trackedAircraft) setIdentity(identity wire.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.name = identity.Name
	a.callsign = identity.Callsign
}

func (a *trackedAircraft) identity() wire.Identity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return wire.Identity{Name: a.name, Callsign: a.callsign}
}

func (a *trackedAircraft) update(pos wire.AircraftPosition, rcvTsMs int64, userLat, userLon float64) {
	a.predictor.UpdateTracking(pos, rcvTsMs, userLat, userLon)
}

func (a *trackedAircraft) predict(nowMs int64) wire.AircraftPosition {
	return a.predictor.GetPrediction(nowMs)
}

func (a *trackedAircraft) distanceKm() float64 {
	return a.predictor.DistanceKm()
}
