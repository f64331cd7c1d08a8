// Package simdata abstracts the flight simulator this process is
// reporting for, mirroring the SimConnector seam the teacher uses to
// decouple its core services from any one simulator's integration API.
package simdata

import "skyrelay/internal/wire"

// Provider is the seam between a client link and whatever is producing
// the user's own aircraft position and consuming the positions of
// others. A real implementation would bridge to a simulator's own SDK
// (SimConnect, X-Plane's UDP dataref interface, and so on); this module
// ships only Mock and Demo, since a genuine simulator integration is out
// of scope.
type Provider interface {
	Name() string
	Connect() error
	Disconnect() error

	// GetUserAircraftPosition returns the current position of the
	// aircraft this process is reporting for.
	GetUserAircraftPosition() (wire.AircraftPosition, error)

	// SetOtherAircraftPosition hands a predicted position for another
	// session member, identified by its catalog slot, to the simulator
	// (or, for Mock/Demo, simply records it for inspection).
	SetOtherAircraftPosition(slotID uint8, pos wire.AircraftPosition) error
}
