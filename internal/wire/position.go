package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientBuffer is returned by decode functions when fewer bytes
// remain than the fixed size being decoded.
var ErrInsufficientBuffer = errors.New("wire: insufficient buffer")

// AircraftPosition is the fundamental value exchanged on the wire: a
// trivially-copyable snapshot of one aircraft's state at a point in time.
type AircraftPosition struct {
	TimestampMs uint32 // milliseconds in the sender's monotonic frame; wraps every ~49.7 days

	Latitude  float64 // degrees
	Longitude float64 // degrees
	Altitude  float64 // metres

	Heading float64 // degrees, [0, 360)
	Pitch   float64 // degrees, (-180, 180]
	Roll    float64 // degrees, (-180, 180]

	Rudder   float64 // [-1, 1]
	Elevator float64 // [-1, 1]
	Aileron  float64 // [-1, 1]

	Speedbrake float64 // [0, 1]
	Flaps      float64 // [0, 1]

	Gear      bool
	Beacon    bool
	Strobe    bool
	Navlight  bool
	Taxilight bool
	Landlight bool
}

// Fixed-point scale factors. Encoding truncates toward zero after
// multiplying by the scale; decoding divides by the same scale.
const (
	scaleLatLon     = 1 << 23 // Q9.23
	scaleAltitude   = 1 << 8  // Q24.8
	scaleAngleU16   = 1 << 7  // Q9.7 (heading)
	scaleAngleI16   = 1 << 7  // Q9.7 (pitch, roll)
	scaleControlI8  = 127     // rudder/elevator/aileron
	scaleControlU8  = 255     // speedbrake/flaps
)

const (
	bitGear = 1 << iota
	bitBeacon
	bitStrobe
	bitNavlight
	bitTaxilight
	bitLandlight
)

// EncodedLen is the fixed wire size of an encoded AircraftPosition.
func EncodedLen() int { return aircraftPositionLen }

// Encode returns the fixed-point wire encoding of p as a new slice of
// EncodedLen() bytes. Encoding never fails: out-of-range fields simply
// truncate at the representation's bit width (see DecodeRange in the
// error-handling design — decode, not encode, is where range issues
// surface, and only as an optional clamp).
func Encode(p AircraftPosition) []byte {
	buf := make([]byte, aircraftPositionLen)

	binary.BigEndian.PutUint32(buf[0:4], p.TimestampMs)
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(p.Latitude*scaleLatLon)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(int32(p.Longitude*scaleLatLon)))
	binary.BigEndian.PutUint32(buf[12:16], uint32(int32(p.Altitude*scaleAltitude)))
	binary.BigEndian.PutUint16(buf[16:18], uint16(p.Heading*scaleAngleU16))
	binary.BigEndian.PutUint16(buf[18:20], uint16(int16(p.Pitch*scaleAngleI16)))
	binary.BigEndian.PutUint16(buf[20:22], uint16(int16(p.Roll*scaleAngleI16)))
	buf[22] = byte(int8(p.Rudder * scaleControlI8))
	buf[23] = byte(int8(p.Elevator * scaleControlI8))
	buf[24] = byte(int8(p.Aileron * scaleControlI8))
	buf[25] = byte(uint8(p.Speedbrake * scaleControlU8))
	buf[26] = byte(uint8(p.Flaps * scaleControlU8))

	var switches byte
	if p.Gear {
		switches |= bitGear
	}
	if p.Beacon {
		switches |= bitBeacon
	}
	if p.Strobe {
		switches |= bitStrobe
	}
	if p.Navlight {
		switches |= bitNavlight
	}
	if p.Taxilight {
		switches |= bitTaxilight
	}
	if p.Landlight {
		switches |= bitLandlight
	}
	buf[27] = switches
	buf[28] = 0 // reserved, kept for 29-byte alignment stated in the wire format

	return buf
}

// Decode reads a fixed-point AircraftPosition from the front of buf.
// It returns ErrInsufficientBuffer if fewer than EncodedLen() bytes remain.
// Decode does not validate semantic ranges (DecodeRange in the error
// taxonomy is not a hard failure); callers that want range-clamped output
// should apply Clamp to the result themselves.
func Decode(buf []byte) (AircraftPosition, error) {
	if len(buf) < aircraftPositionLen {
		return AircraftPosition{}, fmt.Errorf("decode aircraft position: %w", ErrInsufficientBuffer)
	}

	var p AircraftPosition
	p.TimestampMs = binary.BigEndian.Uint32(buf[0:4])
	p.Latitude = float64(int32(binary.BigEndian.Uint32(buf[4:8]))) / scaleLatLon
	p.Longitude = float64(int32(binary.BigEndian.Uint32(buf[8:12]))) / scaleLatLon
	p.Altitude = float64(int32(binary.BigEndian.Uint32(buf[12:16]))) / scaleAltitude
	p.Heading = float64(binary.BigEndian.Uint16(buf[16:18])) / scaleAngleU16
	p.Pitch = float64(int16(binary.BigEndian.Uint16(buf[18:20]))) / scaleAngleI16
	p.Roll = float64(int16(binary.BigEndian.Uint16(buf[20:22]))) / scaleAngleI16
	p.Rudder = float64(int8(buf[22])) / scaleControlI8
	p.Elevator = float64(int8(buf[23])) / scaleControlI8
	p.Aileron = float64(int8(buf[24])) / scaleControlI8
	p.Speedbrake = float64(uint8(buf[25])) / scaleControlU8
	p.Flaps = float64(uint8(buf[26])) / scaleControlU8

	switches := buf[27]
	p.Gear = switches&bitGear != 0
	p.Beacon = switches&bitBeacon != 0
	p.Strobe = switches&bitStrobe != 0
	p.Navlight = switches&bitNavlight != 0
	p.Taxilight = switches&bitTaxilight != 0
	p.Landlight = switches&bitLandlight != 0

	return p, nil
}

// Clamp returns p with its semantically-ranged fields clamped into their
// documented domains. Decode never calls this automatically; callers that
// want strict-range output (DecodeRange handling) opt in explicitly.
func Clamp(p AircraftPosition) AircraftPosition {
	p.Heading = math.Mod(math.Mod(p.Heading, 360)+360, 360)
	p.Pitch = clampf(p.Pitch, -180, 180)
	p.Roll = clampf(p.Roll, -180, 180)
	p.Rudder = clampf(p.Rudder, -1, 1)
	p.Elevator = clampf(p.Elevator, -1, 1)
	p.Aileron = clampf(p.Aileron, -1, 1)
	p.Speedbrake = clampf(p.Speedbrake, 0, 1)
	p.Flaps = clampf(p.Flaps, 0, 1)
	return p
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
