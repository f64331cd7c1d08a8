package clientlink

import (
	"math"
	"sync"

	"skyrelay/internal/wire"
)

// WrapBand names the half-open domain [Q1, Q2] a circular quantity is
// considered to straddle a discontinuity across. It is a parameter
// rather than a hardcoded constant so a caller can choose a different
// band (e.g. ±180 for longitude) without touching the interpolation
// math itself.
type WrapBand struct {
	Q1, Q2 float64
}

var (
	longitudeWrapBand = WrapBand{Q1: -90, Q2: 90}
	headingWrapBand   = WrapBand{Q1: 90, Q2: 270}
	pitchRollWrapBand = WrapBand{Q1: -90, Q2: 90}
)

// predictorSample is one position observation rewritten into the
// receiver's local millisecond timeline.
type predictorSample struct {
	ts  int64
	pos wire.AircraftPosition
}

// Predictor turns a sparse, jittered stream of AircraftPosition samples
// into a continuously-queryable smoothed position for one remote
// aircraft. All exported methods are safe for concurrent use: a single
// lock protects the whole aircraft's predictor state, so a query never
// observes a half-applied update.
type Predictor struct {
	mu sync.Mutex

	tsOffset int64 // ms; only ever decreases after initialization
	haveOffset bool

	reportedPrev predictorSample
	reportedLast predictorSample

	target  predictorSample
	current predictorSample

	deltaLatPerSec float64
	deltaLonPerSec float64

	reportCount int
	distanceKm  float64
}

// wrapLerp computes a + r*(b-a) treating [a,b] as possibly straddling a
// wrap-around discontinuity bounded by band: when they do, one operand
// is shifted by a full band-width before interpolating, and the
// band-width is subtracted back out of the result. With r=1 this
// yields the "short way around" equivalent of b relative to a; with
// r>1 it extrapolates past b; with 0<r<1 it interpolates between them.
func wrapLerp(a, b, r float64, band WrapBand) float64 {
	span := 2 * (band.Q2 - band.Q1)
	aa, bb := a, b
	shifted := false

	switch {
	case a < band.Q1 && b > band.Q2:
		aa = a + span
		shifted = true
	case b < band.Q1 && a > band.Q2:
		bb = b + span
		shifted = true
	}

	result := aa + r*(bb-aa)
	if shifted {
		result -= span
	}
	return result
}

func wrapDelta(a, b float64, band WrapBand) float64 {
	span := 2 * (band.Q2 - band.Q1)
	switch {
	case a < band.Q1 && b > band.Q2:
		return b - (a + span)
	case b < band.Q1 && a > band.Q2:
		return (b + span) - a
	}
	return b - a
}

func lerp(a, b, r float64) float64 {
	return a + r*(b-a)
}

func wrapLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// rebaseTimestamp picks the representative of raw (a wrapping u32
// millisecond counter) nearest to reference, using a wrap-aware signed
// 32-bit difference. This lets the predictor do ordinary int64
// arithmetic on sender timestamps without itself wrapping every ~49.7
// days, as long as consecutive samples are within 2^31 ms of each other.
func rebaseTimestamp(raw uint32, reference int64) int64 {
	diff := int32(raw - uint32(reference))
	return reference + int64(diff)
}

// UpdateTracking ingests one newly-received sample. pos.TimestampMs is
// the sender's own monotonic frame; rcvTsMs is this receiver's local
// clock reading, in milliseconds, at the moment the sample was
// processed. userLat/userLon position the local aircraft, for the
// derived DistanceKm.
func (p *Predictor) UpdateTracking(pos wire.AircraftPosition, rcvTsMs int64, userLat, userLon float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rawTsLocal := rebaseTimestamp(pos.TimestampMs, rcvTsMs)

	if !p.haveOffset {
		p.tsOffset = rcvTsMs - rawTsLocal
		p.haveOffset = true
	} else if rcvTsMs-rawTsLocal < p.tsOffset {
		p.tsOffset--
	}
	correctedTs := rawTsLocal + p.tsOffset

	sample := predictorSample{ts: correctedTs, pos: pos}
	p.reportedPrev = p.reportedLast
	p.reportedLast = sample
	p.reportCount++

	if p.reportCount == 1 {
		p.current = sample
	}

	sampleDistanceMs := p.reportedLast.ts - p.reportedPrev.ts
	if p.reportCount < 2 || sampleDistanceMs <= 0 {
		p.target = sample
		p.deltaLatPerSec = 0
		p.deltaLonPerSec = 0
	} else {
		prev, last := p.reportedPrev.pos, p.reportedLast.pos
		lateralKm := haversineKm(prev.Latitude, prev.Longitude, last.Latitude, last.Longitude)
		speedMPerS := 1e6 * lateralKm / float64(sampleDistanceMs)

		if speedMPerS > 1000 {
			p.target = sample
			p.deltaLatPerSec = 0
			p.deltaLonPerSec = 0
		} else {
			r := float64(rcvTsMs+wire.PredictionInterceptMs-p.reportedLast.ts) / float64(sampleDistanceMs)

			target := last
			target.Latitude = lerp(prev.Latitude, last.Latitude, 1+r)
			target.Longitude = wrapLerp(prev.Longitude, last.Longitude, 1+r, longitudeWrapBand)
			target.Altitude = lerp(prev.Altitude, last.Altitude, 1+r)
			target.Heading = wrapLerp(prev.Heading, last.Heading, 1+r, headingWrapBand)
			target.Pitch = wrapLerp(prev.Pitch, last.Pitch, 1+r, pitchRollWrapBand)
			target.Roll = wrapLerp(prev.Roll, last.Roll, 1+r, pitchRollWrapBand)

			p.target = predictorSample{ts: rcvTsMs + wire.PredictionInterceptMs, pos: target}

			p.deltaLatPerSec = 1000 * (last.Latitude - prev.Latitude) / float64(sampleDistanceMs)
			p.deltaLonPerSec = 1000 * wrapDelta(prev.Longitude, last.Longitude, longitudeWrapBand) / float64(sampleDistanceMs)
		}
	}

	p.distanceKm = haversineKm(sample.pos.Latitude, sample.pos.Longitude, userLat, userLon)
}

// GetPrediction returns the smoothed position at local time nowMs,
// advancing the predictor's internal "current" state as a side effect.
func (p *Predictor) GetPrediction(nowMs int64) wire.AircraftPosition {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reportCount <= 2 || nowMs <= p.current.ts {
		return p.current.pos
	}

	out := p.current.pos

	if nowMs >= p.target.ts {
		elapsedSec := float64(nowMs-p.current.ts) / 1000
		out.Latitude = p.current.pos.Latitude + p.deltaLatPerSec*elapsedSec
		out.Longitude = wrapLongitude(p.current.pos.Longitude + p.deltaLonPerSec*elapsedSec)
	} else {
		r := float64(nowMs-p.current.ts) / float64(p.target.ts-p.current.ts)
		if r < 0 {
			r = 0
		} else if r > 1 {
			r = 1
		}
		out.Latitude = lerp(p.current.pos.Latitude, p.target.pos.Latitude, r)
		out.Altitude = lerp(p.current.pos.Altitude, p.target.pos.Altitude, r)
		out.Longitude = wrapLerp(p.current.pos.Longitude, p.target.pos.Longitude, r, longitudeWrapBand)
		out.Heading = wrapLerp(p.current.pos.Heading, p.target.pos.Heading, r, headingWrapBand)
		out.Pitch = wrapLerp(p.current.pos.Pitch, p.target.pos.Pitch, r, pitchRollWrapBand)
		out.Roll = wrapLerp(p.current.pos.Roll, p.target.pos.Roll, r, pitchRollWrapBand)
	}

	// Control surfaces and discrete switches carry no smoothing: the
	// simulator always sees the most recently reported raw values.
	out.Rudder = p.target.pos.Rudder
	out.Elevator = p.target.pos.Elevator
	out.Aileron = p.target.pos.Aileron
	out.Speedbrake = p.target.pos.Speedbrake
	out.Flaps = p.target.pos.Flaps
	out.Gear = p.target.pos.Gear
	out.Beacon = p.target.pos.Beacon
	out.Strobe = p.target.pos.Strobe
	out.Navlight = p.target.pos.Navlight
	out.Taxilight = p.target.pos.Taxilight
	out.Landlight = p.target.pos.Landlight

	p.current = predictorSample{ts: nowMs, pos: out}
	return out
}

// DistanceKm returns the most recently computed great-circle distance
// between this aircraft and the user's aircraft.
func (p *Predictor) DistanceKm() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.distanceKm
}

// ReportCount returns the number of samples ingested so far.
func (p *Predictor) ReportCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reportCount
}

// TsOffset exposes the current latency-calibration offset, for tests
// asserting it never increases.
func (p *Predictor) TsOffset() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tsOffset
}
