// Package clientlink implements the client side of a group-flying
// session: the JOINING/JOINED/LEAVING/GONE lifecycle, the periodic
// REPORT reporter, WORLDSTATE ingestion into a catalog of tracked
// aircraft, and the predictor (predictor.go) each tracked aircraft uses
// to smooth its reported positions between samples.
package clientlink

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"skyrelay/internal/history"
	"skyrelay/internal/membership"
	"skyrelay/internal/packetlog"
	"skyrelay/internal/seqfilter"
	"skyrelay/internal/simdata"
	"skyrelay/internal/transport"
	"skyrelay/internal/wire"
)

// State is one stage of a client's session lifecycle.
type State int

const (
	StateJoining State = iota
	StateJoined
	StateLeaving
	StateGone
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "JOINING"
	case StateJoined:
		return "JOINED"
	case StateLeaving:
		return "LEAVING"
	case StateGone:
		return "GONE"
	default:
		return "UNKNOWN"
	}
}

// nameRebroadcastReportPeriod is how many REPORTs elapse between
// identity re-announcements once JOINED.
const nameRebroadcastReportPeriod = 64

// leavingRepeatCount/leavingRepeatInterval control how many times, and
// how often, a LEAVING datagram is repeated to paper over UDP loss.
const (
	leavingRepeatCount    = 10
	leavingRepeatInterval = 3 * time.Millisecond
)

// Config configures a Link at construction.
type Config struct {
	// HubAddr is the hub's UDP address to send REPORT/LEAVING to.
	HubAddr string
	// Name and Callsign identify this client to the hub and other peers.
	Name, Callsign string
	// Passcode is opaque session metadata, folded into the session UUID seed.
	Passcode string

	Provider simdata.Provider

	PacketLogPath string
	HistoryPath   string

	Logger *slog.Logger
}

// Link is the client role: session lifecycle, the REPORT reporter, and
// the catalog of other aircraft being tracked via the predictor.
type Link struct {
	logger *slog.Logger

	provider simdata.Provider

	name     string
	callsign string

	socket  *transport.Socket
	hubAddr *net.UDPAddr
	seq     *seqfilter.Filter

	catalog *membership.Catalog[*trackedAircraft]

	packetLog *packetlog.Logger
	history   *history.Recorder

	mu            sync.Mutex
	state         State
	sessionUUID   uint32
	reportCounter uint32
	lastSeq       uint32
	lastWorldMs   time.Time
	startTime     time.Time

	stop chan struct{}
	wg   sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// New constructs and starts a Link: it binds an ephemeral UDP socket,
// resolves the hub address, and launches the receiver/sender goroutines
// plus the periodic reporter. The initial state is JOINING.
func New(cfg Config) (*Link, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hubAddr, err := net.ResolveUDPAddr("udp", cfg.HubAddr)
	if err != nil {
		return nil, fmt.Errorf("clientlink: resolve hub address: %w", err)
	}

	l := &Link{
		logger:      logger,
		provider:    cfg.Provider,
		hubAddr:     hubAddr,
		seq:         seqfilter.New(),
		catalog:     membership.New[*trackedAircraft](),
		state:       StateJoining,
		sessionUUID: newSessionUUID(cfg.Name, cfg.Callsign, cfg.Passcode),
		startTime:   time.Now(),
		lastWorldMs: time.Now(),
		stop:        make(chan struct{}),
	}
	l.name, l.callsign = cfg.Name, cfg.Callsign

	if cfg.PacketLogPath != "" {
		pl, err := packetlog.Open(cfg.PacketLogPath)
		if err != nil {
			return nil, fmt.Errorf("clientlink: open packet log: %w", err)
		}
		l.packetLog = pl
	}
	if cfg.HistoryPath != "" {
		rec, err := history.Open(cfg.HistoryPath, logger)
		if err != nil {
			return nil, fmt.Errorf("clientlink: open history store: %w", err)
		}
		l.history = rec
	}

	if err := l.provider.Connect(); err != nil {
		return nil, fmt.Errorf("clientlink: connect sim-data provider: %w", err)
	}

	socket, err := transport.Listen("0.0.0.0:0", l.onDatagram, l.onTransportFatal, logger)
	if err != nil {
		return nil, fmt.Errorf("clientlink: %w", err)
	}
	l.socket = socket

	if l.history != nil {
		l.history.RecordSession(history.KindSessionStarted, 0)
	}

	l.wg.Add(2)
	go l.reportLoop()
	go l.staleLoop()

	logger.Info("clientlink: started", "local", socket.LocalAddr(), "hub", hubAddr, "uuid", l.sessionUUID)
	return l, nil
}

func newSessionUUID(name, callsign, passcode string) uint32 {
	seed := fmt.Sprintf("%s|%s|%s|%d", name, callsign, passcode, time.Now().UnixNano())
	h := uint32(2166136261)
	for i := 0; i < len(seed); i++ {
		h ^= uint32(seed[i])
		h *= 16777619
	}
	if h == 0 {
		h = 1
	}
	return h
}

// State returns the link's current lifecycle state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SessionUUID returns this client's self-assigned session identifier.
func (l *Link) SessionUUID() uint32 {
	return l.sessionUUID
}

// LocalAddr returns the link's bound UDP address.
func (l *Link) LocalAddr() *net.UDPAddr { return l.socket.LocalAddr() }

// TrackedAircraftUUIDs returns the UUIDs of every other aircraft
// currently tracked, for status/debugging surfaces.
func (l *Link) TrackedAircraftUUIDs() []uint32 {
	active := l.catalog.Active()
	out := make([]uint32, len(active))
	for i, a := range active {
		out[i] = a.UUID()
	}
	return out
}

// Predict returns the smoothed position of a tracked aircraft at the
// given local time, if it is currently tracked.
func (l *Link) Predict(uuid uint32, nowMs int64) (wire.AircraftPosition, bool) {
	a, ok := l.catalog.Find(uuid)
	if !ok {
		return wire.AircraftPosition{}, false
	}
	return a.predict(nowMs), true
}

func (l *Link) nowMs() int64 {
	return time.Since(l.startTime).Milliseconds()
}

// --- reporter task ---

func (l *Link) reportLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(wire.ClientUpdatePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sendReport()
		}
	}
}

func (l *Link) sendReport() {
	if l.State() == StateLeaving || l.State() == StateGone {
		return
	}

	pos, err := l.provider.GetUserAircraftPosition()
	if err != nil {
		l.logger.Warn("clientlink: read user position failed", "error", err)
		return
	}
	pos.TimestampMs = uint32(l.nowMs())

	var identity *wire.Identity
	joining := l.State() == StateJoining

	l.mu.Lock()
	l.reportCounter++
	dueForIdentity := joining || l.reportCounter%nameRebroadcastReportPeriod == 0
	l.lastSeq++
	seq := l.lastSeq
	l.mu.Unlock()

	if dueForIdentity {
		identity = &wire.Identity{Name: l.name, Callsign: l.callsign}
	}

	payload := wire.EncodeReport(l.sessionUUID, pos, identity)
	datagram, err := wire.EncodeEnvelope(seq, wire.CommandReport, payload)
	if err != nil {
		l.logger.Error("clientlink: failed to encode REPORT", "error", err)
		return
	}

	l.socket.Queue(l.hubAddr, datagram, true)
	if l.packetLog != nil {
		l.packetLog.Record(packetlog.Outbound, pos.TimestampMs, l.hubAddr, datagram)
	}
}

// --- autonomous staleness watchdog ---

func (l *Link) staleLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(wire.ClientUpdatePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.checkHubTimeout()
			l.reapTrackedAircraft()
		}
	}
}

func (l *Link) checkHubTimeout() {
	l.mu.Lock()
	sinceWorld := time.Since(l.lastWorldMs)
	state := l.state
	l.mu.Unlock()

	if state == StateGone {
		return
	}
	if sinceWorld > wire.MembershipTimeout {
		l.mu.Lock()
		l.state = StateGone
		l.mu.Unlock()
		l.logger.Warn("clientlink: hub considered lost, going GONE autonomously")
	}
}

func (l *Link) reapTrackedAircraft() {
	limit := int(wire.MembershipTimeout / wire.ClientUpdatePeriod)
	if _, lapsed := l.catalog.CheckLapsed(limit); lapsed {
		l.catalog.ReapExpired(4)
	}
}

// --- inbound datagram handling ---

func (l *Link) onDatagram(from *net.UDPAddr, datagram []byte) {
	if l.packetLog != nil {
		l.packetLog.Record(packetlog.Inbound, uint32(l.nowMs()), from, datagram)
	}

	env, payload, err := wire.DecodeEnvelope(datagram)
	if err != nil {
		l.logger.Warn("clientlink: malformed datagram", "error", err)
		return
	}
	if env.Command != wire.CommandWorldstate {
		return
	}
	if !l.seq.CheckAndUpdate(from.String(), env.SequenceNumber) {
		return
	}

	ws, err := wire.DecodeWorldstate(payload)
	if err != nil {
		l.logger.Warn("clientlink: malformed WORLDSTATE", "error", err)
		return
	}

	l.mu.Lock()
	l.lastWorldMs = time.Now()
	l.mu.Unlock()

	l.ingestWorldstate(ws)
}

func (l *Link) ingestWorldstate(ws wire.Worldstate) {
	rcvMs := l.nowMs()

	userPos, err := l.provider.GetUserAircraftPosition()
	if err != nil {
		l.logger.Debug("clientlink: read user position for tracking failed", "error", err)
	}

	for _, wp := range ws.Positions {
		if wp.UUID == l.sessionUUID {
			l.markJoined()
			continue
		}

		aircraft, ok := l.catalog.Find(wp.UUID)
		if !ok {
			aircraft = newTrackedAircraft(wp.UUID)
			if err := l.catalog.Add(aircraft); err != nil {
				l.logger.Debug("clientlink: tracking table full, aircraft dropped", "uuid", wp.UUID)
				continue
			}
			if l.history != nil {
				l.history.RecordMember(history.KindMemberJoined, wp.UUID, "", l.catalog.Count())
			}
		}
		aircraft.ResetStaleCounter()
		aircraft.update(wp.Position, rcvMs, userPos.Latitude, userPos.Longitude)

		predicted := aircraft.predict(rcvMs)
		if err := l.provider.SetOtherAircraftPosition(aircraft.SlotID(), predicted); err != nil {
			l.logger.Debug("clientlink: push predicted position failed", "uuid", wp.UUID, "error", err)
		}
	}

	for _, uuid := range ws.Expired {
		if uuid == l.sessionUUID {
			continue
		}
		if l.catalog.Remove(uuid) {
			if l.history != nil {
				l.history.RecordMember(history.KindMemberLeft, uuid, "", l.catalog.Count())
			}
		}
	}

	if ws.NameUpdate != nil {
		if aircraft, ok := l.catalog.Find(ws.NameUpdate.UUID); ok {
			aircraft.setIdentity(ws.NameUpdate.Identity)
		}
	}
}

func (l *Link) markJoined() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateJoining {
		l.state = StateJoined
		l.logger.Info("clientlink: joined session", "uuid", l.sessionUUID)
	}
}

// --- departure ---

// LeaveSession transitions the link to LEAVING, emits LEAVING a handful
// of times to paper over UDP loss, then transitions to GONE. It blocks
// until that repeat sequence completes.
func (l *Link) LeaveSession() {
	l.mu.Lock()
	if l.state == StateGone {
		l.mu.Unlock()
		return
	}
	l.state = StateLeaving
	l.mu.Unlock()

	payload := wire.EncodeLeaving(l.sessionUUID)
	for i := 0; i < leavingRepeatCount; i++ {
		l.mu.Lock()
		l.lastSeq++
		seq := l.lastSeq
		l.mu.Unlock()

		datagram, err := wire.EncodeEnvelope(seq, wire.CommandLeaving, payload)
		if err == nil {
			l.socket.Queue(l.hubAddr, datagram, true)
		}
		time.Sleep(leavingRepeatInterval)
	}

	l.mu.Lock()
	l.state = StateGone
	l.mu.Unlock()
	l.logger.Info("clientlink: left session", "uuid", l.sessionUUID)
}

// Shutdown stops the reporter/watchdog loops and closes the socket, the
// packet log, and the history store. It does not itself send LEAVING;
// call LeaveSession first for a graceful departure. It is safe to call
// more than once, including concurrently with an onTransportFatal-
// triggered shutdown; only the first call does any work.
func (l *Link) Shutdown() error {
	l.shutdownOnce.Do(func() {
		close(l.stop)
		l.wg.Wait()

		if err := l.provider.Disconnect(); err != nil {
			l.logger.Warn("clientlink: sim-data disconnect failed", "error", err)
		}

		if l.history != nil {
			l.history.RecordSession(history.KindSessionEnded, l.catalog.Count())
			l.history.Close()
		}
		if l.packetLog != nil {
			l.packetLog.Close()
		}
		l.shutdownErr = l.socket.Shutdown()
	})
	return l.shutdownErr
}

// onTransportFatal is the socket's TransportFatal callback: an
// unrecoverable send or receive error terminates the owning role.
func (l *Link) onTransportFatal(err error) {
	l.logger.Error("clientlink: transport failed fatally, shutting down", "error", err)
	l.Shutdown()
}
