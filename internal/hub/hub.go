// Package hub implements the session hub (server role): it accepts
// REPORT/LEAVING datagrams from clients, maintains the membership
// catalog, and on a fixed cadence broadcasts one WORLDSTATE datagram to
// every live member's last-known address.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"skyrelay/internal/history"
	"skyrelay/internal/membership"
	"skyrelay/internal/packetlog"
	"skyrelay/internal/seqfilter"
	"skyrelay/internal/transport"
	"skyrelay/internal/updatecheck"
	"skyrelay/internal/wire"
)

// Config configures a Hub at construction.
type Config struct {
	// ListenAddr is the UDP address to bind, e.g. ":6886" or "127.0.0.1:0".
	ListenAddr string
	// Passcode is opaque metadata carried alongside sessions; it is not
	// validated by the core (cryptographic authentication is out of scope).
	Passcode string

	// PacketLogPath, if non-empty, enables the optional wire trace (C7).
	PacketLogPath string
	// HistoryPath, if non-empty, enables the optional SQLite session
	// history recorder (C8).
	HistoryPath string

	// StatusAddr, if non-empty, starts the read-only roster HTTP
	// endpoint (C10) on this address, independent of the UDP socket.
	StatusAddr string

	// CheckUpdates, if true, runs a one-shot non-fatal update check (C9)
	// at startup and logs the result.
	CheckUpdates bool
	// Version and RepoSlug parameterize the update check.
	Version  string
	RepoSlug string

	Logger *slog.Logger
}

// Hub is the server role: membership catalog, UDP socket, and the
// periodic broadcaster that drives both.
type Hub struct {
	logger *slog.Logger

	socket  *transport.Socket
	catalog *membership.Catalog[*sessionMember]
	seq     *seqfilter.Filter

	packetLog *packetlog.Logger
	history   *history.Recorder
	statusSrv *http.Server

	startTime   time.Time
	tickCounter uint32

	stop chan struct{}
	wg   sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// New constructs and starts a Hub: it binds the UDP socket immediately
// (a bind failure is fatal, per the error-handling design) and launches
// the receiver/sender goroutines plus the periodic broadcaster.
func New(cfg Config) (*Hub, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		logger:    logger,
		catalog:   membership.New[*sessionMember](),
		seq:       seqfilter.New(),
		startTime: time.Now(),
		stop:      make(chan struct{}),
	}

	if cfg.PacketLogPath != "" {
		pl, err := packetlog.Open(cfg.PacketLogPath)
		if err != nil {
			return nil, fmt.Errorf("hub: open packet log: %w", err)
		}
		h.packetLog = pl
	}
	if cfg.HistoryPath != "" {
		rec, err := history.Open(cfg.HistoryPath, logger)
		if err != nil {
			return nil, fmt.Errorf("hub: open history store: %w", err)
		}
		h.history = rec
	}

	socket, err := transport.Listen(cfg.ListenAddr, h.onDatagram, h.onTransportFatal, logger)
	if err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}
	h.socket = socket

	if cfg.StatusAddr != "" {
		h.startStatusServer(cfg.StatusAddr)
	}

	if cfg.CheckUpdates {
		go h.runUpdateCheck(cfg.Version, cfg.RepoSlug)
	}

	if h.history != nil {
		h.history.RecordSession(history.KindSessionStarted, 0)
	}

	h.wg.Add(1)
	go h.broadcastLoop()

	logger.Info("hub started", "addr", socket.LocalAddr().String())
	return h, nil
}

// LocalAddr returns the hub's bound UDP address.
func (h *Hub) LocalAddr() *net.UDPAddr { return h.socket.LocalAddr() }

// Shutdown stops the broadcaster, then closes the history store, the
// packet log, the status server and finally the UDP socket, in that
// order. It is safe to call more
// than once, including concurrently with an onTransportFatal-triggered
// shutdown; only the first call does any work.
func (h *Hub) Shutdown() error {
	h.shutdownOnce.Do(func() {
		close(h.stop)
		h.wg.Wait()

		if h.history != nil {
			h.history.RecordSession(history.KindSessionEnded, h.catalog.Count())
			h.history.Close()
		}
		if h.packetLog != nil {
			h.packetLog.Close()
		}
		if h.statusSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			h.statusSrv.Shutdown(ctx)
		}
		h.shutdownErr = h.socket.Shutdown()
	})
	return h.shutdownErr
}

// onTransportFatal is the socket's TransportFatal callback: an
// unrecoverable send or receive error terminates the owning role.
func (h *Hub) onTransportFatal(err error) {
	h.logger.Error("hub: transport failed fatally, shutting down", "error", err)
	h.Shutdown()
}

func (h *Hub) runUpdateCheck(version, repoSlug string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := updatecheck.Check(ctx, version, repoSlug)
	if err != nil {
		h.logger.Debug("hub: update check failed", "error", err)
		return
	}
	if result.UpdateAvailable {
		h.logger.Info("update available", "current", result.CurrentVersion, "latest", result.LatestVersion, "url", result.ReleaseURL)
	} else {
		h.logger.Debug("hub: up to date", "current", result.CurrentVersion)
	}
}

// --- inbound datagram handling ---

func (h *Hub) onDatagram(from *net.UDPAddr, datagram []byte) {
	if h.packetLog != nil {
		h.packetLog.Record(packetlog.Inbound, h.nowMs(), from, datagram)
	}

	env, payload, err := wire.DecodeEnvelope(datagram)
	if err != nil {
		h.logger.Warn("hub: malformed datagram", "peer", from, "error", err)
		return
	}

	if !h.seq.CheckAndUpdate(from.String(), env.SequenceNumber) {
		h.logger.Debug("hub: out-of-order datagram dropped", "peer", from, "seq", env.SequenceNumber)
		return
	}

	switch env.Command {
	case wire.CommandReport:
		h.handleReport(from, payload)
	case wire.CommandLeaving:
		h.handleLeaving(payload)
		h.seq.Forget(from.String())
	default:
		h.logger.Warn("hub: unknown command dropped", "peer", from, "command", env.Command)
	}
}

func (h *Hub) handleReport(from *net.UDPAddr, payload []byte) {
	uuid, pos, identity, err := wire.DecodeReport(payload)
	if err != nil {
		h.logger.Warn("hub: malformed REPORT", "peer", from, "error", err)
		return
	}

	if member, ok := h.catalog.Find(uuid); ok {
		if member.Addr().String() != from.String() {
			h.logger.Debug("hub: REPORT from mismatched address ignored", "uuid", uuid, "from", from, "expected", member.Addr())
			return
		}
		member.updatePosition(pos)
		member.ResetStaleCounter()
		return
	}

	member := newSessionMember(uuid, from, pos, identity)
	if err := h.catalog.Add(member); err != nil {
		h.logger.Debug("hub: session full, REPORT dropped", "uuid", uuid, "peer", from)
		return
	}
	if h.history != nil {
		h.history.RecordMember(history.KindMemberJoined, uuid, member.callsign, h.catalog.Count())
	}
	h.logger.Info("hub: member joined", "uuid", uuid, "slot", member.SlotID(), "peer", from)
}

func (h *Hub) handleLeaving(payload []byte) {
	uuid, err := wire.DecodeLeaving(payload)
	if err != nil {
		h.logger.Warn("hub: malformed LEAVING", "error", err)
		return
	}
	if h.catalog.Remove(uuid) {
		if h.history != nil {
			h.history.RecordMember(history.KindMemberLeft, uuid, "", h.catalog.Count())
		}
		h.logger.Info("hub: member left", "uuid", uuid)
	}
}

// --- broadcaster ---

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(wire.ServerBroadcastPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *Hub) lapsedLimit() int {
	return int(wire.MembershipTimeout / wire.ServerBroadcastPeriod)
}

func (h *Hub) nameRebroadcastPeriodTicks() int {
	return int(wire.IDRebroadcastPeriod / wire.ServerBroadcastPeriod)
}

func (h *Hub) nowMs() uint32 {
	return uint32(time.Since(h.startTime).Milliseconds())
}

func (h *Hub) tick() {
	if expired, lapsed := h.catalog.CheckLapsed(h.lapsedLimit()); lapsed {
		h.logger.Info("hub: member lapsed", "uuid", expired.UUID())
		if h.history != nil {
			h.history.RecordMember(history.KindMemberLeft, expired.UUID(), "", h.catalog.Count())
		}
	}
	h.catalog.ReapExpired(4)

	active := h.catalog.Active()

	ws := wire.Worldstate{
		SessionTimeMs: h.nowMs(),
		Expired:       h.catalog.ExpiredUUIDs(),
	}
	for _, m := range active {
		pos, pending := m.takePendingPosition()
		if !pending {
			continue
		}
		ws.Positions = append(ws.Positions, wire.WorldstatePosition{UUID: m.UUID(), Position: pos})
	}

	periodTicks := h.nameRebroadcastPeriodTicks()
	for _, m := range active {
		if m.dueForNameBroadcast(periodTicks) {
			id := m.identity()
			ws.NameUpdate = &wire.WorldstateNameUpdate{UUID: m.UUID(), Identity: id}
			break
		}
	}

	payload := wire.EncodeWorldstate(ws)
	if len(payload) > wire.MaxPayloadLen && ws.NameUpdate != nil {
		// The name_update is only carried when payload space remains.
		ws.NameUpdate = nil
		payload = wire.EncodeWorldstate(ws)
	}
	datagram, err := wire.EncodeEnvelope(h.tickCounter, wire.CommandWorldstate, payload)
	if err != nil {
		h.logger.Error("hub: failed to encode WORLDSTATE", "error", err)
		return
	}
	h.tickCounter++

	for _, m := range active {
		addr := m.Addr()
		h.socket.Queue(addr, datagram, false)
		if h.packetLog != nil {
			h.packetLog.Record(packetlog.Outbound, h.nowMs(), addr, datagram)
		}
	}
	h.socket.SendAll()

	if h.history != nil {
		h.history.RecordSession(history.KindTick, len(active))
	}
}

// --- status surface (C10) ---

type rosterEntry struct {
	UUID     uint32  `json:"uuid"`
	Callsign string  `json:"callsign"`
	Slot     uint8   `json:"slot"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Alt      float64 `json:"alt"`
}

func (h *Hub) startStatusServer(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/roster", h.serveRoster)

	h.statusSrv = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := h.statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Warn("hub: status server failed", "error", err)
		}
	}()
}

func (h *Hub) serveRoster(w http.ResponseWriter, r *http.Request) {
	active := h.catalog.Active()
	roster := make([]rosterEntry, 0, len(active))
	for _, m := range active {
		m.mu.Lock()
		roster = append(roster, rosterEntry{
			UUID:     m.uuid,
			Callsign: m.callsign,
			Slot:     m.slot,
			Lat:      m.position.Latitude,
			Lon:      m.position.Longitude,
			Alt:      m.position.Altitude,
		})
		m.mu.Unlock()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(roster)
}
