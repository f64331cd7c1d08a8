package hub

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyrelay/internal/wire"
)

// testClient is a bare UDP socket standing in for a session member,
// used to drive the hub from the outside without pulling in the
// client link package (which itself depends on behavior under test).
type testClient struct {
	conn *net.UDPConn
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	return &testClient{conn: conn}
}

func (c *testClient) send(t *testing.T, to *net.UDPAddr, seq uint32, cmd wire.Command, payload []byte) {
	t.Helper()
	datagram, err := wire.EncodeEnvelope(seq, cmd, payload)
	require.NoError(t, err)
	_, err = c.conn.WriteToUDP(datagram, to)
	require.NoError(t, err)
}

func (c *testClient) recvWorldstate(t *testing.T, within time.Duration) wire.Worldstate {
	t.Helper()
	buf := make([]byte, wire.MaxDatagramLen)
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(within)))
	n, _, err := c.conn.ReadFromUDP(buf)
	require.NoError(t, err)

	_, payload, err := wire.DecodeEnvelope(buf[:n])
	require.NoError(t, err)
	ws, err := wire.DecodeWorldstate(payload)
	require.NoError(t, err)
	return ws
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h, err := New(Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() { h.Shutdown() })
	return h
}

func TestSingleJoinAndFirstEcho(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(t)

	pos := wire.AircraftPosition{Latitude: 37.0, Longitude: -122.0, Altitude: 1000, Heading: 90}
	payload := wire.EncodeReport(0xAAAA1111, pos, &wire.Identity{Name: "Alice", Callsign: "AL1"})
	c.send(t, h.LocalAddr(), 1, wire.CommandReport, payload)

	ws := c.recvWorldstate(t, 2*time.Second)
	require.Len(t, ws.Positions, 1)
	assert.Equal(t, uint32(0xAAAA1111), ws.Positions[0].UUID)
	assert.InDelta(t, pos.Latitude, ws.Positions[0].Position.Latitude, 1e-6)
}

func TestAddressBindingRejection(t *testing.T) {
	h := newTestHub(t)
	c1 := newTestClient(t)
	c2 := newTestClient(t)

	pos := wire.AircraftPosition{Latitude: 1, Longitude: 2}
	payload1 := wire.EncodeReport(0xBEEF, pos, nil)
	c1.send(t, h.LocalAddr(), 1, wire.CommandReport, payload1)
	c1.recvWorldstate(t, 2*time.Second)

	impostorPos := wire.AircraftPosition{Latitude: 99, Longitude: 99}
	payload2 := wire.EncodeReport(0xBEEF, impostorPos, nil)
	c2.send(t, h.LocalAddr(), 1, wire.CommandReport, payload2)

	// The hub should keep honoring c1's reports; c2 is simply ignored.
	// Drive another tick with c1 to confirm its position (not c2's) wins.
	payload3 := wire.EncodeReport(0xBEEF, pos, nil)
	c1.send(t, h.LocalAddr(), 2, wire.CommandReport, payload3)

	ws := c1.recvWorldstate(t, 2*time.Second)
	require.Len(t, ws.Positions, 1)
	assert.InDelta(t, pos.Latitude, ws.Positions[0].Position.Latitude, 1e-6)
}

func TestGracefulDeparture(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(t)
	observer := newTestClient(t)

	observer.send(t, h.LocalAddr(), 1, wire.CommandReport, wire.EncodeReport(0xD00D, wire.AircraftPosition{}, nil))
	observer.recvWorldstate(t, 2*time.Second)

	payload := wire.EncodeReport(0xCAFE, wire.AircraftPosition{}, nil)
	c.send(t, h.LocalAddr(), 1, wire.CommandReport, payload)
	c.recvWorldstate(t, 2*time.Second)

	leaving := wire.EncodeLeaving(0xCAFE)
	c.send(t, h.LocalAddr(), 2, wire.CommandLeaving, leaving)

	// A departed member is no longer a broadcast target, so the departure
	// is observed by a member that is still seated. Skip any WORLDSTATE
	// that was already queued before the LEAVING was handled.
	var ws wire.Worldstate
	for i := 0; i < 5; i++ {
		ws = observer.recvWorldstate(t, 2*time.Second)
		if len(ws.Expired) > 0 {
			break
		}
	}
	assert.Contains(t, ws.Expired, uint32(0xCAFE))
}

func TestCapacitySeventeenthUUIDDropped(t *testing.T) {
	h := newTestHub(t)

	var clients []*testClient
	for i := 0; i < wire.MaxInSession; i++ {
		c := newTestClient(t)
		clients = append(clients, c)
		payload := wire.EncodeReport(uint32(i+1), wire.AircraftPosition{}, nil)
		c.send(t, h.LocalAddr(), 1, wire.CommandReport, payload)
	}
	for _, c := range clients {
		c.recvWorldstate(t, 2*time.Second)
	}
	assert.Equal(t, wire.MaxInSession, h.catalog.Count())

	overflow := newTestClient(t)
	payload := wire.EncodeReport(999, wire.AircraftPosition{}, nil)
	overflow.send(t, h.LocalAddr(), 1, wire.CommandReport, payload)

	// The overflow REPORT is rejected by handleReport's ErrFull branch
	// before the catalog ever gains a 999 entry, so the hub has no
	// address to broadcast WORLDSTATE to for it; waiting on
	// overflow.recvWorldstate would just block for the full deadline.
	// Confirm rejection via the catalog directly, and confirm 999 never
	// appears in a WORLDSTATE delivered to an already-seated member.
	require.Eventually(t, func() bool {
		_, ok := h.catalog.Find(999)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, wire.MaxInSession, h.catalog.Count())

	ws := clients[0].recvWorldstate(t, 2*time.Second)
	for _, p := range ws.Positions {
		assert.NotEqual(t, uint32(999), p.UUID)
	}
}

func TestOutOfOrderDatagramIgnored(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(t)

	payload := wire.EncodeReport(0x1234, wire.AircraftPosition{Latitude: 1}, nil)
	c.send(t, h.LocalAddr(), 5, wire.CommandReport, payload)
	c.recvWorldstate(t, 2*time.Second)

	stale := wire.EncodeReport(0x1234, wire.AircraftPosition{Latitude: 99}, nil)
	c.send(t, h.LocalAddr(), 3, wire.CommandReport, stale) // seq 3 < 5: dropped

	ws := c.recvWorldstate(t, 2*time.Second)
	for _, p := range ws.Positions {
		if p.UUID == 0x1234 {
			assert.NotEqual(t, 99.0, p.Position.Latitude)
		}
	}
}
