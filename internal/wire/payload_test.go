package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRoundTripWithoutIdentity(t *testing.T) {
	pos := samplePosition()
	buf := EncodeReport(7, pos, nil)
	assert.Len(t, buf, 4+aircraftPositionLen)

	uuid, got, identity, err := DecodeReport(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), uuid)
	assert.Nil(t, identity)
	assert.Equal(t, pos.TimestampMs, got.TimestampMs)
}

func TestReportRoundTripWithIdentity(t *testing.T) {
	pos := samplePosition()
	identity := &Identity{Name: "Jane Pilot", Callsign: "SKY123"}
	buf := EncodeReport(9, pos, identity)

	uuid, _, got, err := DecodeReport(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), uuid)
	require.NotNil(t, got)
	assert.Equal(t, "Jane Pilot", got.Name)
	assert.Equal(t, "SKY123", got.Callsign)
}

func TestReportTruncatesOverlongIdentity(t *testing.T) {
	long := ""
	for i := 0; i < MaxIdentityLen+10; i++ {
		long += "x"
	}
	buf := EncodeReport(1, samplePosition(), &Identity{Name: long, Callsign: long})
	_, _, got, err := DecodeReport(buf)
	require.NoError(t, err)
	assert.Len(t, got.Name, MaxIdentityLen)
	assert.Len(t, got.Callsign, MaxIdentityLen)
}

func TestDecodeReportInsufficientBuffer(t *testing.T) {
	_, _, _, err := DecodeReport(make([]byte, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientBuffer)
}

func TestDecodeReportMissingNulTerminator(t *testing.T) {
	buf := EncodeReport(1, samplePosition(), nil)
	buf = append(buf, 'x', 'y') // trailing bytes with no NUL
	_, _, _, err := DecodeReport(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatagramMalformed)
}

func TestLeavingRoundTrip(t *testing.T) {
	buf := EncodeLeaving(123)
	assert.Len(t, buf, 4)
	uuid, err := DecodeLeaving(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(123), uuid)
}

func TestDecodeLeavingInsufficientBuffer(t *testing.T) {
	_, err := DecodeLeaving([]byte{1, 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientBuffer)
}

func TestWorldstateRoundTripEmpty(t *testing.T) {
	ws := Worldstate{SessionTimeMs: 5000}
	buf := EncodeWorldstate(ws)
	assert.Len(t, buf, 6)

	got, err := DecodeWorldstate(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(5000), got.SessionTimeMs)
	assert.Empty(t, got.Expired)
	assert.Empty(t, got.Positions)
	assert.Nil(t, got.NameUpdate)
}

func TestWorldstateRoundTripFull(t *testing.T) {
	ws := Worldstate{
		SessionTimeMs: 42,
		Expired:       []uint32{10, 11},
		Positions: []WorldstatePosition{
			{UUID: 1, Position: samplePosition()},
			{UUID: 2, Position: AircraftPosition{Heading: 90}},
		},
		NameUpdate: &WorldstateNameUpdate{
			UUID:     2,
			Identity: Identity{Name: "Bob", Callsign: "BOB1"},
		},
	}
	buf := EncodeWorldstate(ws)
	assert.Equal(t, byte(2), buf[4])
	assert.Equal(t, byte(2), buf[5])

	got, err := DecodeWorldstate(buf)
	require.NoError(t, err)
	assert.Equal(t, ws.Expired, got.Expired)
	require.Len(t, got.Positions, 2)
	assert.Equal(t, uint32(1), got.Positions[0].UUID)
	assert.Equal(t, uint32(2), got.Positions[1].UUID)
	require.NotNil(t, got.NameUpdate)
	assert.Equal(t, uint32(2), got.NameUpdate.UUID)
	assert.Equal(t, "Bob", got.NameUpdate.Identity.Name)
	assert.Equal(t, "BOB1", got.NameUpdate.Identity.Callsign)
}

func TestDecodeWorldstateCountsExceedAvailable(t *testing.T) {
	buf := make([]byte, 6)
	buf[5] = 1 // claims one position that isn't there
	_, err := DecodeWorldstate(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientBuffer)
}

func TestDecodeWorldstateTooShortForHeader(t *testing.T) {
	_, err := DecodeWorldstate(make([]byte, 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientBuffer)
}
