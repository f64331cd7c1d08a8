package simdata

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyrelay/internal/wire"
)

func TestMockReturnsConfiguredPosition(t *testing.T) {
	pos := wire.AircraftPosition{Latitude: 1, Longitude: 2}
	m := NewMock("Mock", pos)

	got, err := m.GetUserAircraftPosition()
	require.NoError(t, err)
	assert.Equal(t, pos, got)
}

func TestMockReturnsConfiguredError(t *testing.T) {
	m := NewMock("Mock", wire.AircraftPosition{})
	m.SetError(errors.New("boom"))

	_, err := m.GetUserAircraftPosition()
	require.Error(t, err)
	assert.EqualError(t, err, "boom")
}

func TestMockRecordsOtherAircraftPositions(t *testing.T) {
	m := NewMock("Mock", wire.AircraftPosition{})
	pos := wire.AircraftPosition{Latitude: 5}
	require.NoError(t, m.SetOtherAircraftPosition(3, pos))

	got, ok := m.OtherAircraftPosition(3)
	require.True(t, ok)
	assert.Equal(t, pos, got)

	_, ok = m.OtherAircraftPosition(4)
	assert.False(t, ok)
}

func TestDemoProducesPositionsNearCenter(t *testing.T) {
	d := NewDemo("Demo", 51.5, -0.1, 5, 1000)
	require.NoError(t, d.Connect())

	pos, err := d.GetUserAircraftPosition()
	require.NoError(t, err)
	assert.InDelta(t, 51.5, pos.Latitude, 1.0)
	assert.InDelta(t, -0.1, pos.Longitude, 1.0)
	assert.Equal(t, 1000.0, pos.Altitude)
	assert.True(t, pos.Beacon)
}

func TestDemoPositionChangesOverTime(t *testing.T) {
	d := NewDemo("Demo", 0, 0, 5, 0)
	require.NoError(t, d.Connect())

	first, err := d.GetUserAircraftPosition()
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	second, err := d.GetUserAircraftPosition()
	require.NoError(t, err)

	assert.NotEqual(t, first.TimestampMs, second.TimestampMs)
}

func TestDemoSetOtherAircraftPositionDoesNotError(t *testing.T) {
	d := NewDemo("Demo", 0, 0, 1, 0)
	require.NoError(t, d.SetOtherAircraftPosition(0, wire.AircraftPosition{}))
}
