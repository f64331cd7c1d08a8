package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyrelay/internal/wire"
)

type testMember struct {
	uuid  uint32
	slot  uint8
	stale int
	reap  int
}

func (m *testMember) UUID() uint32          { return m.uuid }
func (m *testMember) SlotID() uint8         { return m.slot }
func (m *testMember) SetSlotID(slot uint8)  { m.slot = slot }
func (m *testMember) StaleCounter() int     { return m.stale }
func (m *testMember) IncStaleCounter()      { m.stale++ }
func (m *testMember) ResetStaleCounter()    { m.stale = 0 }
func (m *testMember) ReapCounter() int      { return m.reap }
func (m *testMember) IncReapCounter()       { m.reap++ }

func newCatalog() *Catalog[*testMember] {
	return New[*testMember]()
}

func TestAddAssignsLowestFreeSlot(t *testing.T) {
	c := newCatalog()
	a := &testMember{uuid: 1}
	b := &testMember{uuid: 2}
	require.NoError(t, c.Add(a))
	require.NoError(t, c.Add(b))
	assert.Equal(t, uint8(0), a.SlotID())
	assert.Equal(t, uint8(1), b.SlotID())
}

func TestAddReusesSlotAfterRemove(t *testing.T) {
	c := newCatalog()
	a := &testMember{uuid: 1}
	b := &testMember{uuid: 2}
	require.NoError(t, c.Add(a))
	require.NoError(t, c.Add(b))
	c.Remove(a.UUID())

	n := &testMember{uuid: 3}
	require.NoError(t, c.Add(n))
	assert.Equal(t, uint8(0), n.SlotID())
}

func TestAddReturnsFullAtCapacity(t *testing.T) {
	c := newCatalog()
	for i := 0; i < wire.MaxInSession; i++ {
		require.NoError(t, c.Add(&testMember{uuid: uint32(i + 1)}))
	}
	err := c.Add(&testMember{uuid: 999})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFull)
}

func TestFindAndFindBySlot(t *testing.T) {
	c := newCatalog()
	a := &testMember{uuid: 42}
	require.NoError(t, c.Add(a))

	got, ok := c.Find(42)
	require.True(t, ok)
	assert.Equal(t, uint32(42), got.UUID())

	bySlot, ok := c.FindBySlot(0)
	require.True(t, ok)
	assert.Equal(t, uint32(42), bySlot.UUID())

	_, ok = c.FindBySlot(5)
	assert.False(t, ok)
}

func TestRemoveMovesMemberToExpired(t *testing.T) {
	c := newCatalog()
	a := &testMember{uuid: 1}
	require.NoError(t, c.Add(a))

	assert.True(t, c.Remove(1))
	_, ok := c.Find(1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Count())
	assert.Contains(t, c.ExpiredUUIDs(), uint32(1))
}

func TestRemoveUnknownUUIDReturnsFalse(t *testing.T) {
	c := newCatalog()
	assert.False(t, c.Remove(999))
}

func TestCheckLapsedRemovesAtMostOnePastLimit(t *testing.T) {
	c := newCatalog()
	a := &testMember{uuid: 1}
	b := &testMember{uuid: 2}
	require.NoError(t, c.Add(a))
	require.NoError(t, c.Add(b))

	// limit=1: first tick brings both to stale=1, none lapsed yet.
	_, lapsed := c.CheckLapsed(1)
	assert.False(t, lapsed)

	// second tick: both reach stale=2 > 1; only "a" (first in slot order) is removed.
	removed, lapsed := c.CheckLapsed(1)
	require.True(t, lapsed)
	assert.Equal(t, uint32(1), removed.UUID())
	assert.Equal(t, 1, c.Count())
}

func TestResetStaleCounterPreventsLapse(t *testing.T) {
	c := newCatalog()
	a := &testMember{uuid: 1}
	require.NoError(t, c.Add(a))

	// Two ticks bring a to stale=2, one short of lapsing; without the
	// reset the next tick would take it to 3 > 2.
	c.CheckLapsed(2)
	c.CheckLapsed(2)
	a.ResetStaleCounter()
	_, lapsed := c.CheckLapsed(2)
	assert.False(t, lapsed)
}

func TestReapExpiredErasesAfterThreshold(t *testing.T) {
	c := newCatalog()
	a := &testMember{uuid: 1}
	require.NoError(t, c.Add(a))
	c.Remove(1)

	for i := 0; i < 4; i++ {
		_, erased := c.ReapExpired(4)
		assert.False(t, erased)
	}
	m, erased := c.ReapExpired(4)
	require.True(t, erased)
	assert.Equal(t, uint32(1), m.UUID())
	assert.Empty(t, c.ExpiredUUIDs())
}

func TestActiveOrderedBySlot(t *testing.T) {
	c := newCatalog()
	a := &testMember{uuid: 1}
	b := &testMember{uuid: 2}
	require.NoError(t, c.Add(a))
	require.NoError(t, c.Add(b))

	active := c.Active()
	require.Len(t, active, 2)
	assert.Equal(t, uint32(1), active[0].UUID())
	assert.Equal(t, uint32(2), active[1].UUID())
}
