package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	datagram, err := EncodeEnvelope(42, CommandReport, payload)
	require.NoError(t, err)
	assert.Len(t, datagram, EnvelopeLen()+len(payload))

	env, gotPayload, err := DecodeEnvelope(datagram)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), env.SequenceNumber)
	assert.Equal(t, CommandReport, env.Command)
	assert.Equal(t, uint16(len(payload)), env.PayloadLength)
	assert.Equal(t, payload, gotPayload)
}

func TestEnvelopeHeaderIsEightBytes(t *testing.T) {
	datagram, err := EncodeEnvelope(0, CommandWorldstate, nil)
	require.NoError(t, err)
	assert.Len(t, datagram, 8)
}

func TestEncodeEnvelopeRejectsOversizePayload(t *testing.T) {
	_, err := EncodeEnvelope(1, CommandReport, make([]byte, MaxPayloadLen+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatagramMalformed)
}

func TestDecodeEnvelopeTooShort(t *testing.T) {
	_, _, err := DecodeEnvelope([]byte{1, 2, 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatagramMalformed)
}

func TestDecodeEnvelopeDeclaredLengthExceedsAvailable(t *testing.T) {
	datagram := make([]byte, 8)
	datagram[6] = 0
	datagram[7] = 10 // declares 10 bytes of payload but none follow
	_, _, err := DecodeEnvelope(datagram)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatagramMalformed)
}

func TestDecodeEnvelopeAcceptsTrailingSlack(t *testing.T) {
	// A datagram may be longer than header+payload_length; only the
	// declared payload is sliced out.
	datagram := make([]byte, 20)
	datagram[6] = 0
	datagram[7] = 4
	env, payload, err := DecodeEnvelope(datagram)
	require.NoError(t, err)
	assert.Equal(t, uint16(4), env.PayloadLength)
	assert.Len(t, payload, 4)
}
