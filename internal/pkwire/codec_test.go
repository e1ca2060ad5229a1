package pkwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, msg Message) {
	t.Helper()
	encoded, err := Encode(msg)
	require.NoError(t, err)

	decoded, n, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, msg, decoded)

	// re-encoding the decoded message must reproduce the exact bytes
	// (invariant 4: decode-then-encode is byte-identical).
	reencoded, err := Encode(decoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded)
}

func TestRoundTrip(t *testing.T) {
	roundTrip(t, OpenPortRequest{RequestID: 1, RequestedPort: 0})
	roundTrip(t, OpenPortRequest{RequestID: 2, RequestedPort: 2917})
	roundTrip(t, OpenPortResponse{RequestID: 1, Result: 0, Port: 16384})
	roundTrip(t, OpenPortResponse{RequestID: 1, Result: 7})
	roundTrip(t, ClosePortRequest{RequestID: 2, Port: 16384})
	roundTrip(t, ClosePortResponse{RequestID: 2, Result: 0, Port: 16384})
	roundTrip(t, SendMessage{Source: 16384, Destination: 16384, Payload: []byte("ping")})
	roundTrip(t, SendMessage{Source: 1, Destination: 2, Payload: nil})
	roundTrip(t, SendMessage{Source: 1, Destination: 2, Payload: []byte("x")})
	roundTrip(t, DeliverMessage{Source: 16384, Destination: 16384, Payload: []byte("ping")})
	roundTrip(t, Reboot{})
	roundTrip(t, Shutdown{})
}

func TestReservedChunkTypesPassThroughOpaquely(t *testing.T) {
	roundTrip(t, ReservedFrame{Kind: TypeSendChunk, Body: []byte{1, 2, 3, 4}})
	roundTrip(t, ReservedFrame{Kind: TypeDeliverChunk, Body: []byte{}})
}

func TestDecodeNeedsMoreBytes(t *testing.T) {
	full, err := Encode(OpenPortRequest{RequestID: 1, RequestedPort: 0})
	require.NoError(t, err)

	for n := 0; n < len(full); n++ {
		_, consumed, err := Decode(full[:n])
		assert.ErrorIs(t, err, ErrNeedMore)
		assert.Equal(t, 0, consumed)
	}
}

func TestDecodeSegmentedAtEveryOffset(t *testing.T) {
	send, err := Encode(SendMessage{Source: 1, Destination: 2, Payload: []byte("hello world!")})
	require.NoError(t, err)

	for split := 0; split <= len(send); split++ {
		var buf []byte
		buf = append(buf, send[:split]...)
		_, n, err := Decode(buf)
		if split < len(send) {
			assert.ErrorIs(t, err, ErrNeedMore, "split=%d", split)
			continue
		}
		require.NoError(t, err, "split=%d", split)
		assert.Equal(t, len(send), n)
	}
}

func TestDecodeMalformed(t *testing.T) {
	full, err := Encode(OpenPortRequest{RequestID: 1, RequestedPort: 0})
	require.NoError(t, err)

	bad := append([]byte(nil), full...)
	bad[0] = 2 // bad version
	_, _, err = Decode(bad)
	assert.ErrorIs(t, err, ErrMalformed)

	bad = append([]byte(nil), full...)
	bad[1] = 9 // bad header_length
	_, _, err = Decode(bad)
	assert.ErrorIs(t, err, ErrMalformed)

	bad = append([]byte(nil), full...)
	bad[2] = 200 // unknown type
	_, _, err = Decode(bad)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncodePayloadPadding(t *testing.T) {
	// 4-byte payload needs no padding; frame length is exactly 28+4.
	encoded, err := Encode(SendMessage{Source: 1, Destination: 2, Payload: []byte("ping")})
	require.NoError(t, err)
	assert.Equal(t, 32, len(encoded))

	// 1-byte payload is padded to 4.
	encoded, err = Encode(SendMessage{Source: 1, Destination: 2, Payload: []byte("p")})
	require.NoError(t, err)
	assert.Equal(t, 28+4, len(encoded))
}
