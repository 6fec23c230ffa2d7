package cktap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport replays a fixed sequence of raw R-APDU responses,
// regardless of what command APDU it is handed, to exercise the GET
// RESPONSE chaining logic in isolation from USB/CCID.
type scriptedTransport struct {
	responses [][]byte
	sent      [][]byte
	i         int
}

func (s *scriptedTransport) transmitAPDU(ctx context.Context, cmd []byte) ([]byte, error) {
	s.sent = append(s.sent, append([]byte{}, cmd...))
	if s.i >= len(s.responses) {
		return nil, newErr(KindApduStatus, "scriptedTransport exhausted", nil)
	}
	r := s.responses[s.i]
	s.i++
	return r, nil
}

func (s *scriptedTransport) close() {}

func rapdu(data []byte, sw1, sw2 byte) []byte {
	return append(append([]byte{}, data...), sw1, sw2)
}

func TestGetResponseChainingAcrossThreeHops(t *testing.T) {
	full := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	transport := &scriptedTransport{
		responses: [][]byte{
			rapdu(full[0:4], 0x61, 0x04),
			rapdu(full[4:8], 0x61, 0x02),
			rapdu(full[8:10], 0x90, 0x00),
		},
	}
	session := &apduSession{transport: transport}

	payload, err := session.transceive(context.Background(), []byte{0x00, 0xCB, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, full, payload)
	assert.Len(t, transport.sent, 3)
}

func TestGetResponseChainingMatchesSingleResponse(t *testing.T) {
	full := []byte{0xAA, 0xBB, 0xCC, 0xDD}

	chained := &scriptedTransport{responses: [][]byte{
		rapdu(full[:2], 0x61, 0x02),
		rapdu(full[2:], 0x90, 0x00),
	}}
	single := &scriptedTransport{responses: [][]byte{rapdu(full, 0x90, 0x00)}}

	chainedPayload, err := (&apduSession{transport: chained}).transceive(context.Background(), []byte{0x00, 0xCB})
	require.NoError(t, err)
	singlePayload, err := (&apduSession{transport: single}).transceive(context.Background(), []byte{0x00, 0xCB})
	require.NoError(t, err)

	assert.Equal(t, singlePayload, chainedPayload)
}

func TestTransceiveFailsOnFatalStatusWord(t *testing.T) {
	transport := &scriptedTransport{responses: [][]byte{rapdu(nil, 0x6A, 0x82)}}
	session := &apduSession{transport: transport}

	_, err := session.transceive(context.Background(), []byte{0x00, 0xA4})
	require.Error(t, err)

	var cktapErr *Error
	require.ErrorAs(t, err, &cktapErr)
	assert.Equal(t, KindApduStatus, cktapErr.Kind)
}
