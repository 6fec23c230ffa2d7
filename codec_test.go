package cktap

import (
	"context"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandMarshalRoundTrip(t *testing.T) {
	cmd := readCommand{
		command: command{Cmd: "read"},
		auth:    auth{EphemeralPubKey: []byte{0x02, 1, 2, 3}},
		Nonce:   []byte{9, 8, 7, 6},
	}

	body, err := cbor.Marshal(cmd)
	require.NoError(t, err)

	var decoded readCommand
	require.NoError(t, strictDecMode.Unmarshal(body, &decoded))
	assert.Equal(t, cmd, decoded)
}

func TestStatusResponseRoundTrip(t *testing.T) {
	resp := statusResponse{
		cardResponse: cardResponse{CardNonce: []byte{1, 2, 3, 4}},
		Proto:        1,
		Birth:        800000,
		Slots:        []int{2, 10},
		Version:      "1.0.0",
		PublicKey:    []byte{0x02, 0x03, 0x04},
	}

	body, err := cbor.Marshal(resp)
	require.NoError(t, err)

	var decoded statusResponse
	require.NoError(t, strictDecMode.Unmarshal(body, &decoded))
	assert.Equal(t, resp, decoded)
}

func TestDecodeIntoMapsCardErrorResponse(t *testing.T) {
	body, err := cbor.Marshal(errorResponse{Error: "bad CVC", Code: int(CodeBadCvc)})
	require.NoError(t, err)

	codec := &ckTapCodec{}
	var out statusResponse
	err = codec.decodeInto(body, &out)

	require.Error(t, err)
	var cktapErr *Error
	require.ErrorAs(t, err, &cktapErr)
	assert.Equal(t, KindCkTap, cktapErr.Kind)
	assert.Equal(t, CodeBadCvc, cktapErr.Code)
}

func TestExchangePropagatesTransportFailure(t *testing.T) {
	transport := &scriptedTransport{responses: [][]byte{}}
	codec := newCkTapCodec(transport)

	var out waitResponse
	err := codec.exchange(context.Background(), waitCommand{command: command{Cmd: "wait"}}, &out)
	require.Error(t, err)
}

func TestCkTapCodeFromIntFallsBackToUnspecified(t *testing.T) {
	assert.Equal(t, CodeBadAuth, ckTapCodeFromInt(205))
	assert.Equal(t, CodeUnspecified, ckTapCodeFromInt(999))
}
