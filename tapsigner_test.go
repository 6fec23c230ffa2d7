package cktap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTapSigner(transport *scriptedTransport, authDelay int) *TapSigner {
	return &TapSigner{tapSignerLike: tapSignerLike{baseCard: baseCard{
		transport:     transport,
		codec:         newCkTapCodec(transport),
		cardPubkeyRaw: testCardPubkey(),
		authDelay:     authDelay,
	}}}
}

func TestSignFailsAuthDelayRequiredWhileLocked(t *testing.T) {
	card := newTestTapSigner(&scriptedTransport{}, 3)

	_, err := card.Sign(context.Background(), [32]byte{}, nil, "123456")
	require.Error(t, err)
	require.True(t, IsAuthDelayRequired(err))
}

func TestWaitLoopDecrementsThenUnlocks(t *testing.T) {
	transport := &scriptedTransport{responses: [][]byte{
		cborRapdu(t, waitResponse{cardResponse: cardResponse{CardNonce: make([]byte, 16)}, AuthDelay: 2}),
		cborRapdu(t, waitResponse{cardResponse: cardResponse{CardNonce: make([]byte, 16)}, AuthDelay: 1}),
		cborRapdu(t, waitResponse{cardResponse: cardResponse{CardNonce: make([]byte, 16)}, AuthDelay: 0}),
	}}
	card := newTestTapSigner(transport, 3)

	for _, want := range []int{2, 1, 0} {
		remaining, err := card.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, remaining.Seconds)
	}

	require.False(t, card.locked())
}
