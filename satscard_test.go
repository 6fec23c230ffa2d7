package cktap

import (
	"context"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func cborRapdu(t *testing.T, v interface{}) []byte {
	t.Helper()
	body, err := cbor.Marshal(v)
	require.NoError(t, err)
	return rapdu(body, 0x90, 0x00)
}

func newTestSatsCard(transport *scriptedTransport, activeSlot, numSlots int) *SatsCard {
	return &SatsCard{
		baseCard: baseCard{
			transport:     transport,
			codec:         newCkTapCodec(transport),
			cardPubkeyRaw: testCardPubkey(),
		},
		activeSlot: activeSlot,
		numSlots:   numSlots,
	}
}

func TestNewAdvancesActiveSlotByExactlyOne(t *testing.T) {
	transport := &scriptedTransport{responses: [][]byte{
		cborRapdu(t, newResponse{cardResponse: cardResponse{CardNonce: make([]byte, 16)}, Slot: 3}),
		cborRapdu(t, statusResponse{
			cardResponse: cardResponse{CardNonce: make([]byte, 16)},
			Proto:        1,
			Version:      "1.0.0",
			PublicKey:    testCardPubkey(),
			Slots:        []int{3, 10},
		}),
	}}
	card := newTestSatsCard(transport, 2, 10)

	result, err := card.New(context.Background(), "123456", [32]byte{})
	require.NoError(t, err)
	require.Equal(t, 3, result.Slot)
	require.Equal(t, 2+1, card.activeSlot)

	status, err := card.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, status.ActiveSlot)
	require.Equal(t, 10, status.NumSlots)
}

func TestNewRefusesWhenSlotsExhausted(t *testing.T) {
	card := newTestSatsCard(&scriptedTransport{}, 9, 10)

	_, err := card.New(context.Background(), "123456", [32]byte{})
	require.Error(t, err)
}

// testCardPubkey returns a syntactically valid compressed secp256k1 point
// for use as a placeholder card identity key across tests that don't
// exercise ECDH or signature verification directly.
func testCardPubkey() []byte {
	return []byte{
		0x02, 0x79, 0xbe, 0x66, 0x7e, 0xf9, 0xdc, 0xbb, 0xac, 0x55, 0xa0, 0x62, 0x95, 0xce, 0x87, 0x0b,
		0x07, 0x02, 0x9b, 0xfc, 0xdb, 0x2d, 0xce, 0x28, 0xd9, 0x59, 0xf2, 0x81, 0x5b, 0x16, 0xf8, 0x17, 0x98,
	}
}
