package cktap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardIdentityStringShapeIsStable(t *testing.T) {
	pubkey := make([]byte, 33)
	pubkey[0] = 0x02
	for i := 1; i < 33; i++ {
		pubkey[i] = byte(i)
	}

	id, err := cardIdentityString(pubkey)
	require.NoError(t, err)

	assert.Len(t, id, 23) // 4 groups of 5 plus 3 dashes
	assert.Equal(t, 3, strings.Count(id, "-"))

	again, err := cardIdentityString(pubkey)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestCardIdentityStringRejectsWrongLength(t *testing.T) {
	_, err := cardIdentityString([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestSlotPaymentAddressIsMainnetBech32(t *testing.T) {
	pubkey := make([]byte, 33)
	pubkey[0] = 0x03
	for i := 1; i < 33; i++ {
		pubkey[i] = byte(2 * i)
	}

	addr, err := slotPaymentAddress(pubkey)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(addr, "bc1"))
}
