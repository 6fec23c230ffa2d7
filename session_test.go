package cktap

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEphemeralKeypairsAreDistinctAcrossManyCommands(t *testing.T) {
	const n = 200
	seen := make(map[string]bool, n)

	for i := 0; i < n; i++ {
		kp, err := newEphemeralKeypair()
		require.NoError(t, err)
		pub := string(kp.compressedPubkey())
		assert.False(t, seen[pub], "ephemeral pubkey repeated across %d generations", n)
		seen[pub] = true
	}
}

func TestECDHSharedSecretIsSymmetric(t *testing.T) {
	alicePriv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	bobPriv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	aliceShared := deriveSharedSecret(alicePriv, bobPriv.PubKey())
	bobShared := deriveSharedSecret(bobPriv, alicePriv.PubKey())

	assert.Equal(t, aliceShared, bobShared)
}

func TestSessionKeyNeverReusedAcrossTwoCommands(t *testing.T) {
	cardPriv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	ephA, err := newEphemeralKeypair()
	require.NoError(t, err)
	ephB, err := newEphemeralKeypair()
	require.NoError(t, err)

	keyA := deriveSessionKey(ephA, cardPriv.PubKey())
	keyB := deriveSessionKey(ephB, cardPriv.PubKey())

	assert.NotEqual(t, keyA, keyB)
}

func TestXorBytesRoundTrips(t *testing.T) {
	a := []byte("123456")
	key := SessionKey{}
	for i := range key {
		key[i] = byte(i + 1)
	}
	var nonce CardNonce
	for i := range nonce {
		nonce[i] = byte(i)
	}

	xcvc, err := encryptCVC(string(a), nonce, "read", key)
	require.NoError(t, err)

	mask := cvcMask(nonce, "read", key)
	back, err := xorBytes(xcvc, mask[:len(a)])
	require.NoError(t, err)
	assert.Equal(t, a, back)
}

func TestEncryptCVCBindsToCommandAndNonce(t *testing.T) {
	key := SessionKey{}
	for i := range key {
		key[i] = byte(i + 1)
	}
	var nonce CardNonce
	for i := range nonce {
		nonce[i] = byte(i)
	}

	readXCVC, err := encryptCVC("123456", nonce, "read", key)
	require.NoError(t, err)
	deriveXCVC, err := encryptCVC("123456", nonce, "derive", key)
	require.NoError(t, err)
	assert.NotEqual(t, readXCVC, deriveXCVC, "same cvc and nonce must mask differently per command")

	var otherNonce CardNonce
	for i := range otherNonce {
		otherNonce[i] = byte(i + 1)
	}
	otherNonceXCVC, err := encryptCVC("123456", otherNonce, "read", key)
	require.NoError(t, err)
	assert.NotEqual(t, readXCVC, otherNonceXCVC, "same cvc and command must mask differently per nonce")
}

func TestXorBytesRejectsLengthMismatch(t *testing.T) {
	_, err := xorBytes([]byte{1, 2, 3}, []byte{1, 2})
	assert.Error(t, err)
}

func TestDecryptPayloadWrapsSessionKey(t *testing.T) {
	key := SessionKey{}
	for i := range key {
		key[i] = byte(i)
	}
	plain := make([]byte, 40) // longer than the 32-byte session key
	for i := range plain {
		plain[i] = byte(200 + i)
	}

	cipher := make([]byte, len(plain))
	for i := range plain {
		cipher[i] = plain[i] ^ key[i%len(key)]
	}

	got := decryptPayload(cipher, key)
	assert.Equal(t, plain, got)
}
