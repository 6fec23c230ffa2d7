package cktap

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyCompactSignatureMutationFlipsResult(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("hello tap card"))
	sig := ecdsa.Sign(priv, digest[:])
	r, s := sig.R(), sig.S()
	rBytes, sBytes := r.Bytes(), s.Bytes()
	raw := append(rBytes[:], sBytes[:]...)
	require.Len(t, raw, 64)

	require.NoError(t, verifyCompactSignature(raw, digest, priv.PubKey()))

	mutated := append([]byte{}, raw...)
	mutated[0] ^= 0x01
	assert.Error(t, verifyCompactSignature(mutated, digest, priv.PubKey()))
}

func TestReadDigestMatchesSpecConstruction(t *testing.T) {
	var cardNonce CardNonce
	var hostNonce HostNonce
	for i := range cardNonce {
		cardNonce[i] = byte(i)
	}
	for i := range hostNonce {
		hostNonce[i] = byte(0x10 + i)
	}
	pubkey := []byte{0x02, 0x03, 0x04}

	want := sha256.Sum256(append(append(append(append([]byte("OPENDIME"), cardNonce[:]...), hostNonce[:]...), byte(3)), pubkey...))
	got := readDigest(cardNonce, hostNonce, 3, pubkey)
	assert.Equal(t, want, got)
}

func TestRecoveryIDFromWireOffsetTable(t *testing.T) {
	assert.Equal(t, byte(27), recoveryIDFromWire(39))
	assert.Equal(t, byte(30), recoveryIDFromWire(42))
	assert.Equal(t, byte(27), recoveryIDFromWire(27))
	assert.Equal(t, byte(30), recoveryIDFromWire(30))
}

func TestVerifyCertificateChainRecoversToFactoryRoot(t *testing.T) {
	cardPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	rootPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	digest := sha256.Sum256(cardPriv.PubKey().SerializeCompressed())
	sig := ecdsa.SignCompact(rootPriv, digest[:], false)

	err = verifyCertificateChain(
		cardPriv.PubKey().SerializeCompressed(),
		[][]byte{sig},
		rootPriv.PubKey().SerializeCompressed(),
	)
	require.NoError(t, err)
}

func TestVerifyCertificateChainRejectsWrongRoot(t *testing.T) {
	cardPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	rootPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	otherRootPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	digest := sha256.Sum256(cardPriv.PubKey().SerializeCompressed())
	sig := ecdsa.SignCompact(rootPriv, digest[:], false)

	err = verifyCertificateChain(
		cardPriv.PubKey().SerializeCompressed(),
		[][]byte{sig},
		otherRootPriv.PubKey().SerializeCompressed(),
	)
	assert.Error(t, err)
	assert.True(t, IsCertChainInvalid(err))
}
