package cktap

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// CardNonce is the 16-byte freshness value a card returns in every response.
type CardNonce [16]byte

// HostNonce is the 16-byte freshness value the host generates per command.
type HostNonce [16]byte

// SessionKey is SHA-256 of the ECDH shared secret between an ephemeral host
// key and the card's current public key. It is used exactly once, as an
// XOR pad for the CVC and any encrypted response payload.
type SessionKey [32]byte

func randomNonce16() ([16]byte, error) {
	var n [16]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, newErr(KindTransportIO, "generate nonce", err)
	}
	return n, nil
}

// newHostNonce returns a fresh 16-byte host nonce: exactly one fresh
// HostNonce is introduced per authenticated command.
func newHostNonce() (HostNonce, error) {
	n, err := randomNonce16()
	return HostNonce(n), err
}

// ephemeralKeypair is a fresh secp256k1 key pair generated per authenticated
// command. It is zeroized once the command completes.
type ephemeralKeypair struct {
	priv *secp256k1.PrivateKey
}

func newEphemeralKeypair() (*ephemeralKeypair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, newErr(KindTransportIO, "generate ephemeral key", err)
	}
	return &ephemeralKeypair{priv: priv}, nil
}

// compressedPubkey returns the 33-byte compressed epubkey sent to the card.
func (k *ephemeralKeypair) compressedPubkey() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// zeroize scrubs the private scalar from memory. Called on every exit path
// once the session using this key is done.
func (k *ephemeralKeypair) zeroize() {
	if k == nil || k.priv == nil {
		return
	}
	k.priv.Zero()
}

// deriveSharedSecret performs ECDH between an ephemeral private key and the
// card's public key using raw scalar multiplication. It returns the shared
// point in 33-byte compressed form (0x02/0x03 parity prefix followed by the
// x-coordinate); the caller hashes it before use as a key.
func deriveSharedSecret(ephemeral *secp256k1.PrivateKey, cardPub *secp256k1.PublicKey) []byte {
	var point, result secp256k1.JacobianPoint
	cardPub.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(&ephemeral.Key, &point, &result)
	result.ToAffine()
	xBytes := result.X.Bytes()

	y := new(big.Int).SetBytes(result.Y.Bytes()[:])
	parity := new(big.Int).And(y, big.NewInt(0x01))
	prefix := new(big.Int).Or(parity, big.NewInt(0x02))

	shared := append(prefix.Bytes(), xBytes[:]...)
	return shared
}

// deriveSessionKey computes SessionKey = SHA-256(ECDH(ephemeral, cardPub)).
func deriveSessionKey(ephemeral *ephemeralKeypair, cardPub *secp256k1.PublicKey) SessionKey {
	shared := deriveSharedSecret(ephemeral.priv, cardPub)
	return sha256.Sum256(shared)
}

// xorBytes XORs a and b, which must be the same length.
func xorBytes(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, newErr(KindTransportIO, "xor operand length mismatch", nil)
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out, nil
}

// cvcMask computes session_key XOR sha256(card_nonce || cmd), binding the
// mask to both the session key and the specific command/nonce pair it
// authenticates.
func cvcMask(cardNonce CardNonce, cmd string, key SessionKey) []byte {
	md := sha256.Sum256(append(append([]byte{}, cardNonce[:]...), cmd...))
	mask := make([]byte, len(key))
	for i := range key {
		mask[i] = key[i] ^ md[i]
	}
	return mask
}

// encryptCVC computes xcvc = cvc XOR mask[:len(cvc)]. The mask binds the
// ciphertext to cardNonce and cmd, so sending it consumes the card's
// current nonce: every authenticated command consumes exactly one
// CardNonce.
func encryptCVC(cvc string, cardNonce CardNonce, cmd string, key SessionKey) ([]byte, error) {
	cvcBytes := []byte(cvc)
	if len(cvcBytes) > len(key) {
		return nil, newErr(KindCkTap, "cvc longer than session key", nil)
	}
	mask := cvcMask(cardNonce, cmd, key)
	return xorBytes(cvcBytes, mask[:len(cvcBytes)])
}

// decryptPayload XORs an encrypted response field with the session key
// (truncated or repeated to the field's length), used by dump/backup/unseal
// to recover privkey/chain_code/backup-data fields.
func decryptPayload(ciphertext []byte, key SessionKey) []byte {
	out := make([]byte, len(ciphertext))
	for i := range ciphertext {
		out[i] = ciphertext[i] ^ key[i%len(key)]
	}
	return out
}

func secpFromCompressed(compressed []byte) (*secp256k1.PublicKey, error) {
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return nil, newErr(KindTransportIO, "parse card pubkey", err)
	}
	return pub, nil
}
