package cktap

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// recoveryIDFromWire converts the BIP-137 header byte carried by a
// recoverable signature into the 27-30 header byte ecdsa.RecoverCompact
// expects: values 39-42 and 27-30 both encode rec_id 0-3, offset
// differently, and RecoverCompact wants the id itself pre-offset by 27.
func recoveryIDFromWire(header byte) byte {
	switch {
	case header >= 39 && header <= 42:
		return header - 39 + 27
	case header >= 27 && header <= 30:
		return header - 27 + 27
	default:
		return header
	}
}

// recoverPubkey recovers the signer's public key from a 65-byte recoverable
// signature (1-byte header + 64-byte r||s) over digest.
func recoverPubkey(signature []byte, digest [32]byte) (*btcec.PublicKey, error) {
	if len(signature) != 65 {
		return nil, newErr(KindBadSignature, "recoverable signature must be 65 bytes", nil)
	}
	recoverable := append([]byte{recoveryIDFromWire(signature[0])}, signature[1:]...)
	pubKey, _, err := ecdsa.RecoverCompact(recoverable, digest[:])
	if err != nil {
		return nil, newErr(KindBadSignature, "recover public key from signature", err)
	}
	return pubKey, nil
}

// verifyCompactSignature verifies a 64-byte r||s signature over digest
// against pubKey.
func verifyCompactSignature(signature []byte, digest [32]byte, pubKey *btcec.PublicKey) error {
	if len(signature) != 64 {
		return newErr(KindBadSignature, "signature must be 64 bytes", nil)
	}
	r := new(btcec.ModNScalar)
	if overflow := r.SetByteSlice(signature[:32]); overflow {
		return newErr(KindBadSignature, "signature r overflows curve order", nil)
	}
	s := new(btcec.ModNScalar)
	if overflow := s.SetByteSlice(signature[32:]); overflow {
		return newErr(KindBadSignature, "signature s overflows curve order", nil)
	}
	sig := ecdsa.NewSignature(r, s)
	if !sig.Verify(digest[:], pubKey) {
		return newErr(KindBadSignature, "response signature did not verify", nil)
	}
	return nil
}

// readDigest computes the message the card signs in a read response:
// SHA-256("OPENDIME" || card_nonce || host_nonce || slot || pubkey).
func readDigest(cardNonce CardNonce, hostNonce HostNonce, slot byte, pubkey []byte) [32]byte {
	msg := make([]byte, 0, len(openDimeMagic)+16+16+1+len(pubkey))
	msg = append(msg, openDimeMagic...)
	msg = append(msg, cardNonce[:]...)
	msg = append(msg, hostNonce[:]...)
	msg = append(msg, slot)
	msg = append(msg, pubkey...)
	return sha256.Sum256(msg)
}

// deriveDigest computes the message the card signs in a derive response:
// SHA-256("OPENDIME" || card_nonce || host_nonce || chain_code || pubkey).
func deriveDigest(cardNonce CardNonce, hostNonce HostNonce, chainCode, pubkey []byte) [32]byte {
	msg := make([]byte, 0, len(openDimeMagic)+16+16+len(chainCode)+len(pubkey))
	msg = append(msg, openDimeMagic...)
	msg = append(msg, cardNonce[:]...)
	msg = append(msg, hostNonce[:]...)
	msg = append(msg, chainCode...)
	msg = append(msg, pubkey...)
	return sha256.Sum256(msg)
}

// checkDigest computes the challenge digest a "check" response's auth_sig
// signs (a read-like challenge preceding certs):
// SHA-256("OPENDIME" || card_nonce || app_nonce [|| active slot pubkey, when known]).
func checkDigest(cardNonce CardNonce, hostNonce HostNonce, activeSlotPubkey []byte) [32]byte {
	msg := make([]byte, 0, len(openDimeMagic)+16+16+len(activeSlotPubkey))
	msg = append(msg, openDimeMagic...)
	msg = append(msg, cardNonce[:]...)
	msg = append(msg, hostNonce[:]...)
	msg = append(msg, activeSlotPubkey...)
	return sha256.Sum256(msg)
}

// verifyCertificateChain walks a certificate chain from the card's current
// identity pubkey to the compiled-in FactoryRoot: for each signature in
// order, recover the signer's pubkey from SHA-256(prev_pubkey) and chain
// forward. It fails CertChainInvalid unless the final recovered key equals
// factoryRoot.
func verifyCertificateChain(cardPubkey []byte, chain [][]byte, factoryRoot []byte) error {
	current, err := btcec.ParsePubKey(cardPubkey)
	if err != nil {
		return newErr(KindCertChainInvalid, "parse card public key", err)
	}

	for _, sig := range chain {
		digest := sha256.Sum256(current.SerializeCompressed())
		next, err := recoverPubkey(sig, digest)
		if err != nil {
			return newErr(KindCertChainInvalid, "recover next link in certificate chain", err)
		}
		current = next
	}

	root, err := btcec.ParsePubKey(factoryRoot)
	if err != nil {
		return newErr(KindCertChainInvalid, "parse compiled-in factory root", err)
	}
	if !current.IsEqual(root) {
		return newErr(KindCertChainInvalid, "certificate chain does not terminate at factory root", nil)
	}
	return nil
}
