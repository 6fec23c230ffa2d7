package cktap

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// extendedPublicKey parses the raw 78-byte serialized BIP32 extended public
// key a card's xpub command returns into an hdkeychain.ExtendedKey for
// further public derivation.
func extendedPublicKey(raw []byte) (*hdkeychain.ExtendedKey, error) {
	if len(raw) != 78 {
		return nil, newErr(KindCkTap, "xpub must be 78 raw bytes", nil)
	}
	version := raw[0:4]
	depth := raw[4]
	parentFP := raw[5:9]
	childNum := binary.BigEndian.Uint32(raw[9:13])
	chainCode := raw[13:45]
	pubKey := raw[45:78]
	return hdkeychain.NewExtendedKey(version, pubKey, chainCode, parentFP, depth, childNum, false), nil
}

// verifyPublicDerivation walks path from xpub and checks the resulting
// public key equals gotPub. Only non-hardened components can be walked
// this way (a hardened child requires the parent private key, which this
// driver never holds). The card walks any hardened prefix of a path
// internally; this verifies whatever non-hardened suffix the caller asks
// for beyond that.
func verifyPublicDerivation(xpub *hdkeychain.ExtendedKey, path []uint32, gotPub []byte) error {
	current := xpub
	for _, idx := range path {
		if idx >= hdkeychain.HardenedKeyStart {
			return newErr(KindCkTap, "cannot verify hardened derivation from a public key alone", nil)
		}
		child, err := current.Derive(idx)
		if err != nil {
			return newErr(KindCkTap, "derive BIP32 child public key", err)
		}
		current = child
	}
	pub, err := current.ECPubKey()
	if err != nil {
		return newErr(KindCkTap, "extract derived public key", err)
	}
	want, err := btcec.ParsePubKey(gotPub)
	if err != nil {
		return newErr(KindBadSignature, "parse card-returned public key", err)
	}
	if !pub.IsEqual(want) {
		return newErr(KindBadSignature, "derived public key does not match BIP32 public derivation", nil)
	}
	return nil
}
