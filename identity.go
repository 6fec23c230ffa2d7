package cktap

import (
	"crypto/sha256"
	"encoding/base32"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

// cardIdentityString renders a compressed card pubkey as the 23-character
// human-readable identity string printed on the card's NFC page: sha256 the
// pubkey, skip the first 8 bytes (already exposed via the NFC URL),
// base32-encode, keep 20 chars, group by 5 with dashes.
func cardIdentityString(cardPubkey []byte) (string, error) {
	if len(cardPubkey) != 33 {
		return "", newErr(KindCkTap, "expecting compressed public key for identity string", nil)
	}
	checksum := sha256.Sum256(cardPubkey)
	encoded := base32.StdEncoding.EncodeToString(checksum[8:])
	s := encoded[:20]

	var groups []string
	for i := 0; i < len(s); i += 5 {
		groups = append(groups, s[i:i+5])
	}
	return strings.Join(groups, "-"), nil
}

// slotPaymentAddress converts a SATSCARD slot's public key into a mainnet
// bech32 (P2WPKH) address.
func slotPaymentAddress(slotPubkey []byte) (string, error) {
	hash160 := btcutil.Hash160(slotPubkey)

	converted, err := bech32.ConvertBits(hash160, 8, 5, true)
	if err != nil {
		return "", newErr(KindCkTap, "convert hash160 to bech32 5-bit groups", err)
	}

	data := append([]byte{0x00}, converted...)
	encoded, err := bech32.Encode("bc", data)
	if err != nil {
		return "", newErr(KindCkTap, "bech32-encode payment address", err)
	}
	return encoded, nil
}
