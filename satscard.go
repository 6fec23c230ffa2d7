package cktap

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// SlotStatus is a SATSCARD slot's position in its lifecycle.
type SlotStatus int

const (
	SlotUnused SlotStatus = iota
	SlotSealed
	SlotUnsealed
)

// SatsCard is the Card implementation for the SATSCARD product: ten slots,
// each independently moving UNUSED -> SEALED -> UNSEALED.
type SatsCard struct {
	baseCard

	activeSlot int
	numSlots   int
	slotPubkey []byte
}

var _ Card = (*SatsCard)(nil)

// Read returns the active slot's payment address, verifying the card's
// signature over the read challenge.
func (c *SatsCard) Read(ctx context.Context, cvc string) (ReadResult, error) {
	// SATSCARD read needs epubkey but no xcvc.
	a, params, err := c.newAuth("read", "")
	if err != nil {
		return ReadResult{}, err
	}
	defer params.ephemeral.zeroize()

	hostNonceBytes, hostNonce, err := newHostNonceBytes()
	if err != nil {
		return ReadResult{}, err
	}

	cmd := readCommand{command: command{Cmd: "read"}, auth: a, Nonce: hostNonceBytes}
	var resp readResponse
	if err := c.codec.exchange(ctx, cmd, &resp); err != nil {
		return ReadResult{}, err
	}

	digest := readDigest(c.currentNonce, hostNonce, byte(c.activeSlot), resp.PublicKey)
	pub, err := btcec.ParsePubKey(resp.PublicKey)
	if err != nil {
		return ReadResult{}, newErr(KindBadSignature, "parse slot public key", err)
	}
	if err := verifyCompactSignature(resp.Signature, digest, pub); err != nil {
		return ReadResult{}, err
	}

	copy(c.currentNonce[:], resp.CardNonce)
	c.slotPubkey = resp.PublicKey

	address, err := slotPaymentAddress(resp.PublicKey)
	if err != nil {
		return ReadResult{}, err
	}
	return ReadResult{PublicKey: resp.PublicKey, Address: address}, nil
}

// Derive recovers the slot's pubkey via the derive challenge. SATSCARD has
// no BIP32 derivation path of its own, so a non-empty path is rejected
// rather than silently ignored.
func (c *SatsCard) Derive(ctx context.Context, path []uint32, cvc string) (DeriveResult, error) {
	if len(path) > 0 {
		return DeriveResult{}, newErr(KindCkTap, "SATSCARD has no derivation path", nil)
	}
	a, params, err := c.newAuth("derive", cvc)
	if err != nil {
		return DeriveResult{}, err
	}
	defer params.ephemeral.zeroize()

	hostNonceBytes, hostNonce, err := newHostNonceBytes()
	if err != nil {
		return DeriveResult{}, err
	}

	cmd := deriveCommand{command: command{Cmd: "derive"}, auth: a, Nonce: hostNonceBytes}
	var resp deriveResponse
	if err := c.codec.exchange(ctx, cmd, &resp); err != nil {
		return DeriveResult{}, err
	}

	digest := deriveDigest(c.currentNonce, hostNonce, resp.ChainCode, resp.PublicKey)
	pub, err := btcec.ParsePubKey(resp.PublicKey)
	if err != nil {
		return DeriveResult{}, newErr(KindBadSignature, "parse derived public key", err)
	}
	if err := verifyCompactSignature(resp.Signature, digest, pub); err != nil {
		return DeriveResult{}, err
	}

	copy(c.currentNonce[:], resp.CardNonce)
	return DeriveResult{PublicKey: resp.PublicKey, ChainCode: resp.ChainCode}, nil
}

func (c *SatsCard) Certs(ctx context.Context) error {
	return c.baseCard.Certs(ctx, c.slotPubkey)
}

// New activates the next slot: allowed only when the current slot's status
// is UNUSED (checked by the card; the host's own bookkeeping additionally
// refuses once all slots are exhausted).
func (c *SatsCard) New(ctx context.Context, cvc string, chainCode [32]byte) (NewSlotResult, error) {
	if c.activeSlot+1 >= c.numSlots {
		return NewSlotResult{}, newErr(KindCkTap, "no more slots available", nil)
	}

	a, params, err := c.newAuth("new", cvc)
	if err != nil {
		return NewSlotResult{}, err
	}
	defer params.ephemeral.zeroize()

	cmd := newCommand{command: command{Cmd: "new"}, auth: a, Slot: c.activeSlot, ChainCode: chainCode}
	var resp newResponse
	if err := c.codec.exchange(ctx, cmd, &resp); err != nil {
		return NewSlotResult{}, err
	}

	copy(c.currentNonce[:], resp.CardNonce)
	c.activeSlot = resp.Slot
	c.slotPubkey = nil
	return NewSlotResult{Slot: resp.Slot}, nil
}

// Unseal reveals the current slot's master private key, only valid on a
// SEALED slot. The private key ciphertext is XORed with the session key.
func (c *SatsCard) Unseal(ctx context.Context, cvc string) (MasterPrivkey, error) {
	a, params, err := c.newAuth("unseal", cvc)
	if err != nil {
		return MasterPrivkey{}, err
	}
	defer params.ephemeral.zeroize()

	cmd := unsealCommand{command: command{Cmd: "unseal"}, auth: a, Slot: c.activeSlot}
	var resp unsealResponse
	if err := c.codec.exchange(ctx, cmd, &resp); err != nil {
		return MasterPrivkey{}, err
	}
	copy(c.currentNonce[:], resp.CardNonce)

	privBytes := decryptPayload(resp.PrivateKey, params.sessionKey)
	priv, _ := btcec.PrivKeyFromBytes(privBytes)
	wif, err := btcutil.NewWIF(priv, &chaincfg.MainNetParams, true)
	if err != nil {
		return MasterPrivkey{}, newErr(KindCkTap, "encode unsealed private key as WIF", err)
	}

	return MasterPrivkey{Slot: resp.Slot, WIF: wif.String()}, nil
}

// Dump reports what a given slot will disclose: full detail if it is the
// active slot and unsealed (requires CVC to prove slot ownership) or public
// fields only otherwise.
func (c *SatsCard) Dump(ctx context.Context, slot int, cvc string) (SlotDump, error) {
	cmd := dumpCommand{command: command{Cmd: "dump"}, Slot: slot}
	var params authParams
	if cvc != "" {
		a, p, err := c.newAuth("dump", cvc)
		if err != nil {
			return SlotDump{}, err
		}
		cmd.auth = a
		params = p
		defer params.ephemeral.zeroize()
	} else {
		eph, err := newEphemeralKeypair()
		if err != nil {
			return SlotDump{}, err
		}
		defer eph.zeroize()
		cmd.auth = auth{EphemeralPubKey: eph.compressedPubkey()}
	}

	var resp dumpResponse
	if err := c.codec.exchange(ctx, cmd, &resp); err != nil {
		return SlotDump{}, err
	}
	copy(c.currentNonce[:], resp.CardNonce)

	out := SlotDump{
		Slot:            slot,
		Used:            resp.Used,
		Sealed:          resp.Sealed,
		PublicKey:       resp.PublicKey,
		MasterPublicKey: resp.MasterPublicKey,
		ChainCode:       resp.ChainCode,
	}
	if len(resp.PrivateKey) > 0 && cvc != "" {
		privBytes := decryptPayload(resp.PrivateKey, params.sessionKey)
		priv, _ := btcec.PrivKeyFromBytes(privBytes)
		wif, err := btcutil.NewWIF(priv, &chaincfg.MainNetParams, true)
		if err == nil {
			out.PrivateKeyWIF = wif.String()
		}
	}
	return out, nil
}
