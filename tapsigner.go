package cktap

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
)

// tapSignerLike is the Card implementation shared by the TAPSIGNER and SATSCHIP
// products: no slots, instead a BIP32 derivation path and a PIN/CVC
// lifecycle gated by AuthDelay. SatsChip omits change/xpub/backup at the
// caller-surface level but is otherwise identical, so both embed
// tapSignerLike and only TapSigner exposes the extra methods.
type tapSignerLike struct {
	baseCard
	path []uint32
}

// locked reports whether the card is still inside its AuthDelay cool-down,
// during which any CVC-bearing command fails AuthDelayRequired without
// being sent.
func (c *tapSignerLike) locked() bool {
	return c.authDelay > 0
}

func (c *tapSignerLike) requireUnlocked() error {
	if c.locked() {
		return newCkTapErr(CodeAuthDelayReq, "card is in auth-delay cooldown; call Wait")
	}
	return nil
}

func (c *tapSignerLike) Certs(ctx context.Context) error {
	return c.baseCard.Certs(ctx, nil)
}

// Read returns the current derivation's pubkey, verifying the card's
// signature. TAPSIGNER read requires xcvc.
func (c *tapSignerLike) Read(ctx context.Context, cvc string) (ReadResult, error) {
	if err := c.requireUnlocked(); err != nil {
		return ReadResult{}, err
	}
	a, params, err := c.newAuth("read", cvc)
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

	digest := readDigest(c.currentNonce, hostNonce, 0, resp.PublicKey)
	pub, err := btcec.ParsePubKey(resp.PublicKey)
	if err != nil {
		return ReadResult{}, newErr(KindBadSignature, "parse derivation public key", err)
	}
	if err := verifyCompactSignature(resp.Signature, digest, pub); err != nil {
		return ReadResult{}, err
	}

	copy(c.currentNonce[:], resp.CardNonce)
	return ReadResult{PublicKey: resp.PublicKey}, nil
}

// Derive re-derives along path: all components hardened, empty path
// meaning master. A nil path re-derives the card's current path, tracked
// in c.path since the last successful derive (or the path reported at
// discovery).
func (c *tapSignerLike) Derive(ctx context.Context, path []uint32, cvc string) (DeriveResult, error) {
	if err := c.requireUnlocked(); err != nil {
		return DeriveResult{}, err
	}
	if path == nil {
		path = c.path
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

	cmd := deriveCommand{command: command{Cmd: "derive"}, auth: a, Nonce: hostNonceBytes, SubPath: path}
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
	c.path = path
	return DeriveResult{PublicKey: resp.PublicKey, ChainCode: resp.ChainCode}, nil
}

// Sign overrides baseCard.Sign to enforce the AuthDelay lock before any
// CVC-bearing command is sent. A nil path signs under the card's current
// derivation.
func (c *tapSignerLike) Sign(ctx context.Context, digest [32]byte, path []uint32, cvc string) (Signature, error) {
	if err := c.requireUnlocked(); err != nil {
		return Signature{}, err
	}
	if path == nil {
		path = c.path
	}
	return c.baseCard.Sign(ctx, digest, path, cvc)
}

// TapSigner is the Card implementation for the TAPSIGNER product.
type TapSigner struct{ tapSignerLike }

var _ Card = (*TapSigner)(nil)

// SatsChip is the Card implementation for the SATSCHIP product: a
// TapSigner-alike without the CVC-rotation/xpub/backup surface.
type SatsChip struct{ tapSignerLike }

var _ Card = (*SatsChip)(nil)

// Change rotates the card's CVC. The new CVC is carried as the data field,
// encrypted the same way the old CVC is for the command's own auth.
func (t *TapSigner) Change(ctx context.Context, oldCVC, newCVC string) error {
	if err := t.requireUnlocked(); err != nil {
		return err
	}
	a, params, err := t.newAuth("change", oldCVC)
	if err != nil {
		return err
	}
	defer params.ephemeral.zeroize()

	encryptedNew, err := encryptCVC(newCVC, t.currentNonce, "change", params.sessionKey)
	if err != nil {
		return err
	}

	cmd := changeCommand{command: command{Cmd: "change"}, auth: a, NewCVC: encryptedNew}
	var resp changeResponse
	if err := t.codec.exchange(ctx, cmd, &resp); err != nil {
		return err
	}
	copy(t.currentNonce[:], resp.CardNonce)
	if !resp.Success {
		return newErr(KindCkTap, "card reported change failure", nil)
	}
	return nil
}

// Xpub returns the extended public key for the current derivation (or the
// master, if master is true).
func (t *TapSigner) Xpub(ctx context.Context, cvc string, master bool) ([]byte, error) {
	if err := t.requireUnlocked(); err != nil {
		return nil, err
	}
	a, params, err := t.newAuth("xpub", cvc)
	if err != nil {
		return nil, err
	}
	defer params.ephemeral.zeroize()

	cmd := xpubCommand{command: command{Cmd: "xpub"}, auth: a, Master: master}
	var resp xpubResponse
	if err := t.codec.exchange(ctx, cmd, &resp); err != nil {
		return nil, err
	}
	copy(t.currentNonce[:], resp.CardNonce)

	if _, err := extendedPublicKey(resp.Xpub); err != nil {
		return nil, newErr(KindCkTap, "card returned a malformed xpub", err)
	}
	return resp.Xpub, nil
}

// Backup returns the encrypted offline-recovery payload. The payload stays
// encrypted: decrypting it is an offline operation outside this driver's
// scope.
func (t *TapSigner) Backup(ctx context.Context, cvc string) ([]byte, error) {
	if err := t.requireUnlocked(); err != nil {
		return nil, err
	}
	a, params, err := t.newAuth("backup", cvc)
	if err != nil {
		return nil, err
	}
	defer params.ephemeral.zeroize()

	cmd := backupCommand{command: command{Cmd: "backup"}, auth: a}
	var resp backupResponse
	if err := t.codec.exchange(ctx, cmd, &resp); err != nil {
		return nil, err
	}
	copy(t.currentNonce[:], resp.CardNonce)
	return resp.Data, nil
}
