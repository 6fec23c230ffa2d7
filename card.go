package cktap

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Product identifies which of the three cktap products a Card handle
// speaks for.
type Product int

const (
	ProductUnknown Product = iota
	ProductSatsCard
	ProductTapSigner
	ProductSatsChip
)

func (p Product) String() string {
	switch p {
	case ProductSatsCard:
		return "SATSCARD"
	case ProductTapSigner:
		return "TAPSIGNER"
	case ProductSatsChip:
		return "SATSCHIP"
	default:
		return "unknown"
	}
}

// StatusReport is the caller-facing shape of a status response.
type StatusReport struct {
	Product    Product
	Proto      int
	Birth      int
	Version    string
	Identity   string
	AuthDelay  int
	ActiveSlot int
	NumSlots   int
	Address    string
	Path       []uint32
	IsTestnet  bool
}

// ReadResult is the caller-facing shape of a verified read.
type ReadResult struct {
	PublicKey []byte
	Address   string
}

// DeriveResult is the caller-facing shape of a verified derive.
type DeriveResult struct {
	PublicKey []byte
	ChainCode []byte
}

// NewSlotResult reports the slot a `new` command activated.
type NewSlotResult struct {
	Slot int
}

// MasterPrivkey is the WIF-encoded master private key an unseal reveals.
type MasterPrivkey struct {
	Slot int
	WIF  string
}

// SlotDump reports what `dump` can see for a given slot: everything if it
// is the current owner and it is unsealed, otherwise only public fields.
type SlotDump struct {
	Slot            int
	Used            bool
	Sealed          bool
	PublicKey       []byte
	PrivateKeyWIF   string
	MasterPublicKey []byte
	ChainCode       []byte
}

// Signature is the raw result of a `sign` command; the core deliberately
// does not verify it.
type Signature struct {
	Bytes     []byte
	PublicKey []byte
}

// AuthDelayRemaining reports the seconds-remaining counter after a `wait`
// call.
type AuthDelayRemaining struct {
	Seconds int
}

// Card is the polymorphic handle returned by discovery: a SatsCard,
// TapSigner, or SatsChip, all sharing the identity/session/verification
// machinery in baseCard.
type Card interface {
	Product() Product
	Identity() string
	Status(ctx context.Context) (StatusReport, error)
	Certs(ctx context.Context) error
	Read(ctx context.Context, cvc string) (ReadResult, error)
	Derive(ctx context.Context, path []uint32, cvc string) (DeriveResult, error)
	Sign(ctx context.Context, digest [32]byte, path []uint32, cvc string) (Signature, error)
	Wait(ctx context.Context) (AuthDelayRemaining, error)
	Nfc(ctx context.Context) (string, error)

	// reset re-selects the applet and refreshes the card nonce, used to
	// recover from a cancelled exchange.
	reset(ctx context.Context) error
	Close()
}

// baseCard holds everything common to all three products: the transport,
// codec, current session anchors, and identity fields.
type baseCard struct {
	transport rawTransport
	codec     *ckTapCodec

	product       Product
	proto         int
	birth         int
	version       string
	cardPubkeyRaw []byte
	authDelay     int
	isTestnet     bool

	currentNonce CardNonce

	factoryRoot []byte
}

func (c *baseCard) Product() Product { return c.product }

func (c *baseCard) Identity() string {
	id, err := cardIdentityString(c.cardPubkeyRaw)
	if err != nil {
		return ""
	}
	return id
}

func (c *baseCard) Close() {
	c.transport.close()
}

// reset re-selects the applet, which the card answers with a fresh status
// (and therefore a fresh nonce).
func (c *baseCard) reset(ctx context.Context) error {
	if r, ok := c.transport.(resetter); ok {
		_ = r.getSlotStatus(ctx)
	}
	status, err := c.codec.selectApplet(ctx)
	if err != nil {
		return err
	}
	c.applyStatus(status)
	return nil
}

func (c *baseCard) applyStatus(status statusResponse) {
	c.proto = status.Proto
	c.birth = status.Birth
	c.version = status.Version
	c.authDelay = status.AuthDelay
	c.isTestnet = status.IsTestnet
	if len(status.PublicKey) > 0 {
		c.cardPubkeyRaw = status.PublicKey
	}
	copy(c.currentNonce[:], status.CardNonce)
}

// cardBtcecPubkey parses the card's identity pubkey for signature
// verification (btcec) as distinct from the ECDH curve type (decred
// secp256k1) used for session key derivation.
func (c *baseCard) cardBtcecPubkey() (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(c.cardPubkeyRaw)
}

func (c *baseCard) cardSecpPubkey() (*secp256k1.PublicKey, error) {
	return secpFromCompressed(c.cardPubkeyRaw)
}

// authParams bundles what an authenticated command needs to populate its
// auth embed and, later, decrypt any returned ciphertext field.
type authParams struct {
	ephemeral  *ephemeralKeypair
	sessionKey SessionKey
}

// newAuth generates a fresh ephemeral key pair, derives the session key
// against the card's current pubkey, and encrypts cvc bound to cmd and the
// card's current nonce. Every call produces a distinct ephemeral key and a
// session key that is never reused, and consumes the current CardNonce.
func (c *baseCard) newAuth(cmd, cvc string) (auth, authParams, error) {
	cardPub, err := c.cardSecpPubkey()
	if err != nil {
		return auth{}, authParams{}, newErr(KindCkTap, "parse card public key for ECDH", err)
	}
	eph, err := newEphemeralKeypair()
	if err != nil {
		return auth{}, authParams{}, err
	}
	sessionKey := deriveSessionKey(eph, cardPub)

	a := auth{EphemeralPubKey: eph.compressedPubkey()}
	if cvc != "" {
		xcvc, err := encryptCVC(cvc, c.currentNonce, cmd, sessionKey)
		if err != nil {
			eph.zeroize()
			return auth{}, authParams{}, err
		}
		a.XCVC = xcvc
	}
	return a, authParams{ephemeral: eph, sessionKey: sessionKey}, nil
}

// newHostNonceBytes is a convenience used by every nonce-bearing command.
func newHostNonceBytes() ([]byte, HostNonce, error) {
	n, err := newHostNonce()
	if err != nil {
		return nil, HostNonce{}, err
	}
	return n[:], n, nil
}

// Status performs a fresh SELECT, refreshing identity and nonce state, and
// returns the caller-facing report. Repeated calls return identical
// identity fields (nonce excepted).
func (c *baseCard) Status(ctx context.Context) (StatusReport, error) {
	status, err := c.codec.selectApplet(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	c.applyStatus(status)

	report := StatusReport{
		Product:   c.product,
		Proto:     status.Proto,
		Birth:     status.Birth,
		Version:   status.Version,
		Identity:  c.Identity(),
		AuthDelay: status.AuthDelay,
		Address:   status.Address,
		Path:      status.Path,
		IsTestnet: status.IsTestnet,
	}
	if len(status.Slots) == 2 {
		report.ActiveSlot = status.Slots[0]
		report.NumSlots = status.Slots[1]
	}
	return report, nil
}

// Wait issues the wait command, which the card answers by decrementing its
// own auth-delay counter.
func (c *baseCard) Wait(ctx context.Context) (AuthDelayRemaining, error) {
	var resp waitResponse
	if err := c.codec.exchange(ctx, waitCommand{command: command{Cmd: "wait"}}, &resp); err != nil {
		return AuthDelayRemaining{}, err
	}
	copy(c.currentNonce[:], resp.CardNonce)
	c.authDelay = resp.AuthDelay
	return AuthDelayRemaining{Seconds: resp.AuthDelay}, nil
}

// Nfc returns the URL a phone tap would open, when the card exposes one.
func (c *baseCard) Nfc(ctx context.Context) (string, error) {
	var resp nfcResponse
	if err := c.codec.exchange(ctx, nfcCommand{command: command{Cmd: "nfc"}}, &resp); err != nil {
		return "", err
	}
	copy(c.currentNonce[:], resp.CardNonce)
	return resp.URL, nil
}

// check performs the read-like challenge that must precede certs, verifying
// auth_sig against the card-identity key. On success it records the
// up-to-date card nonce and the certs command's response is fetched
// immediately after under that same session.
func (c *baseCard) check(ctx context.Context, activeSlotPubkey []byte) error {
	hostNonceBytes, hostNonce, err := newHostNonceBytes()
	if err != nil {
		return err
	}
	var resp checkResponse
	cmd := checkCommand{command: command{Cmd: "check"}, Nonce: hostNonceBytes}
	if err := c.codec.exchange(ctx, cmd, &resp); err != nil {
		return err
	}

	digest := checkDigest(c.currentNonce, hostNonce, activeSlotPubkey)
	pub, err := c.cardBtcecPubkey()
	if err != nil {
		return newErr(KindCertChainInvalid, "parse card public key for check", err)
	}
	if err := verifyCompactSignature(resp.AuthSignature, digest, pub); err != nil {
		return err
	}
	copy(c.currentNonce[:], resp.CardNonce)
	return nil
}

// Certs performs check-then-certs and verifies the resulting chain
// terminates at the compiled-in FactoryRoot.
func (c *baseCard) Certs(ctx context.Context, activeSlotPubkey []byte) error {
	if err := c.check(ctx, activeSlotPubkey); err != nil {
		return err
	}
	var resp certsResponse
	if err := c.codec.exchange(ctx, certsCommand{command: command{Cmd: "certs"}}, &resp); err != nil {
		return err
	}
	return verifyCertificateChain(c.cardPubkeyRaw, resp.CertificateChain, c.factoryRoot)
}

// Sign is left unverified by design. path requests a signature under that
// derivation rather than the card's current one.
func (c *baseCard) Sign(ctx context.Context, digest [32]byte, path []uint32, cvc string) (Signature, error) {
	a, params, err := c.newAuth("sign", cvc)
	if err != nil {
		return Signature{}, err
	}
	defer params.ephemeral.zeroize()

	cmd := signCommand{command: command{Cmd: "sign"}, auth: a, Digest: digest, SubPath: path}
	var resp signResponse
	if err := c.codec.exchange(ctx, cmd, &resp); err != nil {
		return Signature{}, err
	}
	copy(c.currentNonce[:], resp.CardNonce)
	return Signature{Bytes: resp.Signature, PublicKey: resp.PublicKey}, nil
}
