package cktap

import (
	"context"
	"log/slog"

	"github.com/google/gousb"
)

// coinkiteVendorID and coinkiteProductIDs are the known Coinkite USB
// identifiers.
const coinkiteVendorID gousb.ID = 0xD13E

var coinkiteProductIDs = map[gousb.ID]string{
	0xCC10: "TAPSIGNER",
	0x0100: "Mk1/Mk2",
}

const (
	omnikeyVendorID gousb.ID = 0x076B
	yubikeyVendorID gousb.ID = 0x1050
)

// DeviceInfo describes one enumerated USB device, for ListDevices.
type DeviceInfo struct {
	VendorID   gousb.ID
	ProductID  gousb.ID
	IsCoinkite bool
}

func deviceInfo(desc *gousb.DeviceDesc) DeviceInfo {
	_, isCoinkite := coinkiteProductIDs[desc.Product]
	isCoinkite = isCoinkite && desc.Vendor == coinkiteVendorID
	return DeviceInfo{VendorID: desc.Vendor, ProductID: desc.Product, IsCoinkite: isCoinkite}
}

// ListDevices enumerates attached USB devices without claiming any of them.
func ListDevices() ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var infos []DeviceInfo
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		infos = append(infos, deviceInfo(desc))
		return false
	})
	for _, d := range devs {
		_ = d.Close()
	}
	if err != nil {
		return nil, newErr(KindTransportIO, "enumerate USB devices", err)
	}
	return infos, nil
}

// isCCIDDevice reports whether dev carries a CCID-class (0x0B) interface in
// any of its configurations.
func isCCIDDevice(desc *gousb.DeviceDesc) bool {
	for _, cfg := range desc.Configs {
		for _, ifaces := range cfg.Interfaces {
			for _, alt := range ifaces.AltSettings {
				if alt.Class == gousb.ClassCode(usbClassSmartCard) {
					return true
				}
			}
		}
	}
	return false
}

// FindFirstCard discovers, selects, and returns a ready Card handle.
// Discovery priority favors Coinkite-vendor devices first, then OMNIKEY
// readers, then any other CCID device, with YubiKeys (which may have no
// card present) tried last.
func FindFirstCard(ctx context.Context) (Card, error) {
	usbCtx := gousb.NewContext()

	var candidates []*gousb.Device
	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return isCCIDDevice(desc)
	})
	if err != nil {
		usbCtx.Close()
		return nil, newErr(KindTransportIO, "enumerate CCID devices", err)
	}
	candidates = devs

	closeUnused := func(used *gousb.Device) {
		for _, d := range candidates {
			if d != used {
				_ = d.Close()
			}
		}
	}

	tryOrder := rankCandidates(candidates)

	for _, dev := range tryOrder {
		transport, err := openUSBTransport(usbCtx, dev)
		if err != nil {
			slog.Debug("failed to open CCID transport", "err", err)
			continue
		}
		card, err := newCardFromTransport(ctx, transport)
		if err != nil {
			slog.Debug("failed to initialize card", "err", err)
			transport.close()
			continue
		}
		closeUnused(dev)
		return card, nil
	}

	for _, d := range candidates {
		_ = d.Close()
	}
	usbCtx.Close()
	return nil, newErr(KindDeviceNotFound, "no usable CCID device with a cktap card found", nil)
}

// rankCandidates orders discovered devices: Coinkite vendor first, then
// OMNIKEY, then everything else except YubiKey, which is tried last.
func rankCandidates(devs []*gousb.Device) []*gousb.Device {
	var coinkite, omnikey, other, yubikey []*gousb.Device
	for _, d := range devs {
		switch d.Desc.Vendor {
		case coinkiteVendorID:
			coinkite = append(coinkite, d)
		case omnikeyVendorID:
			omnikey = append(omnikey, d)
		case yubikeyVendorID:
			yubikey = append(yubikey, d)
		default:
			other = append(other, d)
		}
	}
	ordered := append(append(append(coinkite, omnikey...), other...), yubikey...)
	return ordered
}

// NewEmulatorCard connects to the Coinkite emulator over its Unix-domain
// socket instead of a USB CCID device. path may be empty to use the
// emulator's default socket path; callers resolve CKTAP_EMULATOR_SOCKET
// (or similar) themselves, since the core never reads environment directly.
func NewEmulatorCard(ctx context.Context, path string) (Card, error) {
	transport := newEmulatorTransport(path)
	return newCardFromTransport(ctx, transport)
}

// newCardFromTransport performs the initial SELECT and builds the right
// concrete Card type based on the status response's product flags
// (tapsigner/satschip booleans).
func newCardFromTransport(ctx context.Context, transport rawTransport) (Card, error) {
	codec := newCkTapCodec(transport)
	status, err := codec.selectApplet(ctx)
	if err != nil {
		transport.close()
		return nil, err
	}

	root := decodeFactoryRoot(productionFactoryRootHex)

	base := baseCard{
		transport:     transport,
		codec:         codec,
		proto:         status.Proto,
		birth:         status.Birth,
		version:       status.Version,
		cardPubkeyRaw: status.PublicKey,
		authDelay:     status.AuthDelay,
		isTestnet:     status.IsTestnet,
		factoryRoot:   root,
	}
	copy(base.currentNonce[:], status.CardNonce)

	switch {
	case status.SatsChip:
		base.product = ProductSatsChip
		return &SatsChip{tapSignerLike: tapSignerLike{baseCard: base, path: status.Path}}, nil
	case status.TapSigner:
		base.product = ProductTapSigner
		return &TapSigner{tapSignerLike: tapSignerLike{baseCard: base, path: status.Path}}, nil
	default:
		base.product = ProductSatsCard
		numSlots := 10
		activeSlot := 0
		if len(status.Slots) == 2 {
			activeSlot, numSlots = status.Slots[0], status.Slots[1]
		}
		return &SatsCard{baseCard: base, activeSlot: activeSlot, numSlots: numSlots}, nil
	}
}

// UseEmulatorFactoryRoot switches a card's compiled-in FactoryRoot to the
// Coinkite emulator's root key. It must be called before Certs to validate
// an emulated card's certificate chain.
func UseEmulatorFactoryRoot(card Card) {
	switch c := card.(type) {
	case *SatsCard:
		c.factoryRoot = decodeFactoryRoot(emulatorFactoryRootHex)
	case *TapSigner:
		c.factoryRoot = decodeFactoryRoot(emulatorFactoryRootHex)
	case *SatsChip:
		c.factoryRoot = decodeFactoryRoot(emulatorFactoryRootHex)
	}
}
