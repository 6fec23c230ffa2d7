package cktap

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/gousb"
)

// usbClassSmartCard is the USB-IF class code for CCID (integrated circuit
// card) interfaces.
const usbClassSmartCard = 0x0B

// defaultTransferTimeout is the per-transfer timeout used for every bulk
// transfer and emulator exchange. The package exposes no way to change it.
const defaultTransferTimeout = 5 * time.Second

// usbTransport implements rawTransport by driving a claimed CCID bulk
// interface directly.
type usbTransport struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	intf    *gousb.Interface
	epIn    *gousb.InEndpoint
	epOut   *gousb.OutEndpoint
	seq     ccidSequencer
	timeout time.Duration
}

// openUSBTransport claims the first CCID-class interface on dev and wires up
// its bulk endpoints.
func openUSBTransport(ctx *gousb.Context, dev *gousb.Device) (*usbTransport, error) {
	cfg, err := dev.Config(1)
	if err != nil {
		return nil, newErr(KindTransportIO, "select active configuration", err)
	}

	var found *gousb.InterfaceSetting
	for _, ifaces := range cfg.Desc.Interfaces {
		for _, alt := range ifaces.AltSettings {
			if alt.Class == gousb.ClassCode(usbClassSmartCard) {
				setting := alt
				found = &setting
				break
			}
		}
		if found != nil {
			break
		}
	}
	if found == nil {
		_ = cfg.Close()
		return nil, newErr(KindNotCcidDevice, "no CCID-class interface found", nil)
	}

	intf, err := cfg.Interface(found.Number, found.Alternate)
	if err != nil {
		_ = cfg.Close()
		return nil, newErr(KindTransportIO, "claim CCID interface", err)
	}

	var epIn *gousb.InEndpoint
	var epOut *gousb.OutEndpoint
	for _, ep := range found.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && epIn == nil {
			in, err := intf.InEndpoint(ep.Number)
			if err == nil {
				epIn = in
			}
		}
		if ep.Direction == gousb.EndpointDirectionOut && epOut == nil {
			out, err := intf.OutEndpoint(ep.Number)
			if err == nil {
				epOut = out
			}
		}
	}
	if epIn == nil || epOut == nil {
		intf.Close()
		_ = cfg.Close()
		return nil, newErr(KindNotCcidDevice, "CCID bulk endpoints not found", nil)
	}

	return &usbTransport{
		ctx:     ctx,
		dev:     dev,
		intf:    intf,
		epIn:    epIn,
		epOut:   epOut,
		timeout: defaultTransferTimeout,
	}, nil
}

func (t *usbTransport) writeBulk(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	n, err := t.epOut.WriteContext(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return newErr(KindTimeout, "bulk write did not complete", err)
		}
		return newErr(KindTransportIO, "bulk write failed", err)
	}
	if n != len(data) {
		return newErr(KindTransportIO, "short bulk write", nil)
	}
	return nil
}

func (t *usbTransport) readBulk(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	buf := make([]byte, 1024)
	n, err := t.epIn.ReadContext(ctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newErr(KindTimeout, "bulk read did not complete", err)
		}
		return nil, newErr(KindTransportIO, "bulk read failed", err)
	}
	return buf[:n], nil
}

// powerOn sends PC_to_RDR_IccPowerOn. Most readers auto-power on card
// insertion, so a failure here is logged and otherwise ignored (the
// subsequent XfrBlock will fail loudly if the card genuinely isn't powered).
func (t *usbTransport) powerOn(ctx context.Context) {
	seq := t.seq.advance()
	cmd := buildPowerOn(0, seq)
	if err := t.writeBulk(ctx, cmd); err != nil {
		slog.Debug("power on write failed", "err", err)
		return
	}
	resp, err := t.readBulk(ctx)
	if err != nil {
		slog.Debug("power on read failed", "err", err)
		return
	}
	if _, err := parseCcidResponse(resp); err != nil {
		slog.Debug("power on response unparseable", "err", err)
	}
}

// transmitAPDU sends one XfrBlock command carrying apdu and returns the
// R-APDU bytes from the DataBlock response.
func (t *usbTransport) transmitAPDU(ctx context.Context, apdu []byte) ([]byte, error) {
	t.powerOn(ctx)

	seq := t.seq.advance()
	cmd := buildXfrBlock(0, seq, apdu)

	slog.Debug("ccid xfrblock", "seq", seq, "len", len(apdu))

	if err := t.writeBulk(ctx, cmd); err != nil {
		return nil, err
	}
	raw, err := t.readBulk(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := parseCcidResponse(raw)
	if err != nil {
		return nil, err
	}
	if err := resp.checkICCError(); err != nil {
		return nil, err
	}
	return resp.payload, nil
}

// getSlotStatus issues GetSlotStatus, used by reset() to resync the CCID
// sequence and slot state after a cancelled exchange.
func (t *usbTransport) getSlotStatus(ctx context.Context) error {
	seq := t.seq.advance()
	if err := t.writeBulk(ctx, buildGetSlotStatus(0, seq)); err != nil {
		return err
	}
	raw, err := t.readBulk(ctx)
	if err != nil {
		return err
	}
	resp, err := parseCcidResponse(raw)
	if err != nil {
		return err
	}
	return resp.checkICCError()
}

// close releases the claimed interface and closes the device handle and the
// USB context. It is called by Card.Close, and by FindFirstCard when a
// device fails card initialization.
func (t *usbTransport) close() {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.dev != nil {
		_ = t.dev.Close()
	}
	if t.ctx != nil {
		_ = t.ctx.Close()
	}
}
