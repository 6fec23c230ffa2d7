package cktap

import (
	"context"

	"github.com/skythen/apdu"
)

// cktapAID is the applet identifier "\xf0CkTapCard".
var cktapAID = []byte{0xf0, 'C', 'k', 'T', 'a', 'p', 'C', 'a', 'r', 'd'}

const (
	claISO7816   byte = 0x00
	insSelect    byte = 0xA4
	insCborData  byte = 0xCB
	insGetResp   byte = 0xC0
	p1SelectByID byte = 0x04

	sw1Success       byte = 0x90
	sw1MoreAvailable byte = 0x61
)

// apduSession wraps a rawTransport with the ISO-7816 command/response
// framing rules: CLA=0x00, INS=0xCB for cktap CBOR payloads, Lc/data/Le=0x00,
// and GET RESPONSE chaining on SW=61xx.
type apduSession struct {
	transport rawTransport
}

// selectApplet issues the initial SELECT for the cktap AID. A successful
// SELECT returns the initial cktap status CBOR.
func (s *apduSession) selectApplet(ctx context.Context) ([]byte, error) {
	capdu := apdu.Capdu{Cla: claISO7816, Ins: insSelect, P1: p1SelectByID, Data: cktapAID}
	cmdBytes, err := capdu.Bytes()
	if err != nil {
		return nil, newErr(KindCborEncode, "build SELECT apdu", err)
	}
	return s.transceive(ctx, cmdBytes)
}

// sendCbor wraps a CBOR-encoded cktap command body into a command APDU and
// exchanges it, chaining GET RESPONSE calls as needed.
func (s *apduSession) sendCbor(ctx context.Context, cborBody []byte) ([]byte, error) {
	capdu := apdu.Capdu{Cla: claISO7816, Ins: insCborData, P1: 0x00, P2: 0x00, Data: cborBody, Ne: 256}
	cmdBytes, err := capdu.Bytes()
	if err != nil {
		return nil, newErr(KindCborEncode, "build cktap command apdu", err)
	}
	return s.transceive(ctx, cmdBytes)
}

// transceive sends one command APDU, then follows any 61xx "more data
// available" status with GET RESPONSE calls until a terminal status word is
// returned.
func (s *apduSession) transceive(ctx context.Context, cmdBytes []byte) ([]byte, error) {
	raw, err := s.transport.transmitAPDU(ctx, cmdBytes)
	if err != nil {
		return nil, err
	}

	var payload []byte
	for {
		rapdu, err := apdu.ParseRapdu(raw)
		if err != nil {
			return nil, newErr(KindCborDecode, "parse R-APDU", err)
		}

		switch rapdu.SW1 {
		case sw1Success:
			if rapdu.SW2 != 0x00 {
				return nil, newErr(KindApduStatus, "non-zero SW2 on success", nil)
			}
			payload = append(payload, rapdu.Data...)
			return payload, nil
		case sw1MoreAvailable:
			payload = append(payload, rapdu.Data...)
			getResp := apdu.Capdu{Cla: claISO7816, Ins: insGetResp, P1: 0x00, P2: 0x00, Ne: int(rapdu.SW2)}
			cmdBytes, err = getResp.Bytes()
			if err != nil {
				return nil, newErr(KindCborEncode, "build GET RESPONSE apdu", err)
			}
			raw, err = s.transport.transmitAPDU(ctx, cmdBytes)
			if err != nil {
				return nil, err
			}
		default:
			return nil, newErr(KindApduStatus, apduStatusMessage(rapdu.SW1, rapdu.SW2), nil)
		}
	}
}

func apduStatusMessage(sw1, sw2 byte) string {
	switch {
	case sw1 == 0x6A && sw2 == 0x82:
		return "applet not found"
	case sw1 == 0x6D:
		return "instruction not supported"
	case sw1 == 0x6E:
		return "class not supported"
	default:
		return "non-9000 status word"
	}
}
