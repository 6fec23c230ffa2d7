package cktap

import (
	"context"

	"github.com/fxamacker/cbor/v2"
)

// strictDecMode rejects unknown CBOR map keys, so a card running a newer
// protocol version fails loudly instead of silently dropping fields.
var strictDecMode = mustDecMode()

func mustDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{ExtraReturnErrors: cbor.ExtraDecErrorUnknownField}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// ckTapCodec drives one card's cktap exchanges: CBOR-encode a command,
// deliver it through the APDU layer, and CBOR-decode the response (or the
// card's {error, code} shape).
type ckTapCodec struct {
	session *apduSession
}

func newCkTapCodec(t rawTransport) *ckTapCodec {
	return &ckTapCodec{session: &apduSession{transport: t}}
}

// selectApplet performs the initial SELECT and decodes the returned status.
func (c *ckTapCodec) selectApplet(ctx context.Context) (statusResponse, error) {
	raw, err := c.session.selectApplet(ctx)
	if err != nil {
		return statusResponse{}, err
	}
	var status statusResponse
	if err := c.decodeInto(raw, &status); err != nil {
		return statusResponse{}, err
	}
	return status, nil
}

// exchange marshals cmd to CBOR, sends it, and decodes the response into
// out. If the card instead returned its {error, code} shape, exchange
// returns a *Error with KindCkTap.
func (c *ckTapCodec) exchange(ctx context.Context, cmd interface{}, out interface{}) error {
	body, err := cbor.Marshal(cmd)
	if err != nil {
		return newErr(KindCborEncode, "marshal cktap command", err)
	}
	raw, err := c.session.sendCbor(ctx, body)
	if err != nil {
		return err
	}
	return c.decodeInto(raw, out)
}

// decodeInto decodes raw CBOR into out, first checking for the card's error
// shape so a caller never has to guess which of two shapes came back.
func (c *ckTapCodec) decodeInto(raw []byte, out interface{}) error {
	var probe errorResponse
	if err := strictDecMode.Unmarshal(raw, &probe); err == nil && probe.Error != "" {
		return newCkTapErr(ckTapCodeFromInt(probe.Code), probe.Error)
	}
	if err := strictDecMode.Unmarshal(raw, out); err != nil {
		return newErr(KindCborDecode, "unmarshal cktap response", err)
	}
	return nil
}
