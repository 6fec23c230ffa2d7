// Package cktap implements the host-side protocol stack for Coinkite tap
// cards (SATSCARD, TAPSIGNER, SATSCHIP): USB bulk transport, the CCID wire
// protocol, ISO-7816 APDU framing, the cktap CBOR codec, session
// cryptography, response verification, certificate-chain validation, and
// the per-product card object model.
//
// Discovery starts with FindFirstCard, which claims a USB CCID interface
// and selects the cktap applet, or NewEmulatorCard, which speaks the same
// protocol over the Coinkite emulator's Unix-domain socket. Both return a
// Card, whose concrete type (*SatsCard, *TapSigner, or *SatsChip) is chosen
// from the card's own status response.
package cktap
