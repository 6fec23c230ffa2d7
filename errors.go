package cktap

import (
	"errors"
	"fmt"
)

// Kind identifies which layer of the stack produced an *Error and how a
// caller should react to it. It mirrors the taxonomy in the driver's design:
// transport/CCID failures require a reset before retrying, CkTap failures may
// be recoverable (AuthDelayRequired via wait), and verification/chain
// failures are always fatal to the current card session.
type Kind int

const (
	// KindUnknown is never produced by this package; it is the zero value
	// so a missing Kind check fails safe.
	KindUnknown Kind = iota

	// KindTransportIO covers USB errors that are not timeouts.
	KindTransportIO
	// KindTimeout covers a bulk transfer that did not complete in time.
	KindTimeout
	// KindCcid covers a CCID status byte indicating an ICC error.
	KindCcid
	// KindApduStatus covers a non-9000/non-61xx APDU status word.
	KindApduStatus
	// KindCkTap covers a cktap CBOR {error, code} response.
	KindCkTap
	// KindCborDecode covers malformed on-wire CBOR the codec could not parse.
	KindCborDecode
	// KindCborEncode covers a command value the codec could not serialize.
	KindCborEncode
	// KindBadSignature covers a response signature that failed verification.
	KindBadSignature
	// KindCertChainInvalid covers a certificate chain not rooted at FactoryRoot.
	KindCertChainInvalid
	// KindNotCcidDevice covers a USB device that is not a CCID interface.
	KindNotCcidDevice
	// KindDeviceNotFound covers discovery finding no usable device.
	KindDeviceNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransportIO:
		return "transport_io"
	case KindTimeout:
		return "timeout"
	case KindCcid:
		return "ccid"
	case KindApduStatus:
		return "apdu_status"
	case KindCkTap:
		return "cktap"
	case KindCborDecode:
		return "cbor_decode"
	case KindCborEncode:
		return "cbor_encode"
	case KindBadSignature:
		return "bad_signature"
	case KindCertChainInvalid:
		return "cert_chain_invalid"
	case KindNotCcidDevice:
		return "not_ccid_device"
	case KindDeviceNotFound:
		return "device_not_found"
	default:
		return "unknown"
	}
}

// CkTapCode carries the taxonomy of cktap-level error codes returned in the
// {error, code} CBOR map. Named subkinds per spec: BadAuth, NeedAuth, BadCvc,
// AuthDelayRequired, BadSlot, UnknownCommand, BadParameter.
type CkTapCode int

const (
	CodeUnspecified      CkTapCode = 0
	CodeBadAuth          CkTapCode = 205
	CodeNeedAuth         CkTapCode = 401
	CodeBadCvc           CkTapCode = 206
	CodeAuthDelayReq     CkTapCode = 425
	CodeBadSlot          CkTapCode = 415
	CodeUnknownCommand   CkTapCode = 404
	CodeBadParameter     CkTapCode = 400
)

// Error is the single error type surfaced by this package. Its Kind selects
// the taxonomy bucket; Code is only meaningful when Kind == KindCkTap.
type Error struct {
	Kind    Kind
	Code    CkTapCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Kind == KindCkTap {
		if e.Cause != nil {
			return fmt.Sprintf("cktap: %s (code %d): %v", e.Message, e.Code, e.Cause)
		}
		return fmt.Sprintf("cktap: %s (code %d)", e.Message, e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &Error{Kind: KindTimeout}) match on Kind alone,
// the way the caller decides retry policy per kind rather than per message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != KindUnknown && t.Kind != e.Kind {
		return false
	}
	if t.Kind == KindCkTap && t.Code != CodeUnspecified && t.Code != e.Code {
		return false
	}
	return true
}

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func newCkTapErr(code CkTapCode, msg string) *Error {
	return &Error{Kind: KindCkTap, Code: code, Message: msg}
}

// IsAuthDelayRequired reports whether err is a cktap AuthDelayRequired
// response, the one CkTap error the caller is expected to recover from by
// invoking Wait in a loop until the delay reaches zero.
func IsAuthDelayRequired(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindCkTap && e.Code == CodeAuthDelayReq
}

// IsCertChainInvalid reports whether err is a certificate chain that failed
// to terminate at the compiled-in FactoryRoot. This is always fatal to the
// current card session and is never retried by the core itself.
func IsCertChainInvalid(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindCertChainInvalid
}
