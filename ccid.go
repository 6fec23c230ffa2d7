package cktap

import "encoding/binary"

// CCID message types, per USB-IF CCID spec v1.1. Only the subset cktap
// readers actually exercise is implemented: PowerOn (optional on most
// readers), GetSlotStatus, and XfrBlock for the APDU exchange itself.
const (
	ccidPcToRdrIccPowerOn    byte = 0x62
	ccidPcToRdrGetSlotStatus byte = 0x65
	ccidPcToRdrXfrBlock      byte = 0x6F

	ccidRdrToPcDataBlock  byte = 0x80
	ccidRdrToPcSlotStatus byte = 0x81
)

// ccidVoltageAuto requests automatic voltage selection on power-on, the only
// mode cktap readers need.
const ccidVoltageAuto byte = 0x00

// ccidHeader is the fixed 10-byte header prefixing every CCID message, all
// multi-byte fields little-endian.
type ccidHeader struct {
	messageType byte
	length      uint32
	slot        byte
	sequence    byte
	specific    [3]byte
}

func (h ccidHeader) bytes() []byte {
	buf := make([]byte, 10)
	buf[0] = h.messageType
	binary.LittleEndian.PutUint32(buf[1:5], h.length)
	buf[5] = h.slot
	buf[6] = h.sequence
	copy(buf[7:10], h.specific[:])
	return buf
}

func parseCcidHeader(buf []byte) (ccidHeader, error) {
	if len(buf) < 10 {
		return ccidHeader{}, newErr(KindCcid, "response shorter than CCID header", nil)
	}
	var h ccidHeader
	h.messageType = buf[0]
	h.length = binary.LittleEndian.Uint32(buf[1:5])
	h.slot = buf[5]
	h.sequence = buf[6]
	copy(h.specific[:], buf[7:10])
	return h, nil
}

// ccidSequencer hands out the monotonically increasing 8-bit sequence number
// CCID uses to loosely correlate command/response pairs. It wraps freely
// (0xFF -> 0x00).
type ccidSequencer struct {
	next byte
}

func (s *ccidSequencer) advance() byte {
	seq := s.next
	s.next++
	return seq
}

// buildXfrBlock frames an APDU payload as a PC_to_RDR_XfrBlock command.
func buildXfrBlock(slot, sequence byte, apdu []byte) []byte {
	h := ccidHeader{
		messageType: ccidPcToRdrXfrBlock,
		length:      uint32(len(apdu)),
		slot:        slot,
		sequence:    sequence,
	}
	return append(h.bytes(), apdu...)
}

// buildPowerOn frames a PC_to_RDR_IccPowerOn command requesting automatic
// voltage selection.
func buildPowerOn(slot, sequence byte) []byte {
	h := ccidHeader{
		messageType: ccidPcToRdrIccPowerOn,
		length:      0,
		slot:        slot,
		sequence:    sequence,
	}
	h.specific[0] = ccidVoltageAuto
	return h.bytes()
}

// buildGetSlotStatus frames a PC_to_RDR_GetSlotStatus command, used by
// reset() to resync after a cancelled or partially-completed exchange.
func buildGetSlotStatus(slot, sequence byte) []byte {
	h := ccidHeader{
		messageType: ccidPcToRdrGetSlotStatus,
		length:      0,
		slot:        slot,
		sequence:    sequence,
	}
	return h.bytes()
}

// ccidICCStatus and ccidICCError decode the bStatus byte (offset 7, shared
// with the header's sequence-adjacent reserved byte on RDR_to_PC messages)
// into the slot-status and slot-error nibbles.
type ccidICCStatus byte

const (
	ccidStatusActiveICC   ccidICCStatus = 0
	ccidStatusInactiveICC ccidICCStatus = 1
	ccidStatusNoICC       ccidICCStatus = 2
)

type ccidICCError byte

const (
	ccidErrorNone         ccidICCError = 0
	ccidErrorCommandError ccidICCError = 1
	ccidErrorMoreTime     ccidICCError = 2
	ccidErrorHardware     ccidICCError = 3
)

// ccidResponse is a parsed RDR_to_PC message: DataBlock (carries the R-APDU)
// or SlotStatus (carries no payload).
type ccidResponse struct {
	header     ccidHeader
	payload    []byte
	iccStatus  ccidICCStatus
	iccError   ccidICCError
	statusByte byte
}

// parseCcidResponse parses one bulk-IN packet into a ccidResponse. The
// status byte lives at offset 7 for all RDR_to_PC messages (it overlays the
// reserved bytes a PC_to_RDR message would use for message-specific
// fields).
func parseCcidResponse(buf []byte) (ccidResponse, error) {
	h, err := parseCcidHeader(buf)
	if err != nil {
		return ccidResponse{}, err
	}

	if h.messageType != ccidRdrToPcDataBlock && h.messageType != ccidRdrToPcSlotStatus {
		return ccidResponse{}, newErr(KindCcid, "unexpected CCID message type", nil)
	}

	dataLen := int(h.length)
	if len(buf) < 10+dataLen {
		return ccidResponse{}, newErr(KindCcid, "response truncated relative to declared length", nil)
	}

	statusByte := h.specific[0]
	resp := ccidResponse{
		header:     h,
		payload:    buf[10 : 10+dataLen],
		iccStatus:  ccidICCStatus(statusByte & 0x03),
		iccError:   ccidICCError((statusByte >> 6) & 0x03),
		statusByte: statusByte,
	}
	return resp, nil
}

// checkICCError maps a non-zero slot error to a *Error. A non-zero chain
// parameter (T=1 I-block chaining) is not exercised by this driver and is
// treated as an unconditional Ccid failure rather than guessed at.
func (r ccidResponse) checkICCError() error {
	if r.header.messageType == ccidRdrToPcDataBlock && r.header.specific[2] != 0 {
		return newErr(KindCcid, "chained DataBlock (non-zero chain parameter) not supported", nil)
	}
	switch r.iccError {
	case ccidErrorNone:
		return nil
	case ccidErrorCommandError:
		if r.iccStatus == ccidStatusNoICC {
			return newErr(KindCcid, "no card present", nil)
		}
		if len(r.payload) == 0 {
			return newErr(KindCcid, "command error", nil)
		}
		switch r.payload[0] {
		case 0xFF:
			return newErr(KindCcid, "command aborted", nil)
		case 0xFE:
			return newErr(KindCcid, "ICC mute", nil)
		case 0xFD:
			return newErr(KindCcid, "XFR parity error", nil)
		case 0xFC:
			return newErr(KindCcid, "XFR overrun", nil)
		default:
			return newErr(KindCcid, "command error", nil)
		}
	case ccidErrorMoreTime:
		return newErr(KindCcid, "time extension requested", nil)
	default:
		return newErr(KindCcid, "hardware error", nil)
	}
}
