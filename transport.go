package cktap

import "context"

// rawTransport is the unification point between the two ways an APDU can
// reach a card: a claimed USB CCID bulk interface, or a Unix-domain socket
// to the Coinkite emulator. The APDU and cktap layers above are unchanged
// between the two.
type rawTransport interface {
	transmitAPDU(ctx context.Context, apdu []byte) ([]byte, error)
	close()
}

// resetter is implemented by transports that can resync after a cancelled
// exchange. The emulator transport has no slot concept and does not
// implement it.
type resetter interface {
	getSlotStatus(ctx context.Context) error
}
