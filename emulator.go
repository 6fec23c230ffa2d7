package cktap

import (
	"context"
	"net"
	"time"
)

// defaultEmulatorSocketPath matches the Coinkite emulator's default listen
// path. The core never reads environment variables itself; callers that
// want emulator mode call NewEmulatorCard with an explicit path, which the
// cmd/cktap-emulator example resolves from its own env/flag handling.
const defaultEmulatorSocketPath = "/tmp/ecard-pipe"

// emulatorTransport substitutes for the CCID layer by speaking the same
// C-APDU/R-APDU byte format over a Unix-domain stream socket, keeping the
// APDU layer above it unchanged. This differs from the real Coinkite
// emulator, which exchanges raw CBOR over the socket rather than full
// APDUs; it will not interoperate with that emulator as-is.
type emulatorTransport struct {
	path    string
	timeout time.Duration
}

func newEmulatorTransport(path string) *emulatorTransport {
	if path == "" {
		path = defaultEmulatorSocketPath
	}
	return &emulatorTransport{path: path, timeout: defaultTransferTimeout}
}

func (t *emulatorTransport) transmitAPDU(ctx context.Context, apdu []byte) ([]byte, error) {
	dialer := net.Dialer{Timeout: t.timeout}
	conn, err := dialer.DialContext(ctx, "unix", t.path)
	if err != nil {
		return nil, newErr(KindTransportIO, "dial emulator socket", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(t.timeout))
	}

	if _, err := conn.Write(apdu); err != nil {
		return nil, newErr(KindTransportIO, "write to emulator socket", err)
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, newErr(KindTransportIO, "read from emulator socket", err)
	}
	return buf[:n], nil
}

func (t *emulatorTransport) close() {}
