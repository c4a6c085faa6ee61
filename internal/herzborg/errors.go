package herzborg

import "errors"

var (
	// ErrNoBridge indicates a curtain was configured without a bus bridge.
	ErrNoBridge = errors.New("no bridge configured")
	// ErrBridgeNotReady indicates the bridge exists but has no open bus.
	ErrBridgeNotReady = errors.New("bridge handler not ready")
	// ErrNoPort indicates the bus configuration lacks a serial device.
	ErrNoPort = errors.New("serial port not configured")

	// ErrIO wraps failures reading from or writing to the bus stream.
	ErrIO = errors.New("bus i/o error")
	// ErrBusClosed is returned for requests on a bus that has been closed.
	ErrBusClosed = errors.New("bus closed")

	// ErrInvalidPacket indicates a reply failed start byte, length or CRC checks.
	ErrInvalidPacket = errors.New("invalid packet")
)

var (
	// ErrUnsupportedCommand is returned for commands a channel cannot handle.
	ErrUnsupportedCommand = errors.New("unsupported command")
	// ErrUnknownThing is returned for commands addressed to a thing that is
	// not configured.
	ErrUnknownThing = errors.New("unknown thing")
)
