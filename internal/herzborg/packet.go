package herzborg

import (
	"encoding/hex"
	"fmt"
)

// Frame layout: start, address (low, high), function, data address,
// payload, CRC-16 (low, high).
const (
	startByte byte = 0x55

	startOffset    = 0
	addressOffset  = 1
	functionOffset = 3
	dataAddrOffset = 4
	payloadOffset  = 5

	headerLength = payloadOffset
	crcLength    = 2

	// MinLength is the size of a frame without payload.
	MinLength = headerLength + crcLength

	// MaxWriteData is the most registers one WRITE frame can carry; the
	// count travels in a single byte.
	MaxWriteData = 0xff
)

// Function codes.
const (
	FunctionRead    byte = 0x01
	FunctionWrite   byte = 0x02
	FunctionControl byte = 0x03
)

// Control codes carried in the data address byte of CONTROL frames.
const (
	ControlOpen    byte = 0x01
	ControlClose   byte = 0x02
	ControlStop    byte = 0x03
	ControlPercent byte = 0x04
)

// Register addresses.
const (
	RegPosition         byte = 0x02
	RegDefaultDirection byte = 0x03
	RegHandStart        byte = 0x04
	RegMode             byte = 0x05
	RegExtSwitch        byte = 0x27
	RegExtHVSwitch      byte = 0x28
)

// Packet is a single frame on the Herzborg bus. It is immutable once built.
type Packet struct {
	buffer []byte
}

// NewPacket wraps raw bytes received from the bus. It never fails; use
// IsValid to check the frame.
func NewPacket(raw []byte) Packet {
	buffer := make([]byte, len(raw))
	copy(buffer, raw)
	return Packet{buffer: buffer}
}

func newRequest(address uint16, function byte, dataAddr byte, payload ...byte) Packet {
	buffer := make([]byte, MinLength+len(payload))
	buffer[startOffset] = startByte
	buffer[addressOffset] = byte(address)
	buffer[addressOffset+1] = byte(address >> 8)
	buffer[functionOffset] = function
	buffer[dataAddrOffset] = dataAddr
	copy(buffer[payloadOffset:], payload)
	crc := crc16(buffer[:len(buffer)-crcLength])
	buffer[len(buffer)-2] = byte(crc)
	buffer[len(buffer)-1] = byte(crc >> 8)
	return Packet{buffer: buffer}
}

// NewReadPacket requests count registers starting at dataAddr.
func NewReadPacket(address uint16, dataAddr byte, count byte) Packet {
	return newRequest(address, FunctionRead, dataAddr, count)
}

// NewWritePacket writes data to consecutive registers starting at dataAddr.
// Callers must keep data within MaxWriteData bytes.
func NewWritePacket(address uint16, dataAddr byte, data ...byte) Packet {
	payload := make([]byte, 0, len(data)+1)
	payload = append(payload, byte(len(data)))
	payload = append(payload, data...)
	return newRequest(address, FunctionWrite, dataAddr, payload...)
}

// NewControlPacket builds an open, close or stop command.
func NewControlPacket(address uint16, code byte) Packet {
	return newRequest(address, FunctionControl, code)
}

// NewPercentPacket moves the motor to the given position.
func NewPercentPacket(address uint16, percent byte) Packet {
	return newRequest(address, FunctionControl, ControlPercent, percent)
}

// IsValid reports whether the frame has a start byte, a full header and a
// matching checksum.
func (p Packet) IsValid() bool {
	if len(p.buffer) < MinLength || p.buffer[startOffset] != startByte {
		return false
	}
	n := len(p.buffer) - crcLength
	crc := crc16(p.buffer[:n])
	return p.buffer[n] == byte(crc) && p.buffer[n+1] == byte(crc>>8)
}

func (p Packet) Address() uint16 {
	if len(p.buffer) < functionOffset {
		return 0
	}
	return uint16(p.buffer[addressOffset]) | uint16(p.buffer[addressOffset+1])<<8
}

func (p Packet) Function() byte {
	if len(p.buffer) <= functionOffset {
		return 0
	}
	return p.buffer[functionOffset]
}

// DataAddress is the register address of READ/WRITE requests, the control
// code of CONTROL frames and the data length of READ replies.
func (p Packet) DataAddress() byte {
	if len(p.buffer) <= dataAddrOffset {
		return 0
	}
	return p.buffer[dataAddrOffset]
}

// Payload returns the bytes between the header and the checksum.
func (p Packet) Payload() []byte {
	if len(p.buffer) < MinLength {
		return nil
	}
	payload := make([]byte, len(p.buffer)-MinLength)
	copy(payload, p.buffer[payloadOffset:len(p.buffer)-crcLength])
	return payload
}

// Bytes returns a copy of the encoded frame.
func (p Packet) Bytes() []byte {
	buffer := make([]byte, len(p.buffer))
	copy(buffer, p.buffer)
	return buffer
}

// ReadCount is the number of registers a READ request asks for.
func (p Packet) ReadCount() int {
	if p.Function() != FunctionRead || len(p.buffer) <= payloadOffset {
		return 0
	}
	return int(p.buffer[payloadOffset])
}

// ExpectedReplyLength is the number of bytes the device answers this
// request with: the requested data for READ, one ack byte for WRITE and a
// full echo for CONTROL.
func (p Packet) ExpectedReplyLength() int {
	switch p.Function() {
	case FunctionRead:
		return MinLength + p.ReadCount()
	case FunctionWrite:
		return MinLength + 1
	case FunctionControl:
		return len(p.buffer)
	default:
		return MinLength
	}
}

func (p Packet) String() string {
	return hex.EncodeToString(p.buffer)
}

// checkReply validates a reply against the request that produced it.
func checkReply(request Packet, reply Packet) error {
	if !reply.IsValid() {
		return fmt.Errorf("%w: bad checksum in %s", ErrInvalidPacket, reply)
	}
	if reply.Address() != request.Address() || reply.Function() != request.Function() {
		return fmt.Errorf("%w: reply %s does not match request %s", ErrInvalidPacket, reply, request)
	}
	if request.Function() == FunctionRead {
		count := request.ReadCount()
		if int(reply.DataAddress()) != count || len(reply.Payload()) != count {
			return fmt.Errorf("%w: expected %d data bytes in %s", ErrInvalidPacket, count, reply)
		}
	}
	return nil
}
