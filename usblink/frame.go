package usblink

import (
	"encoding/binary"
	"fmt"
)

// Request opcodes.
const (
	opWrite   uint8 = 0x01
	opRead    uint8 = 0x02
	opConduit uint8 = 0x03
	opProbe   uint8 = 0x04
)

// headerSize is the fixed request header: opcode, channel, u32 argument.
const headerSize = 6

// maxChannel is the highest addressable channel number.
const maxChannel = 0x7F

// encodeFrame lays out one request as [op][channel][arg:4 BE][payload].
// The argument carries the payload length for writes, the byte count for
// reads and the conduit number for conduit selection; probe requests
// leave it zero.
func encodeFrame(op, channel uint8, arg uint32, payload []byte) []byte {
	frame := make([]byte, headerSize+len(payload))
	frame[0] = op
	frame[1] = channel
	binary.BigEndian.PutUint32(frame[2:headerSize], arg)
	copy(frame[headerSize:], payload)

	return frame
}

// decodeHeader splits a request header back into its fields. It is the
// inverse of encodeFrame's header layout.
func decodeHeader(frame []byte) (op uint8, channel uint8, arg uint32, err error) {
	if len(frame) < headerSize {
		return 0, 0, 0, fmt.Errorf("usblink: short frame header: %d bytes", len(frame))
	}

	return frame[0], frame[1], binary.BigEndian.Uint32(frame[2:headerSize]), nil
}
