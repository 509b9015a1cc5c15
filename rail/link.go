package rail

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/arcwave/benchlink/device"
	"github.com/arcwave/benchlink/keystream"
	"github.com/arcwave/benchlink/logger"
	"github.com/arcwave/benchlink/transfer"
)

// wordSize is the wire length of every handshake word.
const wordSize = 4

// Each rail channel rides a device channel pair: the device speaks on the
// even channel, the host answers on the odd one.
func readChannel(c uint8) uint8  { return 2 * c }
func writeChannel(c uint8) uint8 { return 2*c + 1 }

// link moves enciphered 32-bit words over a channel pair, one byte per
// transfer, most significant byte first. Receives ride the transfer
// engine's pipelined single-byte reads; sends are four sequential byte
// writes drained by the session barrier.
type link struct {
	sess device.Session
	eng  *transfer.Engine
	key  uint32
}

func newLink(sess device.Session, key uint32, log logger.Logger) (*link, error) {
	eng, err := transfer.NewEngine(sess,
		transfer.WithReadChunkSize(1),
		transfer.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	return &link{sess: sess, eng: eng, key: key}, nil
}

// recv reads one word from the channel pair and deciphers it.
func (l *link) recv(channel uint8) (uint32, error) {
	var buf bytes.Buffer
	if _, err := l.eng.Read(readChannel(channel), wordSize, &buf); err != nil {
		return 0, fmt.Errorf("rail: receive word on channel %d: %w", channel, err)
	}
	if buf.Len() != wordSize {
		return 0, fmt.Errorf("rail: short word on channel %d: %d bytes", channel, buf.Len())
	}
	raw := binary.BigEndian.Uint32(buf.Bytes())
	return keystream.Decrypt(raw, l.key), nil
}

// send enciphers one word and writes it to the channel pair.
func (l *link) send(channel uint8, word uint32) error {
	var frame [wordSize]byte
	binary.BigEndian.PutUint32(frame[:], keystream.Encrypt(word, l.key))
	wr := writeChannel(channel)
	for _, b := range frame {
		if err := l.sess.Write(wr, []byte{b}); err != nil {
			return fmt.Errorf("rail: send word on channel %d: %w", channel, err)
		}
	}
	if err := l.sess.AwaitWrites(); err != nil {
		return fmt.Errorf("rail: send word on channel %d: %w", channel, err)
	}
	return nil
}
