package railintegration

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcwave/benchlink/device"
	"github.com/arcwave/benchlink/keystream"
	"github.com/arcwave/benchlink/logger"
	"github.com/arcwave/benchlink/rail"
)

// encryptedWord renders one logical handshake word into the byte form it
// travels in on the wire.
func encryptedWord(w uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], keystream.Encrypt(w, keystream.DefaultKey))
	return buf[:]
}

// decodeHostWords deciphers everything the host wrote to a channel back into
// logical words.
func decodeHostWords(t *testing.T, raw []byte) []uint32 {
	t.Helper()
	require.Zero(t, len(raw)%4, "host wrote a fractional word")

	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = keystream.Decrypt(binary.BigEndian.Uint32(raw[4*i:]), keystream.DefaultKey)
	}
	return words
}

// scriptChannel preloads the device side of one channel's handshake.
func scriptChannel(t *testing.T, sess *device.Loopback, channel uint8, words []uint32) {
	t.Helper()
	for _, w := range words {
		require.NoError(t, sess.Write(2*channel, encryptedWord(w)))
	}
}

func newFastSweeper(t *testing.T, sess device.Session, store *rail.Store) *rail.Sweeper {
	t.Helper()

	sweeper, err := rail.NewSweeper(sess, store,
		rail.WithLogger(logger.GetLogger()),
		rail.WithChannelCount(1),
		rail.WithMissRetryDelay(0),
		rail.WithAckPoll(2, 0),
		rail.WithFinalPollLimit(2),
		rail.WithSettleDelay(0),
		rail.WithInterChannelDelay(0),
		rail.WithAttemptBudget(1),
		rail.WithPassBudget(1),
	)
	require.NoError(t, err)
	return sweeper
}

func TestRailSweepEndToEnd(t *testing.T) {
	tablePath := filepath.Join(t.TempDir(), "track_data.csv")
	store := rail.NewStore(tablePath, logger.GetLogger())
	require.NoError(t, store.Load())

	sess := device.NewLoopback()
	defer sess.Close()

	// Channel 0 announces coordinate 0x21 (rail 2, block 1), requests the
	// block, acks both payload words and confirms with a coordinate echo.
	scriptChannel(t, sess, 0, []uint32{0x21, rail.Ack1, rail.Ack1, rail.Ack1, 0x21, 0})

	sweeper := newFastSweeper(t, sess, store)
	rep, err := sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []rail.Outcome{rail.OutcomeNormalized}, rep.Outcomes)
	assert.True(t, rep.Normalized())
	assert.Equal(t, 1, rep.Passes)

	// The host side of the exchange, in order: coordinate echo, payload
	// open, the block's two factory words, payload close, confirm echo.
	want := []uint32{0x21, rail.Ack2, 0x00081018, 0x20283038, rail.Ack2, 0x21}
	assert.Equal(t, want, decodeHostWords(t, sess.Written(1)))

	// Nothing was learned, so nothing was persisted.
	_, err = os.Stat(tablePath)
	assert.True(t, os.IsNotExist(err))
}

func TestRailSweepLearnsAndPersists(t *testing.T) {
	tablePath := filepath.Join(t.TempDir(), "track_data.csv")
	store := rail.NewStore(tablePath, logger.GetLogger())
	require.NoError(t, store.Load())

	sess := device.NewLoopback()
	defer sess.Close()

	// Same handshake, but instead of confirming, the device pushes back a
	// corrected cell: 0xDD lands in cell 11 of rail 2 (block 1, slot 3).
	scriptChannel(t, sess, 0, []uint32{0x21, rail.Ack1, rail.Ack1, rail.Ack1, 0xDD})

	sweeper := newFastSweeper(t, sess, store)
	rep, err := sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []rail.Outcome{rail.OutcomeLearned}, rep.Outcomes)
	assert.Equal(t, uint8(0xDD), store.Cell(2, 11))

	data, err := os.ReadFile(tablePath)
	require.NoError(t, err)
	assert.Equal(t, "2, 1, 3, 1, 5\n", string(data))
}

func TestRailSweepUnresponsiveChannelGetsSecondPass(t *testing.T) {
	tablePath := filepath.Join(t.TempDir(), "track_data.csv")
	store := rail.NewStore(tablePath, logger.GetLogger())
	require.NoError(t, store.Load())

	sess := device.NewLoopback()
	defer sess.Close()

	// First pass: the device answers the coordinate but never raises Ack1,
	// twice (the miss re-poll consumes the second quiet word). Second pass:
	// the full confirming exchange.
	firstPass := []uint32{0x21, 0, 0}
	secondPass := []uint32{0x21, rail.Ack1, rail.Ack1, rail.Ack1, 0x21, 0}
	scriptChannel(t, sess, 0, append(firstPass, secondPass...))

	sweeper, err := rail.NewSweeper(sess, store,
		rail.WithLogger(logger.GetLogger()),
		rail.WithChannelCount(1),
		rail.WithMissRetryDelay(0),
		rail.WithAckPoll(2, 0),
		rail.WithFinalPollLimit(2),
		rail.WithSettleDelay(0),
		rail.WithInterChannelDelay(0),
		rail.WithAttemptBudget(1),
		rail.WithPassBudget(2),
	)
	require.NoError(t, err)

	rep, err := sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []rail.Outcome{rail.OutcomeNormalized}, rep.Outcomes)
	assert.Equal(t, 2, rep.Passes)
}
