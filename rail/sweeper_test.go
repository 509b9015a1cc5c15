package rail

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcwave/benchlink/device"
	"github.com/arcwave/benchlink/keystream"
)

// defaultBlockFirst and defaultBlockSecond are the payload words of any
// factory-default block: cells 0, 8, 16, 24 and 32, 40, 48, 56.
const (
	defaultBlockFirst  uint32 = 0x00081018
	defaultBlockSecond uint32 = 0x20283038
)

// scriptDeviceWords preloads the words the fake device will speak on a
// channel, enciphered the way the real device would.
func scriptDeviceWords(t *testing.T, lb *device.Loopback, ch uint8, words ...uint32) {
	t.Helper()

	for _, w := range words {
		var frame [wordSize]byte
		binary.BigEndian.PutUint32(frame[:], keystream.Encrypt(w, keystream.DefaultKey))
		require.NoError(t, lb.Write(readChannel(ch), frame[:]))
	}
}

// hostWords decodes everything the sweeper said on a channel.
func hostWords(t *testing.T, lb *device.Loopback, ch uint8) []uint32 {
	t.Helper()

	raw := lb.Written(writeChannel(ch))
	require.Zero(t, len(raw)%wordSize, "host must speak whole words")
	words := make([]uint32, 0, len(raw)/wordSize)
	for i := 0; i < len(raw); i += wordSize {
		raw32 := binary.BigEndian.Uint32(raw[i : i+wordSize])
		words = append(words, keystream.Decrypt(raw32, keystream.DefaultKey))
	}
	return words
}

// newTestSweeper builds a single-channel sweeper with all waits collapsed.
func newTestSweeper(t *testing.T, lb *device.Loopback, opts ...Option) (*Sweeper, *Store) {
	t.Helper()

	store := NewStore(filepath.Join(t.TempDir(), "rail.csv"), nil)
	base := []Option{
		WithChannelCount(1),
		WithMissRetryDelay(0),
		WithAckPoll(2, 0),
		WithFinalPollLimit(3),
		WithSettleDelay(0),
		WithInterChannelDelay(0),
		WithAttemptBudget(1),
		WithPassBudget(1),
	}
	sw, err := NewSweeper(lb, store, append(base, opts...)...)
	require.NoError(t, err)
	return sw, store
}

func TestNewSweeperValidation(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "rail.csv"), nil)

	_, err := NewSweeper(nil, store)
	assert.Error(t, err)

	_, err = NewSweeper(device.NewLoopback(), nil)
	assert.Error(t, err)

	bad := []Option{
		WithLogger(nil),
		WithChannelCount(0),
		WithChannelCount(NumChannels + 1),
		WithMissRetryDelay(-1),
		WithAckPoll(0, 0),
		WithAckPoll(1, -1),
		WithFinalPollLimit(0),
		WithSettleDelay(-1),
		WithInterChannelDelay(-1),
		WithAttemptBudget(0),
		WithPassBudget(0),
	}
	for _, opt := range bad {
		_, err := NewSweeper(device.NewLoopback(), store, opt)
		assert.Error(t, err)
	}
}

func TestSweeperNormalizesChannel(t *testing.T) {
	lb := device.NewLoopback()
	// Coordinate rail 2, block 1; request; two payload acks; echo; close.
	scriptDeviceWords(t, lb, 0, 0x21, Ack1, Ack1, Ack1, 0x21, 0)
	sw, _ := newTestSweeper(t, lb)

	rep, err := sw.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeNormalized, rep.Outcomes[0])
	assert.True(t, rep.Normalized())
	assert.Equal(t, 1, rep.Passes)

	want := []uint32{0x21, Ack2, defaultBlockFirst, defaultBlockSecond, Ack2, 0x21}
	assert.Equal(t, want, hostWords(t, lb, 0))
}

func TestSweeperLearnsCorrectedCell(t *testing.T) {
	lb := device.NewLoopback()
	// The final word carries value 0xDD: position (0xDD>>3)%8 = 3 in block 1.
	scriptDeviceWords(t, lb, 0, 0x21, Ack1, Ack1, Ack1, 0x000000DD)
	sw, store := newTestSweeper(t, lb)

	rep, err := sw.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeLearned, rep.Outcomes[0])
	assert.False(t, rep.Normalized())
	assert.Equal(t, uint8(0xDD), store.Cell(2, 11))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, "2, 1, 3, 1, 5\n", string(data))
}

func TestSweeperRetriesInPlaceAfterLearning(t *testing.T) {
	lb := device.NewLoopback()
	// First exchange ends with a corrected cell, the retry normalizes.
	scriptDeviceWords(t, lb, 0, 0x21, Ack1, Ack1, Ack1, 0x000000DD)
	scriptDeviceWords(t, lb, 0, 0x21, Ack1, Ack1, Ack1, 0x21, 0)
	sw, store := newTestSweeper(t, lb, WithAttemptBudget(2))

	rep, err := sw.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeNormalized, rep.Outcomes[0])
	assert.Equal(t, uint8(0xDD), store.Cell(2, 11))

	// Five words from the learning exchange, six from the one that
	// normalized; the retry's first payload word carries the learned cell.
	words := hostWords(t, lb, 0)
	require.Len(t, words, 11)
	assert.Equal(t, uint32(0x000810DD), words[7], "retry payload carries the corrected cell")
}

func TestSweeperUnresponsiveChannelGetsSecondPass(t *testing.T) {
	lb := device.NewLoopback()
	// Coordinate, then nothing that looks like a request.
	scriptDeviceWords(t, lb, 0, 0x21, 0, 0)
	sw, _ := newTestSweeper(t, lb, WithPassBudget(2))

	rep, err := sw.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnresponsive, rep.Outcomes[0])
	assert.Equal(t, 2, rep.Passes)
}

func TestSweeperStalledChannelIsAbandoned(t *testing.T) {
	lb := device.NewLoopback()
	// The request arrives but the first payload word is never acknowledged.
	scriptDeviceWords(t, lb, 0, 0x21, Ack1, 0, 0)
	sw, _ := newTestSweeper(t, lb)

	rep, err := sw.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeStalled, rep.Outcomes[0])
	want := []uint32{0x21, Ack2, defaultBlockFirst}
	assert.Equal(t, want, hostWords(t, lb, 0), "second payload word must not be sent")
}

func TestSweeperSilentChannel(t *testing.T) {
	lb := device.NewLoopback()
	scriptDeviceWords(t, lb, 0, 0x21, Ack1, Ack1, Ack1)
	sw, _ := newTestSweeper(t, lb)

	rep, err := sw.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSilent, rep.Outcomes[0])
}

func TestSweeperMasksOutOfRangeCoordinate(t *testing.T) {
	lb := device.NewLoopback()
	// Rail 15, block 15: table access masks to rail 7, block 7, but the
	// echo must reflect the received byte.
	scriptDeviceWords(t, lb, 0, 0xFF, Ack1, Ack1, Ack1, 0xFF, 0)
	sw, _ := newTestSweeper(t, lb)

	rep, err := sw.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeNormalized, rep.Outcomes[0])
	want := []uint32{0xFF, Ack2, defaultBlockFirst, defaultBlockSecond, Ack2, 0xFF}
	assert.Equal(t, want, hostWords(t, lb, 0))
}

func TestSweeperTransportError(t *testing.T) {
	lb := device.NewLoopback()
	lb.FailReads(errors.New("bus gone"))
	sw, _ := newTestSweeper(t, lb)

	_, err := sw.Run(context.Background())
	assert.Error(t, err)
}

func TestSweeperHonorsCancellation(t *testing.T) {
	lb := device.NewLoopback()
	sw, _ := newTestSweeper(t, lb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := sw.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomePending, rep.Outcomes[0])
}

func TestOutcomeAndStateStrings(t *testing.T) {
	assert.Equal(t, "normalized", OutcomeNormalized.String())
	assert.Equal(t, "unresponsive", OutcomeUnresponsive.String())
	assert.Equal(t, "stalled", OutcomeStalled.String())
	assert.Equal(t, "learned", OutcomeLearned.String())
	assert.Equal(t, "silent", OutcomeSilent.String())
	assert.Equal(t, "pending", OutcomePending.String())

	assert.Equal(t, "await-initial-ack", StateAwaitInitialAck.String())
	assert.Equal(t, "sending-coarse-payload", StateSendingCoarsePayload.String())
	assert.Equal(t, "await-final-ack", StateAwaitFinalAck.String())
	assert.Equal(t, "settled-or-timed-out", StateSettledOrTimedOut.String())
}

func TestReportString(t *testing.T) {
	rep := &Report{
		Outcomes: []Outcome{
			OutcomeNormalized, OutcomeNormalized, OutcomeUnresponsive, OutcomeSilent,
		},
		Passes: 2,
	}

	assert.Equal(t, "passes 2: 2 normalized, 1 unresponsive, 1 silent", rep.String())
	assert.False(t, rep.Normalized())

	counts := rep.Counts()
	assert.Equal(t, 2, counts[OutcomeNormalized])
	assert.Equal(t, 1, counts[OutcomeUnresponsive])
}
