package rail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arcwave/benchlink/device"
	"github.com/arcwave/benchlink/internal/queue"
	"github.com/arcwave/benchlink/keystream"
	"github.com/arcwave/benchlink/logger"
)

// Handshake vocabulary. The device raises Ack1 to request the table and to
// acknowledge each payload word; the host answers Ack2 to open and to close
// the payload phase.
const (
	Ack1 uint32 = 0xCCCCCCCC
	Ack2 uint32 = 0x33333333
)

// Defaults mirror the device's production timing. Tests shrink them
// through the options.
const (
	DefaultKey               = keystream.DefaultKey
	DefaultMissRetryDelay    = 5 * time.Second
	DefaultAckPollLimit      = 256
	DefaultAckPollInterval   = time.Second
	DefaultFinalPollLimit    = 20
	DefaultSettleDelay       = 24 * time.Second
	DefaultInterChannelDelay = 20 * time.Second
	DefaultAttemptBudget     = 3
	DefaultPassBudget        = 2
)

// ChannelState tracks where a channel sits in its handshake lifecycle.
type ChannelState uint8

const (
	StateAwaitInitialAck ChannelState = iota + 1
	StateSendingCoarsePayload
	StateAwaitFinalAck
	StateSettledOrTimedOut
)

func (s ChannelState) String() string {
	switch s {
	case StateAwaitInitialAck:
		return "await-initial-ack"
	case StateSendingCoarsePayload:
		return "sending-coarse-payload"
	case StateAwaitFinalAck:
		return "await-final-ack"
	case StateSettledOrTimedOut:
		return "settled-or-timed-out"
	default:
		return "unknown"
	}
}

// Outcome classifies how a channel ended a sweep pass.
type Outcome uint8

const (
	// OutcomePending marks a channel the sweep has not reached.
	OutcomePending Outcome = iota
	// OutcomeNormalized means the device confirmed the block with a
	// coordinate echo.
	OutcomeNormalized
	// OutcomeUnresponsive means the device never raised Ack1 after the
	// coordinate exchange; the sweep grants such channels one more full pass.
	OutcomeUnresponsive
	// OutcomeStalled means the device stopped acknowledging mid-payload;
	// the channel is abandoned for the pass.
	OutcomeStalled
	// OutcomeLearned means the device pushed a corrected cell back and the
	// channel still had not confirmed when the attempt budget ran out.
	OutcomeLearned
	// OutcomeSilent means the line stayed quiet through the final poll.
	OutcomeSilent
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeNormalized:
		return "normalized"
	case OutcomeUnresponsive:
		return "unresponsive"
	case OutcomeStalled:
		return "stalled"
	case OutcomeLearned:
		return "learned"
	case OutcomeSilent:
		return "silent"
	default:
		return "unknown"
	}
}

// Option configures a Sweeper.
type Option interface {
	apply(*Sweeper) error
}

type optFunc func(*Sweeper) error

func (f optFunc) apply(s *Sweeper) error {
	return f(s)
}

// WithKey sets the cipher key shared with the device.
func WithKey(key uint32) Option {
	return optFunc(func(s *Sweeper) error {
		s.key = key
		return nil
	})
}

// WithLogger sets the sweep logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(s *Sweeper) error {
		if l == nil {
			return errors.New("rail: logger cannot be nil")
		}
		s.logger = l
		return nil
	})
}

// WithChannelCount limits the sweep to the first n channels.
func WithChannelCount(n int) Option {
	return optFunc(func(s *Sweeper) error {
		if n < 1 || n > NumChannels {
			return fmt.Errorf("rail: channel count %d outside 1..%d", n, NumChannels)
		}
		s.channels = n
		return nil
	})
}

// WithMissRetryDelay sets the wait before the single re-poll when the
// initial Ack1 is missed.
func WithMissRetryDelay(d time.Duration) Option {
	return optFunc(func(s *Sweeper) error {
		if d < 0 {
			return errors.New("rail: miss retry delay cannot be negative")
		}
		s.missRetryDelay = d
		return nil
	})
}

// WithAckPoll sets how many times, and how often, the sweep polls for a
// payload acknowledgement.
func WithAckPoll(limit int, interval time.Duration) Option {
	return optFunc(func(s *Sweeper) error {
		if limit < 1 {
			return errors.New("rail: ack poll limit must be at least 1")
		}
		if interval < 0 {
			return errors.New("rail: ack poll interval cannot be negative")
		}
		s.ackPollLimit = limit
		s.ackPollInterval = interval
		return nil
	})
}

// WithFinalPollLimit sets how many times the sweep polls for the closing
// coordinate echo.
func WithFinalPollLimit(limit int) Option {
	return optFunc(func(s *Sweeper) error {
		if limit < 1 {
			return errors.New("rail: final poll limit must be at least 1")
		}
		s.finalPollLimit = limit
		return nil
	})
}

// WithSettleDelay sets the wait between closing the payload phase and the
// final poll.
func WithSettleDelay(d time.Duration) Option {
	return optFunc(func(s *Sweeper) error {
		if d < 0 {
			return errors.New("rail: settle delay cannot be negative")
		}
		s.settleDelay = d
		return nil
	})
}

// WithInterChannelDelay sets the wait after every channel attempt.
func WithInterChannelDelay(d time.Duration) Option {
	return optFunc(func(s *Sweeper) error {
		if d < 0 {
			return errors.New("rail: inter-channel delay cannot be negative")
		}
		s.interChannelDelay = d
		return nil
	})
}

// WithAttemptBudget bounds how often one channel is retried in place while
// the device keeps correcting cells or staying silent.
func WithAttemptBudget(n int) Option {
	return optFunc(func(s *Sweeper) error {
		if n < 1 {
			return errors.New("rail: attempt budget must be at least 1")
		}
		s.attemptBudget = n
		return nil
	})
}

// WithPassBudget bounds how many full sweep passes may run.
func WithPassBudget(n int) Option {
	return optFunc(func(s *Sweeper) error {
		if n < 1 {
			return errors.New("rail: pass budget must be at least 1")
		}
		s.passBudget = n
		return nil
	})
}

// Sweeper walks the handshake channels and drives each one through its
// lifecycle, pushing table blocks out and folding corrections back into
// the store.
type Sweeper struct {
	link   *link
	store  *Store
	logger logger.Logger

	key               uint32
	quiet             uint32 // what an idle all-zero wire word deciphers to
	channels          int
	missRetryDelay    time.Duration
	ackPollLimit      int
	ackPollInterval   time.Duration
	finalPollLimit    int
	settleDelay       time.Duration
	interChannelDelay time.Duration
	attemptBudget     int
	passBudget        int
}

// NewSweeper builds a sweeper over sess that persists through store.
func NewSweeper(sess device.Session, store *Store, opts ...Option) (*Sweeper, error) {
	if sess == nil {
		return nil, errors.New("rail: session cannot be nil")
	}
	if store == nil {
		return nil, errors.New("rail: store cannot be nil")
	}
	s := &Sweeper{
		store:             store,
		logger:            logger.GetLogger(),
		key:               DefaultKey,
		channels:          NumChannels,
		missRetryDelay:    DefaultMissRetryDelay,
		ackPollLimit:      DefaultAckPollLimit,
		ackPollInterval:   DefaultAckPollInterval,
		finalPollLimit:    DefaultFinalPollLimit,
		settleDelay:       DefaultSettleDelay,
		interChannelDelay: DefaultInterChannelDelay,
		attemptBudget:     DefaultAttemptBudget,
		passBudget:        DefaultPassBudget,
	}
	for _, opt := range opts {
		if err := opt.apply(s); err != nil {
			return nil, err
		}
	}
	lnk, err := newLink(sess, s.key, s.logger)
	if err != nil {
		return nil, err
	}
	s.link = lnk
	s.quiet = keystream.Decrypt(0, s.key)
	return s, nil
}

// Report summarizes one sweep.
type Report struct {
	// Outcomes is indexed by channel.
	Outcomes []Outcome
	// Passes is how many full passes ran.
	Passes int
}

// Normalized reports whether every channel confirmed its block.
func (r *Report) Normalized() bool {
	if len(r.Outcomes) == 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if o != OutcomeNormalized {
			return false
		}
	}
	return true
}

// Counts tallies the outcomes.
func (r *Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, o := range r.Outcomes {
		counts[o]++
	}
	return counts
}

func (r *Report) String() string {
	order := []Outcome{
		OutcomeNormalized, OutcomeUnresponsive, OutcomeStalled,
		OutcomeLearned, OutcomeSilent, OutcomePending,
	}
	counts := r.Counts()
	parts := make([]string, 0, len(order))
	for _, o := range order {
		if n := counts[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	return fmt.Sprintf("passes %d: %s", r.Passes, strings.Join(parts, ", "))
}

// Run sweeps every channel once, and again (up to the pass budget) while
// any channel stayed unresponsive. Cancellation is honored between
// channels; the waits inside a handshake are the polling protocol's own
// blocking sleeps.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	rep := &Report{Outcomes: make([]Outcome, s.channels)}
	for pass := 1; pass <= s.passBudget; pass++ {
		rep.Passes = pass
		s.logger.Info("rail sweep pass starting", "pass", pass, "channels", s.channels)
		retry, err := s.runPass(ctx, rep)
		if err != nil {
			return rep, err
		}
		if !retry {
			break
		}
	}
	s.logger.Info("rail sweep finished", "report", rep.String())
	return rep, nil
}

func (s *Sweeper) runPass(ctx context.Context, rep *Report) (bool, error) {
	work := queue.NewSliceQueue[uint8](s.channels)
	for ch := 0; ch < s.channels; ch++ {
		work.Enqueue(uint8(ch))
	}
	retry := false
	for {
		ch, ok := work.Dequeue()
		if !ok {
			return retry, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		out, err := s.sweepChannel(ch)
		if err != nil {
			return false, err
		}
		rep.Outcomes[ch] = out
		if out == OutcomeUnresponsive {
			retry = true
		}
	}
}

// sweepChannel runs the exchange, retrying in place while the device keeps
// correcting cells or staying silent, up to the attempt budget. Every
// attempt ends with the inter-channel settle delay.
func (s *Sweeper) sweepChannel(ch uint8) (Outcome, error) {
	out := OutcomePending
	for attempt := 1; attempt <= s.attemptBudget; attempt++ {
		var err error
		out, err = s.exchange(ch)
		if err != nil {
			return OutcomePending, err
		}
		time.Sleep(s.interChannelDelay)
		if out != OutcomeLearned && out != OutcomeSilent {
			return out, nil
		}
		s.logger.Info("channel did not normalize, retrying in place",
			"channel", ch, "attempt", attempt, "outcome", out)
	}
	return out, nil
}

// exchange drives one full handshake on one channel.
func (s *Sweeper) exchange(ch uint8) (Outcome, error) {
	word, err := s.link.recv(ch)
	if err != nil {
		return OutcomePending, err
	}
	coord := word % 256 // coordinates ride the low byte
	rail := int(coord / 16)
	block := int(coord % 16)
	if rail >= NumRails || block >= BlocksPerRail {
		s.logger.Warn("rail coordinate out of range, masking for table access",
			"channel", ch, "coordinate", coord)
		rail &= NumRails - 1
		block &= BlocksPerRail - 1
	}
	if err := s.link.send(ch, coord); err != nil {
		return OutcomePending, err
	}

	s.logger.Debug("handshake state", "channel", ch, "state", StateAwaitInitialAck,
		"rail", rail, "block", block)
	acked, err := s.initialAck(ch)
	if err != nil {
		return OutcomePending, err
	}
	if !acked {
		s.logger.Info("no handshake request on channel", "channel", ch)
		return OutcomeUnresponsive, nil
	}

	s.logger.Debug("handshake state", "channel", ch, "state", StateSendingCoarsePayload)
	sent, err := s.sendPayload(ch, rail, block)
	if err != nil {
		return OutcomePending, err
	}
	if !sent {
		s.logger.Warn("payload acknowledgement poll exhausted", "channel", ch)
		return OutcomeStalled, nil
	}

	s.logger.Debug("handshake state", "channel", ch, "state", StateAwaitFinalAck)
	out, err := s.finalPoll(ch, coord, rail, block)
	if err != nil {
		return OutcomePending, err
	}

	s.logger.Debug("handshake state", "channel", ch, "state", StateSettledOrTimedOut,
		"outcome", out)
	return out, nil
}

// initialAck waits for the device's Ack1 request. The device may need a
// few seconds after the coordinate echo, so one miss earns a delay and a
// single re-poll before the channel is declared unresponsive.
func (s *Sweeper) initialAck(ch uint8) (bool, error) {
	for attempt := 0; ; attempt++ {
		word, err := s.link.recv(ch)
		if err != nil {
			return false, err
		}
		if word == Ack1 {
			return true, nil
		}
		if attempt >= 1 {
			return false, nil
		}
		time.Sleep(s.missRetryDelay)
	}
}

// sendPayload reloads the table, opens with Ack2 and pushes the block's two
// words, each gated on an Ack1 from the device. It returns false when an
// acknowledgement poll exhausts.
func (s *Sweeper) sendPayload(ch uint8, rail, block int) (bool, error) {
	if err := s.store.Refresh(); err != nil {
		s.logger.Warn("rail table refresh failed, sending current cells", "error", err)
	}
	first, second := s.store.BlockWords(rail, block)

	if err := s.link.send(ch, Ack2); err != nil {
		return false, err
	}
	if err := s.link.send(ch, first); err != nil {
		return false, err
	}
	acked, err := s.awaitAck(ch)
	if err != nil || !acked {
		return false, err
	}
	if err := s.link.send(ch, second); err != nil {
		return false, err
	}
	return s.awaitAck(ch)
}

// awaitAck polls for Ack1 between payload words.
func (s *Sweeper) awaitAck(ch uint8) (bool, error) {
	for i := 0; i < s.ackPollLimit; i++ {
		word, err := s.link.recv(ch)
		if err != nil {
			return false, err
		}
		if word == Ack1 {
			return true, nil
		}
		time.Sleep(s.ackPollInterval)
	}
	return false, nil
}

// finalPoll closes the payload phase, lets the device settle and waits for
// the verdict: a coordinate echo normalizes the channel, any other
// non-idle word is a corrected cell to fold back into the table.
func (s *Sweeper) finalPoll(ch uint8, coord uint32, rail, block int) (Outcome, error) {
	if err := s.link.send(ch, Ack2); err != nil {
		return OutcomePending, err
	}
	time.Sleep(s.settleDelay)

	for i := 0; i < s.finalPollLimit; i++ {
		word, err := s.link.recv(ch)
		if err != nil {
			return OutcomePending, err
		}
		switch {
		case word == coord:
			// The device repeats the coordinate once the block took hold;
			// echo it back and drain the closing word.
			if err := s.link.send(ch, coord); err != nil {
				return OutcomePending, err
			}
			if _, err := s.link.recv(ch); err != nil {
				return OutcomePending, err
			}
			s.logger.Info("channel normalized", "channel", ch, "rail", rail, "block", block)
			return OutcomeNormalized, nil
		case word != s.quiet:
			cell := block*CellsPerBlock + int(word>>3)%CellsPerBlock
			v := uint8(word)
			if err := s.store.Update(rail, cell, v); err != nil {
				s.logger.Warn("rail table update failed", "error", err)
			}
			s.logger.Info("device corrected a cell",
				"channel", ch, "rail", rail, "cell", cell, "value", v)
			return OutcomeLearned, nil
		}
		time.Sleep(s.ackPollInterval)
	}
	return OutcomeSilent, nil
}
