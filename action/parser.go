package action

import (
	"math"

	"github.com/arcwave/benchlink/hexscan"
)

const (
	// MaxChannel is the highest addressable channel.
	MaxChannel = 0x7F
	// MaxConduit is the highest selectable conduit.
	MaxConduit = 0xFF
)

// parser walks an action line byte by byte. pos is the only cursor; every
// failure is reported as a column derived from it, so nothing here mutates
// the input or keeps secondary offsets.
type parser struct {
	input string
	pos   int
}

// Parse scans a complete action line into its ordered operations. It
// returns either the full list or a *Error, never a partial result, so
// callers can execute the operations knowing the whole line was valid.
func Parse(line string) ([]Op, error) {
	p := &parser{input: line}
	var ops []Op
	for {
		var (
			op  Op
			err error
		)
		switch p.peek() {
		case 'r':
			op, err = p.readSegment()
		case 'w':
			op, err = p.writeSegment()
		case '+':
			op, err = p.conduitSegment()
		default:
			return nil, p.fail(KindIllegalChar)
		}
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		if p.peek() != ';' {
			break
		}
		p.pos++
	}
	if p.pos < len(p.input) {
		return nil, p.fail(KindIllegalChar)
	}
	return ops, nil
}

// peek returns the byte at the cursor, or 0 past the end of the line.
func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) fail(kind ErrKind) error {
	return p.failAt(p.pos, kind)
}

func (p *parser) failAt(col int, kind ErrKind) error {
	return &Error{Kind: kind, Line: p.input, Column: col}
}

// hexNumber scans a run of hex digits at the cursor. An empty run yields
// zero with the cursor unmoved. A run that overflows 64 bits fails with
// KindBadHex pointing at the start of the number.
func (p *parser) hexNumber() (uint64, error) {
	start := p.pos
	var v uint64
	for {
		n, ok := hexscan.Nibble(p.peek())
		if !ok {
			return v, nil
		}
		if v >= 1<<60 {
			return 0, p.failAt(start, KindBadHex)
		}
		v = v<<4 | uint64(n)
		p.pos++
	}
}

// readSegment parses "r<channel>[ <length>[ '<file>']]" with the cursor on
// the 'r'. A missing length defaults to one byte; a missing file sends the
// bytes to the in-memory buffer.
func (p *parser) readSegment() (Op, error) {
	p.pos++ // consume 'r'
	numStart := p.pos
	ch, err := p.hexNumber()
	if err != nil {
		return Op{}, err
	}
	if ch > MaxChannel {
		return Op{}, p.failAt(numStart, KindChannelRange)
	}
	op := Op{Kind: OpRead, Channel: uint8(ch), Length: 1}
	switch p.peek() {
	case 0, ';':
		return op, nil
	case ' ':
	default:
		return Op{}, p.fail(KindIllegalChar)
	}
	p.pos++ // consume the space before the length
	lenStart := p.pos
	length, err := p.hexNumber()
	if err != nil {
		return Op{}, err
	}
	if length > math.MaxUint32 {
		return Op{}, p.failAt(lenStart, KindBadHex)
	}
	op.Length = uint32(length)
	switch p.peek() {
	case 0, ';':
		return op, nil
	case ' ':
	default:
		return Op{}, p.fail(KindIllegalChar)
	}
	p.pos++ // consume the space before the filename
	op.File, op.fileCol, err = p.quotedString()
	if err != nil {
		return Op{}, err
	}
	return op, nil
}

// writeSegment parses "w<channel> <hexBytes>" or "w<channel> '<file>'" with
// the cursor on the 'w'. The space after the channel is mandatory.
func (p *parser) writeSegment() (Op, error) {
	p.pos++ // consume 'w'
	numStart := p.pos
	ch, err := p.hexNumber()
	if err != nil {
		return Op{}, err
	}
	if ch > MaxChannel {
		return Op{}, p.failAt(numStart, KindChannelRange)
	}
	if p.peek() != ' ' {
		return Op{}, p.fail(KindIllegalChar)
	}
	p.pos++ // consume the space before the payload
	op := Op{Kind: OpWrite, Channel: uint8(ch)}
	switch c := p.peek(); {
	case c == '"' || c == '\'':
		op.File, op.fileCol, err = p.quotedString()
		if err != nil {
			return Op{}, err
		}
	case hexscan.IsDigit(c):
		op.Data, err = p.hexBytes()
		if err != nil {
			return Op{}, err
		}
	default:
		return Op{}, p.fail(KindIllegalChar)
	}
	return op, nil
}

// conduitSegment parses "+<conduit>" with the cursor on the '+'. Unlike the
// channel of a read or write, a conduit number must run straight into the
// end of the line or the next ';'.
func (p *parser) conduitSegment() (Op, error) {
	p.pos++ // consume '+'
	numStart := p.pos
	v, err := p.hexNumber()
	if err != nil {
		return Op{}, err
	}
	if v > MaxConduit {
		return Op{}, p.failAt(numStart, KindConduitRange)
	}
	switch p.peek() {
	case 0, ';':
		return Op{Kind: OpSelectConduit, Conduit: uint8(v)}, nil
	default:
		return Op{}, p.fail(KindIllegalChar)
	}
}

// quotedString scans a quoted filename with the cursor on the opening quote
// character, which may be single or double. It returns the name and the
// column just past the closing quote, where file open failures are later
// reported.
func (p *parser) quotedString() (string, int, error) {
	quote := p.peek()
	if quote != '"' && quote != '\'' {
		return "", 0, p.fail(KindIllegalChar)
	}
	p.pos++
	start := p.pos
	for p.peek() != quote {
		if p.pos >= len(p.input) {
			return "", 0, p.failAt(start, KindUntermString)
		}
		p.pos++
	}
	if p.pos == start {
		return "", 0, p.failAt(start, KindEmptyString)
	}
	name := p.input[start:p.pos]
	p.pos++ // consume the closing quote
	return name, p.pos, nil
}

// hexBytes decodes the inline write payload with the cursor on its first
// digit. The run must have an even number of digits; an odd run fails at
// the start of the payload.
func (p *parser) hexBytes() ([]byte, error) {
	start := p.pos
	for hexscan.IsDigit(p.peek()) {
		p.pos++
	}
	run := p.input[start:p.pos]
	if len(run)%2 != 0 {
		return nil, p.failAt(start, KindOddDigits)
	}
	data := make([]byte, len(run)/2)
	for i := range data {
		b, _ := hexscan.Byte(run[2*i], run[2*i+1])
		data[i] = b
	}
	return data, nil
}
