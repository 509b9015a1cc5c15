package action

// OpKind identifies what an operation does to the device.
type OpKind uint8

const (
	OpRead          OpKind = iota + 1 // stream channel bytes to a file or the memory buffer
	OpWrite                           // stream inline bytes or a file to a channel
	OpSelectConduit                   // route subsequent traffic through a conduit
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpSelectConduit:
		return "select-conduit"
	default:
		return "unknown"
	}
}

// Op is one parsed segment of an action line. Which fields are meaningful
// depends on Kind: reads use Channel, Length and File (empty File means the
// in-memory buffer), writes use Channel and exactly one of Data or File, and
// conduit selections use Conduit alone.
type Op struct {
	Kind    OpKind
	Channel uint8
	Length  uint32
	Conduit uint8
	Data    []byte
	File    string

	// fileCol is the column just past the filename's closing quote, kept so
	// open and write failures surface at the position the original line
	// named the file.
	fileCol int
}
