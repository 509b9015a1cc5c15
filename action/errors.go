package action

import (
	"fmt"
	"strings"
)

// Process exit codes surrounding the parse error kinds. Kind values double
// as exit codes, so the three codes that are not parse failures are listed
// here to keep the numbering in one place.
const (
	ExitSuccess   = 0  // all operations completed
	ExitTransport = 1  // device or session failure
	ExitUsage     = 12 // bad command-line arguments
)

// ErrKind classifies a parse or file failure. The numeric values are the
// process exit codes reported for each kind.
type ErrKind uint8

const (
	KindBadHex       ErrKind = iota + 2 // unparseable hex number
	KindChannelRange                    // channel outside 0x00..0x7F
	KindConduitRange                    // conduit outside 0x00..0xFF
	KindIllegalChar                     // unexpected byte in the line
	KindUntermString                    // quoted filename never closed
	KindNoMemory                        // allocation failure
	KindEmptyString                     // quoted filename is empty
	KindOddDigits                       // inline write payload has odd digit count
	KindCannotLoad                      // source file cannot be opened or read
	KindCannotSave                      // destination file cannot be created or written
)

var kindMessages = map[ErrKind]string{
	KindBadHex:       "Unparseable hex number",
	KindChannelRange: "Channel out of range",
	KindConduitRange: "Conduit out of range",
	KindIllegalChar:  "Illegal character",
	KindUntermString: "Unterminated string",
	KindNoMemory:     "No memory",
	KindEmptyString:  "Empty string",
	KindOddDigits:    "Odd number of digits",
	KindCannotLoad:   "Cannot load file",
	KindCannotSave:   "Cannot save file",
}

// Message returns the single-line description shown to the user.
func (k ErrKind) Message() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error %d", uint8(k))
}

// ExitCode returns the process exit code for this kind.
func (k ErrKind) ExitCode() int {
	return int(k)
}

// Error is a positioned failure in an action line. Column is a zero-based
// byte offset into Line identifying the byte the parser rejected, or for
// file errors the position just past the closing quote of the filename.
type Error struct {
	Kind   ErrKind
	Line   string
	Column int
}

func (e *Error) Error() string {
	return fmt.Sprintf("action: %s at column %d", e.Kind.Message(), e.Column)
}

// Diagnostic renders the two-line caret display that points at the
// offending column:
//
//	Illegal character at column 4
//	  r00 x
//	      ^
func (e *Error) Diagnostic() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s at column %d\n", e.Kind.Message(), e.Column)
	sb.WriteString("  ")
	sb.WriteString(e.Line)
	sb.WriteString("\n  ")
	sb.WriteString(strings.Repeat(" ", e.Column))
	sb.WriteString("^\n")
	return sb.String()
}
