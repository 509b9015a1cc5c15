// Package action implements the command language that drives channel
// traffic: parsing of action strings into typed operations and their
// execution against a device session through the transfer engine.
//
// An action string is a sequence of segments separated by ';':
//
//	r<channel> [<length> ['<file>']]   read, default length 1
//	w<channel> (<hexBytes>|'<file>')   write inline bytes or a file
//	+<conduit>                         select a conduit
//
// Numbers are hex. Reads without a file accumulate into an in-memory
// buffer that is hex-dumped once after the whole line has parsed and
// executed successfully.
//
// Parsing is pure: Parse either returns the full operation list or a
// positioned *Error and nothing has touched the device. Execution stops at
// the first failing operation. Every parse failure renders a caret
// diagnostic pointing at the offending byte column.
package action
