package text

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrDestroyed is returned by Write once the parser has been destroyed.
	ErrDestroyed = errors.New("memcache: parser destroyed")

	// ErrInvalidArgument is wrapped by every argument validation failure.
	ErrInvalidArgument = errors.New("memcache: invalid argument")
)

// Error types for the ASCII response stream.
//
// ClientError, ServerError and GenericError are protocol errors reported by
// the server for one command. They are delivered to Handler.Error and the
// parser keeps going. ParseError and UnknownResponseError are parser faults:
// the parser destroys itself with them.

// ClientError represents a CLIENT_ERROR response from memcached.
// The server rejected the input of the previous command.
//
// Connection handling: CLOSE connection, the request stream is out of sync
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	return "CLIENT_ERROR: " + e.Message
}

// ShouldCloseConnection returns true - client errors require closing connection
func (e *ClientError) ShouldCloseConnection() bool {
	return true
}

// ServerError represents a SERVER_ERROR response from memcached.
//
// Common causes:
//   - Out of memory storing object
//   - Object too large for cache
//
// Connection handling: Connection can be REUSED
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "SERVER_ERROR: " + e.Message
}

// ShouldCloseConnection returns false - server errors don't corrupt protocol state
func (e *ServerError) ShouldCloseConnection() bool {
	return false
}

// GenericError represents a bare ERROR response: the command is not known by
// the server.
type GenericError struct {
	Message string
}

func (e *GenericError) Error() string {
	return "ERROR: " + e.Message
}

// ShouldCloseConnection returns true - generic errors indicate protocol issues
func (e *GenericError) ShouldCloseConnection() bool {
	return true
}

// ParseError is returned when a recognised response is malformed.
// The parser cannot know where the next response starts and destroys itself.
type ParseError struct {
	Message string
	Line    []byte // Offending response line, without terminator
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	msg := "parse error: " + e.Message
	if e.Line != nil {
		msg += " in " + strconv.Quote(string(e.Line))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - parse errors indicate corrupted state
func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// UnknownResponseError is returned when a response line starts with a byte
// that no response of the protocol starts with.
type UnknownResponseError struct {
	Raw []byte
}

func (e *UnknownResponseError) Error() string {
	return "memcache: unknown response " + strconv.Quote(string(e.Raw))
}

// ShouldCloseConnection returns true - the stream can't be interpreted anymore
func (e *UnknownResponseError) ShouldCloseConnection() bool {
	return true
}

// DecodeError is reported when a registered flag decoder rejects a value.
// The value is dropped and parsing continues.
type DecodeError struct {
	Key   string
	Flags uint32
	Size  int // Payload size of the dropped value
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("memcache: decoding value of %q with flags %d: %v", e.Key, e.Flags, e.Err)
}

// Unwrap returns the decoder error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns false - the stream itself is intact
func (e *DecodeError) ShouldCloseConnection() bool {
	return false
}

// ConnectionError wraps I/O errors of the transport feeding the parser.
type ConnectionError struct {
	Op  string // Operation that failed (read, write, etc.)
	Err error  // Underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - connection errors mean connection is broken
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is an interface for errors that indicate
// whether the connection should be closed.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection is a helper function to determine if an error
// requires closing the connection.
//
// Returns false for nil, ServerError and DecodeError. Unknown error types are
// treated conservatively and return true.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	return true
}

// IsFatal reports whether err is a parser fault that destroyed the parser.
func IsFatal(err error) bool {
	var parseErr *ParseError
	var unknownErr *UnknownResponseError
	return errors.As(err, &parseErr) || errors.As(err, &unknownErr)
}
