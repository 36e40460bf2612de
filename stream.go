package memstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/memstream/text"
)

const DefaultReadBufferSize = 16 * 1024

var (
	ErrStreamClosed = errors.New("memcache: stream closed")
)

// StreamConfig holds the configuration of a Stream.
type StreamConfig struct {
	// Parser configures the parser the connection is pumped into.
	// Parser.Logger defaults to Logger.
	Parser text.Config

	// ReadBufferSize is the size of the buffer used for each Read.
	// Default: DefaultReadBufferSize
	ReadBufferSize int

	// DialTimeout bounds Dial when the context has no deadline.
	// Default: 5 seconds
	DialTimeout time.Duration

	// Logger receives transport events.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Stream pumps the responses read from a memcached connection into a parser.
//
// Send may be called concurrently with Run. Run must not be called
// concurrently with itself.
type Stream struct {
	conn   net.Conn
	parser *text.Parser
	logger *slog.Logger
	buf    []byte

	writeMu   sync.Mutex
	bytesRead atomic.Uint64
	closed    atomic.Bool
}

// Dial connects to a memcached server and returns a stream over the connection.
func Dial(ctx context.Context, addr string, config StreamConfig) (*Stream, error) {
	timeout := config.DialTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &text.ConnectionError{Op: "dial", Err: err}
	}

	s, err := NewStream(conn, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// NewStream returns a stream reading from conn. The stream owns conn.
func NewStream(conn net.Conn, config StreamConfig) (*Stream, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("addr", conn.RemoteAddr().String())

	if config.Parser.Logger == nil {
		config.Parser.Logger = logger
	}

	parser, err := text.NewParser(config.Parser)
	if err != nil {
		return nil, err
	}

	size := config.ReadBufferSize
	if size <= 0 {
		size = DefaultReadBufferSize
	}

	return &Stream{
		conn:   conn,
		parser: parser,
		logger: logger,
		buf:    make([]byte, size),
	}, nil
}

// Parser returns the parser fed by the stream.
func (s *Stream) Parser() *text.Parser {
	return s.parser
}

// BytesRead returns how many bytes were read from the connection.
func (s *Stream) BytesRead() uint64 {
	return s.bytesRead.Load()
}

// Run reads the connection until it ends, ctx is done or the parser is
// destroyed. Every chunk read is written to the parser as is.
//
// The end of the connection ends the parser and Run returns nil. A read
// failure destroys the parser with a *text.ConnectionError, which Run also
// returns. When ctx is done, the parser is destroyed with ctx.Err().
// Run returns text.ErrDestroyed if the parser was destroyed by a fatal
// response or by a handler.
func (s *Stream) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		s.parser.Destroy(err)
		return err
	}

	// Unblock the pending read when ctx is done
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		n, err := s.conn.Read(s.buf)
		if n > 0 {
			s.bytesRead.Add(uint64(n))
			if _, werr := s.parser.Write(s.buf[:n]); werr != nil {
				return werr
			}
			if s.parser.Destroyed() {
				return text.ErrDestroyed
			}
		}

		if err == nil {
			continue
		}

		switch {
		case errors.Is(err, io.EOF):
			s.logger.Debug("memcache: connection ended", "bytes_read", s.bytesRead.Load())
			s.parser.End(nil)
			return nil

		case ctx.Err() != nil:
			s.parser.Destroy(ctx.Err())
			return ctx.Err()

		case s.closed.Load():
			s.parser.Destroy(nil)
			return ErrStreamClosed

		default:
			connErr := &text.ConnectionError{Op: "read", Err: err}
			s.logger.Error("memcache: read failed", "error", err)
			s.parser.Destroy(connErr)
			return connErr
		}
	}
}

// Send writes a raw text command to the connection, adding the line
// terminator if it is missing. The write is bounded by the ctx deadline.
func (s *Stream) Send(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrStreamClosed
	}

	if !strings.HasSuffix(command, text.CRLF) {
		command += text.CRLF
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Set deadline based on context
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	} else {
		_ = s.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := io.WriteString(s.conn, command); err != nil {
		return &text.ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// Close closes the connection. A concurrent Run returns ErrStreamClosed.
func (s *Stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}
