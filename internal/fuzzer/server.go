package fuzzer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pior/memstream/text"
)

// ServerConfig holds the configuration of a Server.
type ServerConfig struct {
	// Generator configures the fabricated replies. Clients must use the same
	// configuration to verify them.
	Generator GeneratorConfig

	// MaxChunkSize is the maximum size of each write to a connection. Replies
	// are split and coalesced at random offsets.
	// Default: 1024
	MaxChunkSize int

	// Interval is the pause between two replies.
	// Default: 0
	Interval time.Duration

	// AutoClose closes the connection after the first session.
	AutoClose bool

	// Logger receives connection events.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Server fabricates random memcached responses on request.
//
// A client sends "FUZZ <seed> <count>\r\n" and receives the count first
// replies of the Generator seeded with seed. "QUIT\r\n" closes the
// connection and any other command is answered with ERROR.
type Server struct {
	config ServerConfig
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewServer(config ServerConfig) *Server {
	if config.MaxChunkSize <= 0 {
		config.MaxChunkSize = 1024
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config: config,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Listen starts listening on addr. Use Addr to find the port when addr is
// "127.0.0.1:0".
func (s *Server) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("fuzzer: server is not listening")
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	s.logger.Info("fuzzer: listening", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return err
		}

		if !s.track(conn) {
			continue
		}

		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// track registers an accepted connection, or closes it when the server was
// closed after Accept returned it.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		_ = conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

// Close stops accepting connections and closes the open ones.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	logger := s.logger.With("remote", conn.RemoteAddr().String())
	logger.Debug("fuzzer: new connection")

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		fields := strings.Fields(line)
		switch {
		case len(fields) == 1 && strings.EqualFold(fields[0], "QUIT"):
			return

		case len(fields) == 3 && strings.EqualFold(fields[0], "FUZZ"):
			seed, seedErr := strconv.ParseUint(fields[1], 10, 64)
			count, countErr := strconv.Atoi(fields[2])
			if seedErr != nil || countErr != nil || count < 0 {
				_, _ = conn.Write([]byte("CLIENT_ERROR bad command line format" + text.CRLF))
				continue
			}

			start := time.Now()
			written, err := s.session(ctx, conn, seed, count)
			if err != nil {
				logger.Warn("fuzzer: session aborted", "seed", seed, "error", err)
				return
			}
			logger.Debug("fuzzer: session done", "seed", seed, "replies", count, "bytes", written, "duration", time.Since(start))

			if s.config.AutoClose {
				return
			}

		default:
			_, _ = conn.Write([]byte(text.WordError + text.CRLF))
		}
	}
}

// session writes the replies of seed, split at random offsets.
func (s *Server) session(ctx context.Context, conn net.Conn, seed uint64, count int) (int, error) {
	gen := NewGenerator(seed, s.config.Generator)
	chunks := rand.New(rand.NewPCG(seed, ^seed))

	var pending []byte
	written := 0

	flush := func(all bool) error {
		for len(pending) > 0 {
			size := 1 + chunks.IntN(s.config.MaxChunkSize)
			if size > len(pending) {
				if !all {
					return nil
				}
				size = len(pending)
			}
			if _, err := conn.Write(pending[:size]); err != nil {
				return fmt.Errorf("writing reply: %w", err)
			}
			written += size
			pending = pending[size:]
		}
		return nil
	}

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		pending = append(pending, gen.Next().Data...)

		// Coalesce short replies with the next ones
		all := s.config.Interval > 0 || i == count-1
		if err := flush(all); err != nil {
			return written, err
		}

		if s.config.Interval > 0 {
			time.Sleep(s.config.Interval)
		}
	}
	return written, nil
}
