package fuzzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pior/memstream"
	"github.com/pior/memstream/text"
)

var (
	ErrBusy   = errors.New("fuzzer: a session is already running on this client")
	ErrClosed = errors.New("fuzzer: connection closed")
)

// ClientConfig holds the configuration of a Client.
type ClientConfig struct {
	// Generator must match the configuration of the server.
	Generator GeneratorConfig

	// Wrap, if set, wraps the handler of the parser, typically with
	// memstream.Stats.Wrap.
	Wrap func(text.Handler) text.Handler

	// ReadBufferSize is passed to the stream. Small buffers fragment the
	// responses further.
	ReadBufferSize int

	// Strict enables the strict mode of the parser.
	Strict bool

	Logger *slog.Logger
}

// Client runs fuzz sessions over one connection to a Server. Sessions run
// one at a time.
type Client struct {
	config ClientConfig
	stream *memstream.Stream
	logger *slog.Logger

	mu      sync.Mutex
	current *Verifier
	closed  chan struct{}
	runErr  error
}

// Dial connects to the fuzz server at addr and starts reading responses.
func Dial(ctx context.Context, addr string, config ClientConfig) (*Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		config: config,
		logger: logger,
		closed: make(chan struct{}),
	}

	var handler text.Handler = clientHandler{c}
	if config.Wrap != nil {
		handler = config.Wrap(handler)
	}

	stream, err := memstream.Dial(ctx, addr, memstream.StreamConfig{
		Parser:         text.Config{Handler: handler, Strict: config.Strict},
		ReadBufferSize: config.ReadBufferSize,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	c.stream = stream

	go func() {
		err := stream.Run(context.Background())
		c.mu.Lock()
		c.runErr = err
		c.mu.Unlock()
	}()

	return c, nil
}

// Fuzz requests count replies of seed and verifies them.
func (c *Client) Fuzz(ctx context.Context, seed uint64, count int) (Result, error) {
	if c.Broken() {
		return Result{}, ErrClosed
	}

	v := NewVerifier(seed, count, c.config.Generator)

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return Result{}, ErrBusy
	}
	c.current = v
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
	}()

	if err := c.stream.Send(ctx, fmt.Sprintf("FUZZ %d %d", seed, count)); err != nil {
		return Result{}, err
	}

	select {
	case <-v.Complete():
	case <-c.closed:
		// The close notification reached the verifier before c.closed
	case <-ctx.Done():
		// The connection is out of sync now
		_ = c.Close()
		return v.Result(), ctx.Err()
	}

	result := v.Result()
	if !v.Verified() {
		return result, fmt.Errorf("%w: %d of %d replies", ErrIncomplete, result.Replies, count)
	}
	return result, result.Err()
}

// Broken returns true once the connection can't run sessions anymore.
func (c *Client) Broken() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.stream.Close()
}

// Err returns why the connection stopped, once Broken.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

func (c *Client) verifier() *Verifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// clientHandler routes the notifications of the parser to the verifier of
// the running session.
type clientHandler struct {
	c *Client
}

func (h clientHandler) Response(resp *text.Response) {
	if v := h.c.verifier(); v != nil {
		v.Response(resp)
		return
	}
	h.c.logger.Warn("fuzzer: response outside of a session", "kind", resp.Kind)
}

func (h clientHandler) Error(err error) {
	if v := h.c.verifier(); v != nil {
		v.Error(err)
		return
	}
	h.c.logger.Debug("fuzzer: error outside of a session", "error", err)
}

func (h clientHandler) End() {}

func (h clientHandler) Close(hadError bool) {
	if v := h.c.verifier(); v != nil {
		v.Close(hadError)
	}
	close(h.c.closed)
}
