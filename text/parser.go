package text

import (
	"bytes"
	"log/slog"

	"github.com/pior/memstream/internal/bufferpool"
)

const (
	queueInitialSize = 4096
	queueMaxRetained = 1 << 20 // 1MB - typical memcached item limit
)

var queuePool = bufferpool.New(queueInitialSize)

// State is the lifecycle state of a Parser.
type State uint8

const (
	StateActive State = iota
	StateEnding
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Config holds the configuration of a Parser.
type Config struct {
	// Handler receives the parsed responses and lifecycle notifications.
	// If nil, notifications are discarded.
	Handler Handler

	// Decoders are registered as if by RegisterFlag before the parser is
	// returned.
	Decoders map[uint32]Decoder

	// Defer schedules the delivery of the close notification (preceded by
	// the destroy error, if any). It must not run task synchronously.
	// If nil, task runs in a new goroutine.
	Defer func(task func())

	// Logger receives parser faults and discarded input.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// Strict requires response words to match exactly instead of
	// dispatching on the bytes that tell them apart.
	Strict bool

	// MaxLineLength is the longest response line accepted, terminator
	// excluded. A longer line, terminated or not, is a fatal ParseError.
	// Zero means DefaultMaxLineLength, negative means no limit.
	MaxLineLength int

	// Readable and Writable set the capability flags reported by Readable
	// and Writable. Nil means true.
	Readable *bool
	Writable *bool
}

// Parser is an incremental parser of memcached ASCII protocol responses.
//
// Bytes are fed with Write in chunks of any size, typically as they come off
// a socket. Every complete response is decoded and handed to the Handler;
// an incomplete trailing response stays buffered until enough bytes have
// been written to finish it.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	handler       Handler
	flags         *FlagRegistry
	deferFn       func(task func())
	logger        *slog.Logger
	strict        bool
	maxLineLength int

	queue     *bytes.Buffer
	expecting int

	// Input written by a handler during a parse pass, appended after it.
	deferred []byte
	parsing  bool
	// epoch changes on Reset and Destroy, interrupting the current pass.
	epoch uint64

	state     State
	readable  bool
	writable  bool
	closeTask func()
	done      chan struct{}
}

var _ interface {
	Write(p []byte) (int, error)
	WriteString(s string) (int, error)
	Close() error
} = (*Parser)(nil)

// NewParser creates a parser in the active state.
func NewParser(config Config) (*Parser, error) {
	handler := config.Handler
	if handler == nil {
		handler = HandlerFuncs{}
	}

	deferFn := config.Defer
	if deferFn == nil {
		deferFn = func(task func()) { go task() }
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxLineLength := config.MaxLineLength
	if maxLineLength == 0 {
		maxLineLength = DefaultMaxLineLength
	}

	p := &Parser{
		handler:       handler,
		flags:         NewFlagRegistry(),
		deferFn:       deferFn,
		logger:        logger,
		strict:        config.Strict,
		maxLineLength: maxLineLength,
		queue:         queuePool.Get(),
		state:         StateActive,
		readable:      config.Readable == nil || *config.Readable,
		writable:      config.Writable == nil || *config.Writable,
		done:          make(chan struct{}),
	}

	for flag, fn := range config.Decoders {
		if err := p.flags.Register(int64(flag), fn); err != nil {
			p.releaseQueue()
			return nil, err
		}
	}

	return p, nil
}

// RegisterFlag installs fn as the decoder of VALUE payloads stored with the
// client flags flag. See FlagRegistry.Register.
func (p *Parser) RegisterFlag(flag int64, fn Decoder) error {
	return p.flags.Register(flag, fn)
}

// Write appends b to the queue and decodes every response it completes.
// The decode pass is skipped while fewer bytes than Expecting are buffered.
//
// Write returns ErrDestroyed once the parser is destroyed.
func (p *Parser) Write(b []byte) (int, error) {
	if p.state == StateDestroyed {
		return 0, ErrDestroyed
	}

	p.append(b)
	if !p.parsing && p.queue.Len() >= p.expecting {
		p.parse()
	}
	return len(b), nil
}

// WriteString is like Write with a string.
func (p *Parser) WriteString(s string) (int, error) {
	if p.state == StateDestroyed {
		return 0, ErrDestroyed
	}

	if p.parsing {
		p.deferred = append(p.deferred, s...)
		return len(s), nil
	}

	p.queue.WriteString(s)
	if p.queue.Len() >= p.expecting {
		p.parse()
	}
	return len(s), nil
}

// End signals the end of the input stream. Trailing data, if any, is
// appended and decoded first. The End notification is delivered before End
// returns, then the parser is destroyed.
func (p *Parser) End(data []byte) {
	if p.state != StateActive {
		return
	}

	p.state = StateEnding
	p.writable = false

	if len(data) > 0 {
		p.append(data)
		if !p.parsing {
			p.parse()
		}
	}

	p.handler.End()
	p.Destroy(nil)

	if task := p.closeTask; task != nil {
		p.closeTask = nil
		p.deferFn(task)
	}
}

// Close ends the stream without trailing data.
func (p *Parser) Close() error {
	p.End(nil)
	return nil
}

// Destroy discards buffered input and moves the parser to its terminal
// state. The Error notification (if err is not nil) and the Close
// notification are delivered later, through Config.Defer.
//
// Destroy is idempotent.
func (p *Parser) Destroy(err error) {
	if p.state == StateDestroyed {
		return
	}

	ending := p.state == StateEnding
	p.state = StateDestroyed
	p.writable = false
	p.expecting = 0
	p.epoch++

	if p.queue != nil && p.queue.Len() > 0 && err == nil {
		p.logger.Debug("memcache: discarding buffered input", "bytes", p.queue.Len())
	}
	if !p.parsing {
		p.releaseQueue()
	}

	handler, done := p.handler, p.done
	task := func() {
		if err != nil {
			handler.Error(err)
		}
		handler.Close(err != nil)
		close(done)
	}

	// End delivers its own notification first and schedules the close after.
	if ending {
		p.closeTask = task
		return
	}
	p.deferFn(task)
}

// Reset drops buffered input and the resume threshold, keeping the parser
// active. It has no effect on a destroyed parser.
func (p *Parser) Reset() {
	if p.queue == nil {
		return
	}
	p.queue.Reset()
	p.deferred = p.deferred[:0]
	p.expecting = 0
	p.epoch++
}

// Buffered returns the unconsumed input. The slice is only valid until the
// next call to Write.
func (p *Parser) Buffered() []byte {
	if p.queue == nil {
		return nil
	}
	return p.queue.Bytes()
}

// Expecting returns how many bytes must be buffered before the next decode
// pass is attempted. Zero means the next Write decodes immediately.
func (p *Parser) Expecting() int {
	return p.expecting
}

// State returns the lifecycle state.
func (p *Parser) State() State {
	return p.state
}

// Destroyed returns true once Destroy or End has been called.
func (p *Parser) Destroyed() bool {
	return p.state == StateDestroyed
}

// Readable reports the readable capability. It is advisory only.
func (p *Parser) Readable() bool {
	return p.readable
}

// Writable reports whether the parser still accepts input from a
// collaborator. It turns false on End and Destroy.
func (p *Parser) Writable() bool {
	return p.writable
}

// Done returns a channel closed after the Close notification was delivered.
func (p *Parser) Done() <-chan struct{} {
	return p.done
}

// append adds input to the queue, or to the deferred input during a pass.
// Appending to the queue during a pass could move the bytes being decoded.
func (p *Parser) append(b []byte) {
	if p.parsing {
		p.deferred = append(p.deferred, b...)
		return
	}
	p.queue.Write(b)
}

func (p *Parser) releaseQueue() {
	if p.queue == nil {
		return
	}
	queuePool.Put(p.queue, queueMaxRetained)
	p.queue = nil
	p.deferred = nil
}
