package memstream

import (
	"errors"
	"sync/atomic"

	"github.com/pior/memstream/text"
)

// ParserStats contains statistics about parsed response streams.
//
// For Prometheus integration, see Collector:
//   - Counters: Responses (with kind label), Values, ValueBytes
//   - Counters: ProtocolErrors, DecodeErrors, FatalErrors
//   - Counters: Ends, Closes, ClosesWithError
type ParserStats struct {
	Responses       map[text.Kind]uint64 // Responses emitted, by kind
	Values          uint64               // VALUE responses, including the dropped ones
	ValueBytes      uint64               // Payload bytes of the VALUE responses counted in Values
	ProtocolErrors  uint64               // CLIENT_ERROR, SERVER_ERROR and ERROR responses
	DecodeErrors    uint64               // Values rejected by a flag decoder
	FatalErrors     uint64               // Streams destroyed with an error
	Ends            uint64               // Streams that reached their end
	Closes          uint64               // Closed parsers
	ClosesWithError uint64               // Closed parsers that were destroyed with an error
}

// TotalResponses returns the number of responses of every kind.
func (s ParserStats) TotalResponses() uint64 {
	var total uint64
	for _, n := range s.Responses {
		total += n
	}
	return total
}

// Stats counts the notifications of any number of parsers.
// All methods are safe for concurrent access.
type Stats struct {
	// Built once, only the counters change afterwards
	responses map[text.Kind]*atomic.Uint64

	values          atomic.Uint64
	valueBytes      atomic.Uint64
	protocolErrors  atomic.Uint64
	decodeErrors    atomic.Uint64
	fatalErrors     atomic.Uint64
	ends            atomic.Uint64
	closes          atomic.Uint64
	closesWithError atomic.Uint64
}

func NewStats() *Stats {
	s := &Stats{responses: make(map[text.Kind]*atomic.Uint64)}
	for _, kind := range text.Kinds() {
		s.responses[kind] = &atomic.Uint64{}
	}
	return s
}

// Wrap returns a handler recording the notifications before passing them to
// next. next may be nil.
func (s *Stats) Wrap(next text.Handler) text.Handler {
	if next == nil {
		next = text.HandlerFuncs{}
	}
	return &statsHandler{stats: s, next: next}
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() ParserStats {
	responses := make(map[text.Kind]uint64, len(s.responses))
	for kind, n := range s.responses {
		responses[kind] = n.Load()
	}

	return ParserStats{
		Responses:       responses,
		Values:          s.values.Load(),
		ValueBytes:      s.valueBytes.Load(),
		ProtocolErrors:  s.protocolErrors.Load(),
		DecodeErrors:    s.decodeErrors.Load(),
		FatalErrors:     s.fatalErrors.Load(),
		Ends:            s.ends.Load(),
		Closes:          s.closes.Load(),
		ClosesWithError: s.closesWithError.Load(),
	}
}

func (s *Stats) recordResponse(resp *text.Response) {
	if n, ok := s.responses[resp.Kind]; ok {
		n.Add(1)
	}
	if resp.Kind == text.KindValue {
		s.recordValue(len(resp.Data))
	}
}

func (s *Stats) recordValue(size int) {
	s.values.Add(1)
	s.valueBytes.Add(uint64(size))
}

func (s *Stats) recordError(err error) {
	var clientErr *text.ClientError
	var serverErr *text.ServerError
	var genericErr *text.GenericError
	var decodeErr *text.DecodeError

	switch {
	case errors.As(err, &decodeErr):
		s.decodeErrors.Add(1)
		s.recordValue(decodeErr.Size)
	case errors.As(err, &clientErr), errors.As(err, &serverErr), errors.As(err, &genericErr):
		s.protocolErrors.Add(1)
	default:
		// Parser faults, transport failures and explicit destroy errors
		s.fatalErrors.Add(1)
	}
}

func (s *Stats) recordEnd() {
	s.ends.Add(1)
}

func (s *Stats) recordClose(hadError bool) {
	s.closes.Add(1)
	if hadError {
		s.closesWithError.Add(1)
	}
}

type statsHandler struct {
	stats *Stats
	next  text.Handler
}

func (h *statsHandler) Response(resp *text.Response) {
	h.stats.recordResponse(resp)
	h.next.Response(resp)
}

func (h *statsHandler) Error(err error) {
	h.stats.recordError(err)
	h.next.Error(err)
}

func (h *statsHandler) End() {
	h.stats.recordEnd()
	h.next.End()
}

func (h *statsHandler) Close(hadError bool) {
	h.stats.recordClose(hadError)
	h.next.Close(hadError)
}
