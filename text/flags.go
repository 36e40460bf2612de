package text

import (
	"fmt"
)

// Decoder turns the raw payload of a VALUE response into the value handed to
// the consumer. The payload slice is owned by the Response and may be retained.
type Decoder func(data []byte) (any, error)

// FlagRegistry maps client flags to the Decoder used for values stored with
// those flags.
type FlagRegistry struct {
	decoders map[uint32]Decoder
}

// NewFlagRegistry returns an empty registry.
func NewFlagRegistry() *FlagRegistry {
	return &FlagRegistry{decoders: make(map[uint32]Decoder)}
}

// Register installs fn as the decoder for flag, replacing any previous one.
//
// flag must fit in 32 bits unsigned and fn must not be nil, otherwise the
// returned error wraps ErrInvalidArgument.
func (r *FlagRegistry) Register(flag int64, fn Decoder) error {
	if flag < 0 || flag > MaxFlag {
		return fmt.Errorf("%w: flag %d is not a 32 bit unsigned integer", ErrInvalidArgument, flag)
	}
	if fn == nil {
		return fmt.Errorf("%w: decoder for flag %d is nil", ErrInvalidArgument, flag)
	}

	if r.decoders == nil {
		r.decoders = make(map[uint32]Decoder)
	}
	r.decoders[uint32(flag)] = fn
	return nil
}

// Lookup returns the decoder registered for flag.
func (r *FlagRegistry) Lookup(flag uint32) (Decoder, bool) {
	fn, ok := r.decoders[flag]
	return fn, ok
}

// Len returns the number of registered decoders.
func (r *FlagRegistry) Len() int {
	return len(r.decoders)
}

// decode runs the registered decoder, or returns the payload as text.
func (r *FlagRegistry) decode(flags uint32, data []byte) (any, error) {
	fn, ok := r.decoders[flags]
	if !ok {
		return string(data), nil
	}
	return fn(data)
}
