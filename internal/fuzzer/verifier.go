package fuzzer

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/pior/memstream/text"
)

// maxMismatches bounds the mismatches kept by a Verifier.
const maxMismatches = 10

var ErrIncomplete = errors.New("fuzzer: stream closed before every reply was verified")

// Result summarizes a verified session.
type Result struct {
	Seed       uint64
	Replies    int
	Responses  int
	Errors     int // Protocol errors, all expected
	Mismatches []error
}

// Err returns the first mismatch, if any.
func (r Result) Err() error {
	if len(r.Mismatches) == 0 {
		return nil
	}
	return fmt.Errorf("fuzzer: seed %d: %d mismatches, first: %w", r.Seed, len(r.Mismatches), r.Mismatches[0])
}

// Verifier is a text.Handler checking the notifications of a parser against
// the replies fabricated by a Generator with the same seed.
type Verifier struct {
	mu       sync.Mutex
	gen      *Generator
	count    int
	result   Result
	pending  []Expectation
	complete chan struct{}
	finished bool
}

var _ text.Handler = (*Verifier)(nil)

// NewVerifier expects the count first replies of the generator seeded with
// seed.
func NewVerifier(seed uint64, count int, config GeneratorConfig) *Verifier {
	v := &Verifier{
		gen:      NewGenerator(seed, config),
		count:    count,
		result:   Result{Seed: seed},
		complete: make(chan struct{}),
	}
	if count == 0 {
		v.finish()
	}
	return v
}

// Complete returns a channel closed once every reply was verified, or the
// parser was closed.
func (v *Verifier) Complete() <-chan struct{} {
	return v.complete
}

// Result returns the verification so far.
func (v *Verifier) Result() Result {
	v.mu.Lock()
	defer v.mu.Unlock()

	result := v.result
	result.Mismatches = append([]error(nil), v.result.Mismatches...)
	return result
}

// Verified returns true once every reply was verified.
func (v *Verifier) Verified() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.result.Replies == v.count && len(v.pending) == 0
}

func (v *Verifier) Response(resp *text.Response) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.result.Responses++
	expect, ok := v.next()
	if !ok {
		v.mismatch(fmt.Errorf("unexpected %s response after %d replies", resp.Kind, v.count))
		return
	}
	if expect.Err != nil {
		v.mismatch(fmt.Errorf("reply %d: got %s response, want error %v", v.result.Replies, resp.Kind, expect.Err))
		return
	}

	got := *resp
	size, digest := len(got.Data), xxh3.Hash(got.Data)
	got.Data, got.Value = nil, nil

	if !reflect.DeepEqual(got, expect.Response) {
		v.mismatch(fmt.Errorf("reply %d: got %+v, want %+v", v.result.Replies, got, expect.Response))
		return
	}
	if resp.Kind != text.KindValue {
		return
	}
	if size != expect.Size || digest != expect.Digest {
		v.mismatch(fmt.Errorf("reply %d: payload of %q is %d bytes (%x), want %d bytes (%x)", v.result.Replies, got.Key, size, digest, expect.Size, expect.Digest))
		return
	}
	if resp.Value != string(resp.Data) {
		v.mismatch(fmt.Errorf("reply %d: value of %q is not its payload", v.result.Replies, got.Key))
	}
}

func (v *Verifier) Error(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if text.IsFatal(err) {
		v.mismatch(fmt.Errorf("parser fault after %d replies: %w", v.result.Replies, err))
		return
	}

	v.result.Errors++
	expect, ok := v.next()
	if !ok {
		v.mismatch(fmt.Errorf("unexpected error after %d replies: %w", v.count, err))
		return
	}
	if !reflect.DeepEqual(err, expect.Err) {
		v.mismatch(fmt.Errorf("reply %d: got error %#v, want %#v", v.result.Replies, err, expect.Err))
	}
}

func (v *Verifier) End() {}

func (v *Verifier) Close(hadError bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.result.Replies < v.count || len(v.pending) > 0 {
		v.mismatch(fmt.Errorf("%w: %d of %d replies", ErrIncomplete, v.result.Replies, v.count))
	}
	v.finish()
}

// next pops the next expectation, fabricating the next reply when needed.
func (v *Verifier) next() (Expectation, bool) {
	if len(v.pending) == 0 {
		if v.result.Replies >= v.count {
			return Expectation{}, false
		}
		v.pending = v.gen.Next().Expect
		v.result.Replies++
	}

	expect := v.pending[0]
	v.pending = v.pending[1:]

	if len(v.pending) == 0 && v.result.Replies == v.count {
		v.finish()
	}
	return expect, true
}

func (v *Verifier) mismatch(err error) {
	if len(v.result.Mismatches) < maxMismatches {
		v.result.Mismatches = append(v.result.Mismatches, err)
	}
}

func (v *Verifier) finish() {
	if !v.finished {
		v.finished = true
		close(v.complete)
	}
}
