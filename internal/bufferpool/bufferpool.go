// Package bufferpool recycles the byte buffers parsers queue input in.
package bufferpool

import (
	"bytes"
	"sync"
)

// Pool is a sync.Pool of *bytes.Buffer with a fixed initial capacity.
type Pool struct {
	pool sync.Pool
}

func New(initialSize int) *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any {
				return bytes.NewBuffer(make([]byte, 0, initialSize))
			},
		},
	}
}

func (p *Pool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put resets buf and returns it to the pool.
// Buffers grown past maxRetained are dropped to let a single huge value
// be garbage collected.
func (p *Pool) Put(buf *bytes.Buffer, maxRetained int) {
	if buf.Cap() > maxRetained {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}
