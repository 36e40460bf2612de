package memstream

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/memstream/text"
)

// deferred runs the parser close notifications on demand.
type deferred struct {
	tasks []func()
}

func (d *deferred) schedule(task func()) {
	d.tasks = append(d.tasks, task)
}

func (d *deferred) run() {
	for len(d.tasks) > 0 {
		task := d.tasks[0]
		d.tasks = d.tasks[1:]
		task()
	}
}

func newStatsParser(t *testing.T, stats *Stats, next text.Handler) (*text.Parser, *deferred) {
	t.Helper()

	d := &deferred{}
	p, err := text.NewParser(text.Config{
		Handler:  stats.Wrap(next),
		Defer:    d.schedule,
		Logger:   discardLogger,
		Decoders: map[uint32]text.Decoder{1: text.DecodeInt},
	})
	require.NoError(t, err)
	return p, d
}

const statsStream = "VALUE a 0 3\r\nabc\r\nVALUE b 1 1\r\nx\r\nVALUE c 1 1\r\n7\r\nEND\r\n" +
	"SERVER_ERROR out of memory\r\nERROR\r\nSTAT pid 1\r\nSTAT uptime 2\r\nEND\r\n"

func TestStats(t *testing.T) {
	stats := NewStats()

	var forwarded []string
	next := text.HandlerFuncs{
		OnResponse: func(resp *text.Response) { forwarded = append(forwarded, resp.Kind.String()) },
		OnError:    func(err error) { forwarded = append(forwarded, "error") },
		OnEnd:      func() { forwarded = append(forwarded, "end") },
		OnClose:    func(hadError bool) { forwarded = append(forwarded, "close") },
	}

	p, d := newStatsParser(t, stats, next)
	_, err := p.Write([]byte(statsStream))
	require.NoError(t, err)
	p.End(nil)
	d.run()

	s := stats.Snapshot()
	assert.Equal(t, uint64(2), s.Responses[text.KindValue])
	assert.Equal(t, uint64(2), s.Responses[text.KindEnd])
	assert.Equal(t, uint64(2), s.Responses[text.KindStat])
	assert.Equal(t, uint64(0), s.Responses[text.KindStored])
	assert.Equal(t, uint64(6), s.TotalResponses())
	assert.Equal(t, uint64(3), s.Values)
	assert.Equal(t, uint64(5), s.ValueBytes) // The dropped value included
	assert.Equal(t, uint64(2), s.ProtocolErrors)
	assert.Equal(t, uint64(1), s.DecodeErrors)
	assert.Equal(t, uint64(0), s.FatalErrors)
	assert.Equal(t, uint64(1), s.Ends)
	assert.Equal(t, uint64(1), s.Closes)
	assert.Equal(t, uint64(0), s.ClosesWithError)

	assert.Equal(t, []string{"VALUE", "error", "VALUE", "END", "error", "error", "STAT", "STAT", "END", "end", "close"}, forwarded)
}

func TestStatsFatal(t *testing.T) {
	stats := NewStats()

	p, d := newStatsParser(t, stats, nil)
	_, err := p.Write([]byte("STORED\r\nBANANA\r\n"))
	require.NoError(t, err)
	d.run()

	p2, d2 := newStatsParser(t, stats, nil)
	p2.Destroy(errors.New("connection reset"))
	d2.run()

	s := stats.Snapshot()
	assert.Equal(t, uint64(1), s.Responses[text.KindStored])
	assert.Equal(t, uint64(2), s.FatalErrors)
	assert.Equal(t, uint64(2), s.Closes)
	assert.Equal(t, uint64(2), s.ClosesWithError)
	assert.Equal(t, uint64(0), s.Ends)
}

func TestStatsConcurrentParsers(t *testing.T) {
	stats := NewStats()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			p, err := text.NewParser(text.Config{
				Handler: stats.Wrap(nil),
				Logger:  discardLogger,
			})
			if err != nil {
				t.Error(err)
				return
			}
			for j := 0; j < 100; j++ {
				_, _ = p.Write([]byte("VALUE k 0 5\r\nhello\r\nEND\r\n"))
			}
		}()
	}
	wg.Wait()

	s := stats.Snapshot()
	assert.Equal(t, uint64(800), s.Values)
	assert.Equal(t, uint64(4000), s.ValueBytes)
	assert.Equal(t, uint64(800), s.Responses[text.KindEnd])
}
