package text

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type event struct {
	name     string // response, error, end, close
	resp     *Response
	err      error
	hadError bool
}

// recorder records notifications and runs deferred tasks on demand.
type recorder struct {
	events []event
	tasks  []func()
}

func (r *recorder) Response(resp *Response) {
	r.events = append(r.events, event{name: "response", resp: resp})
}

func (r *recorder) Error(err error) {
	r.events = append(r.events, event{name: "error", err: err})
}

func (r *recorder) End() {
	r.events = append(r.events, event{name: "end"})
}

func (r *recorder) Close(hadError bool) {
	r.events = append(r.events, event{name: "close", hadError: hadError})
}

func (r *recorder) schedule(task func()) {
	r.tasks = append(r.tasks, task)
}

func (r *recorder) flush() {
	for len(r.tasks) > 0 {
		task := r.tasks[0]
		r.tasks = r.tasks[1:]
		task()
	}
}

func (r *recorder) names() []string {
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.name
	}
	return names
}

func (r *recorder) responses() []*Response {
	var resps []*Response
	for _, e := range r.events {
		if e.name == "response" {
			resps = append(resps, e.resp)
		}
	}
	return resps
}

func (r *recorder) errors() []error {
	var errs []error
	for _, e := range r.events {
		if e.name == "error" {
			errs = append(errs, e.err)
		}
	}
	return errs
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestParser(t *testing.T, config Config) (*Parser, *recorder) {
	t.Helper()

	rec := &recorder{}
	config.Handler = rec
	config.Defer = rec.schedule
	if config.Logger == nil {
		config.Logger = discardLogger
	}

	p, err := NewParser(config)
	require.NoError(t, err)
	return p, rec
}

func write(t *testing.T, p *Parser, chunks ...string) {
	t.Helper()
	for _, chunk := range chunks {
		n, err := p.Write([]byte(chunk))
		require.NoError(t, err)
		require.Equal(t, len(chunk), n)
	}
}
