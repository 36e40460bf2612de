package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/memstream"
	"github.com/pior/memstream/internal/fuzzer"
)

type RunCmd struct {
	Addr           string         `help:"Fuzz server address. An in-process server is started when empty."`
	Sessions       int            `help:"Number of sessions." default:"100"`
	Replies        int            `help:"Replies per session." default:"1000"`
	Concurrency    int32          `help:"Concurrent connections." default:"4"`
	Seed           uint64         `help:"Seed of the first session, random when 0."`
	ReadBufferSize int            `help:"Size of each read from the connection." default:"4096"`
	Strict         bool           `help:"Parse in strict mode."`
	Timeout        time.Duration  `help:"Timeout of each session." default:"1m"`
	MaxFailures    uint32         `help:"Consecutive failed sessions before giving up." default:"5"`
	MetricsAddr    string         `help:"Serve Prometheus metrics on this address while running."`
	Generator      GeneratorFlags `embed:"" prefix:"gen-"`
}

func (c *RunCmd) Run(rc *runContext) error {
	if err := c.Generator.check(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(rc.ctx)
	defer cancel()
	logger := rc.logger

	addr := c.Addr
	if addr == "" {
		server := fuzzer.NewServer(fuzzer.ServerConfig{
			Generator: c.Generator.Config(),
			Logger:    logger,
		})
		if err := server.Listen("127.0.0.1:0"); err != nil {
			return err
		}
		go func() {
			if err := server.Serve(ctx); err != nil {
				logger.Error("fuzzer: server failed", "error", err)
			}
		}()
		addr = server.Addr()
	}

	stats := memstream.NewStats()
	if c.MetricsAddr != "" {
		stopMetrics := serveMetrics(c.MetricsAddr, stats, logger)
		defer stopMetrics()
	}

	pool, err := puddle.NewPool(&puddle.Config[*fuzzer.Client]{
		Constructor: func(ctx context.Context) (*fuzzer.Client, error) {
			return fuzzer.Dial(ctx, addr, fuzzer.ClientConfig{
				Generator:      c.Generator.Config(),
				Wrap:           stats.Wrap,
				ReadBufferSize: c.ReadBufferSize,
				Strict:         c.Strict,
				Logger:         logger,
			})
		},
		Destructor: func(client *fuzzer.Client) {
			_ = client.Close()
		},
		MaxSize: c.Concurrency,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	breaker := gobreaker.NewCircuitBreaker[fuzzer.Result](gobreaker.Settings{
		Name: addr,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("fuzzer: circuit breaker state changed", "server", name, "from", from.String(), "to", to.String())
		},
	})

	firstSeed := c.Seed
	if firstSeed == 0 {
		firstSeed = rand.Uint64N(1 << 48)
	}

	seeds := make(chan uint64)
	go func() {
		defer close(seeds)
		for i := 0; i < c.Sessions; i++ {
			select {
			case seeds <- firstSeed + uint64(i):
			case <-ctx.Done():
				return
			}
		}
	}()

	var passed, failed atomic.Int64
	var failedSeeds sync.Map
	start := time.Now()

	var wg sync.WaitGroup
	for i := int32(0); i < c.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for seed := range seeds {
				result, err := breaker.Execute(func() (fuzzer.Result, error) {
					return c.session(ctx, pool, seed)
				})

				switch {
				case errors.Is(err, gobreaker.ErrOpenState):
					logger.Error("fuzzer: too many failed sessions, giving up", "seed", seed)
					cancel()
					return
				case err != nil:
					failed.Add(1)
					failedSeeds.Store(seed, err)
					logger.Error("fuzzer: session failed", "seed", seed, "error", err)
				default:
					passed.Add(1)
					logger.Debug("fuzzer: session passed", "seed", seed, "replies", result.Replies, "responses", result.Responses)
				}
			}
		}()
	}
	wg.Wait()

	s := stats.Snapshot()
	poolStats := pool.Stat()
	fmt.Printf("sessions: %d passed, %d failed in %v\n", passed.Load(), failed.Load(), time.Since(start).Round(time.Millisecond))
	fmt.Printf("responses: %d, protocol errors: %d, values: %d (%d bytes), fatal errors: %d\n",
		s.TotalResponses(), s.ProtocolErrors, s.Values, s.ValueBytes, s.FatalErrors)
	fmt.Printf("connections: %d open, %d acquires\n", poolStats.TotalResources(), poolStats.AcquireCount())

	failedSeeds.Range(func(seed, err any) bool {
		fmt.Printf("  seed %d: %v\n", seed, err)
		return true
	})

	if failed.Load() > 0 || passed.Load() < int64(c.Sessions) {
		return fmt.Errorf("%d of %d sessions did not pass", int64(c.Sessions)-passed.Load(), c.Sessions)
	}
	return nil
}

// session runs one fuzz session on a pooled connection. Connections that
// failed a session are out of sync and get destroyed.
func (c *RunCmd) session(ctx context.Context, pool *puddle.Pool[*fuzzer.Client], seed uint64) (fuzzer.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	res, err := pool.Acquire(ctx)
	if err != nil {
		return fuzzer.Result{}, err
	}

	client := res.Value()
	if client.Broken() {
		res.Destroy()
		if res, err = pool.Acquire(ctx); err != nil {
			return fuzzer.Result{}, err
		}
		client = res.Value()
	}

	result, err := client.Fuzz(ctx, seed, c.Replies)
	if err != nil || client.Broken() {
		res.Destroy()
		return result, err
	}

	res.Release()
	return result, nil
}

func serveMetrics(addr string, stats *memstream.Stats, logger *slog.Logger) func() {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		memstream.NewCollector(stats, "memcache"),
		collectors.NewGoCollector(),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("fuzzer: serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("fuzzer: metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
