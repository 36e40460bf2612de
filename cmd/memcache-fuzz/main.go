package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/pior/memstream/internal/fuzzer"
)

type CLI struct {
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info" enum:"debug,info,warn,error"`

	Serve  ServeCmd  `cmd:"" help:"Serve random memcached responses."`
	Run    RunCmd    `cmd:"" help:"Verify the parser against a fuzz server."`
	Stress StressCmd `cmd:"" help:"Measure the parser throughput on a fixed set of responses."`
}

// GeneratorFlags configure the fabricated replies. Server and clients must
// agree on them.
type GeneratorFlags struct {
	MaxKeySize   int      `help:"Maximum key size in bytes." default:"250"`
	MaxValueSize int      `help:"Maximum size of the random part of VALUE payloads." default:"65536"`
	MaxValues    int      `help:"Maximum VALUE responses per reply." default:"4"`
	Replies      []string `help:"Replies to fabricate, all of them when empty."`
}

func (f GeneratorFlags) Config() fuzzer.GeneratorConfig {
	return fuzzer.GeneratorConfig{
		MaxKeySize:        f.MaxKeySize,
		MaxValueSize:      f.MaxValueSize,
		MaxValuesPerReply: f.MaxValues,
		Replies:           f.Replies,
	}
}

func (f GeneratorFlags) check() error {
	known := make(map[string]bool)
	for _, name := range fuzzer.AllReplies {
		known[name] = true
	}
	for _, name := range f.Replies {
		if !known[name] {
			return fmt.Errorf("unknown reply %q, expected one of %v", name, fuzzer.AllReplies)
		}
	}
	return nil
}

// runContext is bound to the Run method of every command.
type runContext struct {
	ctx    context.Context
	logger *slog.Logger
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("memcache-fuzz"),
		kong.Description("Fuzz the memcached text protocol parser with random server responses."),
		kong.UsageOnError(),
	)

	var level slog.Level
	if err := level.UnmarshalText([]byte(cli.LogLevel)); err != nil {
		kctx.FatalIfErrorf(err)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := kctx.Run(&runContext{ctx: ctx, logger: logger})
	kctx.FatalIfErrorf(err)
}
