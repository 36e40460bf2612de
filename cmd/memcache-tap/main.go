package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/pior/memstream"
	"github.com/pior/memstream/text"
)

var decoders = map[string]text.Decoder{
	"string": text.DecodeString,
	"bytes":  text.DecodeBytes,
	"int":    text.DecodeInt,
	"uint":   text.DecodeUint,
	"float":  text.DecodeFloat,
	"bool":   text.DecodeBool,
	"json":   text.DecodeJSON,
}

type CLI struct {
	Addr    string            `help:"Memcached server address." default:"localhost:11211"`
	Strict  bool              `help:"Reject responses that are not exactly as specified."`
	Flags   map[uint32]string `help:"Decoder per client flags, e.g. --flags 1=int;2=json. Decoders: string, bytes, int, uint, float, bool, json."`
	Timeout time.Duration     `help:"Connection timeout." default:"5s"`
	Verbose bool              `short:"v" help:"Log transport events."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("memcache-tap"),
		kong.Description("Send raw text commands to memcached and print the parsed responses."),
		kong.UsageOnError(),
	)

	level := slog.LevelWarn
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.TimeOnly}))

	kctx.FatalIfErrorf(run(cli, logger))
}

func run(cli CLI, logger *slog.Logger) error {
	config := text.Config{Strict: cli.Strict, Decoders: make(map[uint32]text.Decoder)}
	for flag, name := range cli.Flags {
		fn, ok := decoders[name]
		if !ok {
			return fmt.Errorf("unknown decoder %q for flags %d", name, flag)
		}
		config.Decoders[flag] = fn
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	events := memstream.NewEventChannel(128)
	config.Handler = events

	dialCtx, cancel := context.WithTimeout(ctx, cli.Timeout)
	defer cancel()
	stream, err := memstream.Dial(dialCtx, cli.Addr, memstream.StreamConfig{Parser: config, Logger: logger})
	if err != nil {
		return err
	}
	defer stream.Close()

	fmt.Printf("Connected to %s. Type raw commands (get foo, version, stats...), data blocks on their own line, quit to exit.\n", cli.Addr)

	go func() {
		if err := stream.Run(ctx); err != nil {
			logger.Debug("memcache: stream stopped", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events.Events() {
			printEvent(event)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if cmd := strings.ToLower(strings.TrimSpace(line)); cmd == "quit" || cmd == "exit" {
			break
		}

		if err := stream.Send(ctx, line); err != nil {
			fmt.Printf("Error: %v\n", err)
			break
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
	}

	_ = stream.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}

func printEvent(event memstream.Event) {
	switch event.Type {
	case memstream.EventResponse:
		fmt.Println(formatResponse(event.Response))
	case memstream.EventError:
		fatal := ""
		if text.IsFatal(event.Err) {
			fatal = " (fatal)"
		}
		fmt.Printf("! %v%s\n", event.Err, fatal)
	case memstream.EventEnd:
		fmt.Println("-- connection ended")
	case memstream.EventClose:
		if event.HadError {
			fmt.Println("-- closed with error")
		} else {
			fmt.Println("-- closed")
		}
	}
}

func formatResponse(resp *text.Response) string {
	switch resp.Kind {
	case text.KindValue:
		cas := ""
		if resp.HasCAS {
			cas = fmt.Sprintf(" cas=%d", resp.CAS)
		}
		return fmt.Sprintf("%s %s flags=%d bytes=%d%s: %v", resp.Kind, resp.Key, resp.Flags, len(resp.Data), cas, resp.Value)
	case text.KindStat:
		return fmt.Sprintf("%s %s = %s", resp.Kind, resp.StatName, resp.StatValue)
	case text.KindVersion:
		return fmt.Sprintf("%s %s", resp.Kind, resp.Version)
	case text.KindIncrDecr:
		return fmt.Sprintf("%s %d", resp.Kind, resp.Number)
	case text.KindKey:
		return fmt.Sprintf("%s %s", resp.Kind, resp.Key)
	default:
		return resp.Kind.String()
	}
}
