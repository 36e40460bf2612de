package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pior/memstream"
	"github.com/pior/memstream/internal/fuzzer"
	"github.com/pior/memstream/text"
)

type StressCmd struct {
	File      string         `help:"Read the responses from a file instead of fabricating them." type:"existingfile"`
	Seed      uint64         `help:"Seed of the fabricated responses." default:"1"`
	Replies   int            `help:"Number of fabricated replies." default:"1000"`
	Runs      int            `help:"Number of times the responses are written." default:"100"`
	ChunkSize int            `help:"Write the responses in chunks of this size, 0 for whole." default:"0"`
	Generator GeneratorFlags `embed:"" prefix:"gen-"`
}

func (c *StressCmd) Run(rc *runContext) error {
	if err := c.Generator.check(); err != nil {
		return err
	}

	control, err := c.control()
	if err != nil {
		return err
	}

	stats := memstream.NewStats()
	parser, err := text.NewParser(text.Config{
		Handler: stats.Wrap(nil),
		Logger:  rc.logger,
	})
	if err != nil {
		return err
	}

	rc.logger.Info("stress: starting", "bytes", len(control), "runs", c.Runs)

	start := time.Now()
	for i := 0; i < c.Runs; i++ {
		if err := rc.ctx.Err(); err != nil {
			return err
		}
		if err := c.write(parser, control); err != nil {
			return fmt.Errorf("run %d: %w", i, err)
		}
	}
	elapsed := time.Since(start)

	if parser.Destroyed() {
		return fmt.Errorf("the responses destroyed the parser")
	}

	total := len(control) * c.Runs
	ms := float64(elapsed) / float64(time.Millisecond)
	s := stats.Snapshot()

	fmt.Printf("%.0f ms\n", ms)
	fmt.Printf("%.0f bytes/ms\n", float64(total)/ms)
	fmt.Printf("%d responses, %d protocol errors, %d values (%d bytes)\n", s.TotalResponses(), s.ProtocolErrors, s.Values, s.ValueBytes)
	return nil
}

func (c *StressCmd) control() ([]byte, error) {
	if c.File != "" {
		return os.ReadFile(c.File)
	}

	gen := fuzzer.NewGenerator(c.Seed, c.Generator.Config())
	var control []byte
	for i := 0; i < c.Replies; i++ {
		control = append(control, gen.Next().Data...)
	}
	return control, nil
}

func (c *StressCmd) write(parser *text.Parser, data []byte) error {
	if c.ChunkSize <= 0 {
		_, err := parser.Write(data)
		return err
	}

	for len(data) > 0 {
		n := min(c.ChunkSize, len(data))
		if _, err := parser.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
