package main

import (
	"time"

	"github.com/pior/memstream/internal/fuzzer"
)

type ServeCmd struct {
	Addr         string         `help:"Listen address." default:"127.0.0.1:11311"`
	MaxChunkSize int            `help:"Maximum size of each write." default:"1024"`
	Interval     time.Duration  `help:"Pause between two replies." default:"0s"`
	AutoClose    bool           `help:"Close connections after their first session."`
	Generator    GeneratorFlags `embed:"" prefix:"gen-"`
}

func (c *ServeCmd) Run(rc *runContext) error {
	if err := c.Generator.check(); err != nil {
		return err
	}

	server := fuzzer.NewServer(fuzzer.ServerConfig{
		Generator:    c.Generator.Config(),
		MaxChunkSize: c.MaxChunkSize,
		Interval:     c.Interval,
		AutoClose:    c.AutoClose,
		Logger:       rc.logger,
	})

	if err := server.Listen(c.Addr); err != nil {
		return err
	}
	return server.Serve(rc.ctx)
}
