// Package memstream connects memcached text protocol response streams to the
// incremental parser of package text.
//
// A Stream reads a connection and writes every chunk it receives to a
// text.Parser, whatever its size:
//
//	events := memstream.NewEventChannel(64)
//	stream, err := memstream.Dial(ctx, "localhost:11211", memstream.StreamConfig{
//	    Parser: text.Config{Handler: events},
//	})
//	if err != nil {
//	    return err
//	}
//	go stream.Run(ctx)
//
//	stream.Send(ctx, "get foo")
//	for event := range events.Events() {
//	    ...
//	}
//
// Stats counts the notifications of any number of parsers and Collector
// exports them to Prometheus.
package memstream
