package text

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newBenchParser(b *testing.B) *Parser {
	b.Helper()
	p, err := NewParser(Config{
		Handler: HandlerFuncs{},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Defer:   func(task func()) {},
	})
	if err != nil {
		b.Fatal(err)
	}
	return p
}

func BenchmarkParserValue(b *testing.B) {
	data := []byte("VALUE test_key_123 0 44 12345\r\nthis is a test value that is reasonably long\r\nEND\r\n")
	p := newBenchParser(b)

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Write(data)
	}
}

func BenchmarkParserLargeValue(b *testing.B) {
	payload := strings.Repeat("x", 100*1024)
	data := []byte("VALUE large_key 0 102400\r\n" + payload + "\r\n")
	p := newBenchParser(b)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Write(data)
	}
}

func BenchmarkParserLargeValueChunked(b *testing.B) {
	payload := strings.Repeat("x", 100*1024)
	data := []byte("VALUE large_key 0 102400\r\n" + payload + "\r\n")
	p := newBenchParser(b)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Typical TCP segment size
		for start := 0; start < len(data); start += 1460 {
			_, _ = p.Write(data[start:min(start+1460, len(data))])
		}
	}
}

func BenchmarkParserMixed(b *testing.B) {
	data := []byte("STORED\r\nDELETED\r\nNOT_FOUND\r\n131447\r\nSTAT pid 12345\r\nEND\r\nSERVER_ERROR out of memory\r\n")
	p := newBenchParser(b)

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Write(data)
	}
}
