package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchResponses(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected Response
	}{
		{name: "deleted", data: "DELETED\r\n", expected: Response{Kind: KindDeleted}},
		{name: "end", data: "END\r\n", expected: Response{Kind: KindEnd}},
		{name: "exists", data: "EXISTS\r\n", expected: Response{Kind: KindExists}},
		{name: "not found", data: "NOT_FOUND\r\n", expected: Response{Kind: KindNotFound}},
		{name: "not stored", data: "NOT_STORED\r\n", expected: Response{Kind: KindNotStored}},
		{name: "ok", data: "OK\r\n", expected: Response{Kind: KindOK}},
		{name: "stored", data: "STORED\r\n", expected: Response{Kind: KindStored}},
		{name: "touched", data: "TOUCHED\r\n", expected: Response{Kind: KindTouched}},
		{name: "version", data: "VERSION 1.2.2\r\n", expected: Response{Kind: KindVersion, Version: "1.2.2"}},
		{name: "incr", data: "131447\r\n", expected: Response{Kind: KindIncrDecr, Number: 131447}},
		{name: "incr zero", data: "0\r\n", expected: Response{Kind: KindIncrDecr, Number: 0}},
		{name: "incr max", data: "18446744073709551615\r\n", expected: Response{Kind: KindIncrDecr, Number: 18446744073709551615}},
		{name: "stat", data: "STAT pid 12345\r\n", expected: Response{Kind: KindStat, StatName: "pid", StatValue: "12345"}},
		{name: "stat with spaces", data: "STAT libevent 2.0.17 stable\r\n", expected: Response{Kind: KindStat, StatName: "libevent", StatValue: "2.0.17 stable"}},
		{name: "stat empty value", data: "STAT name \r\n", expected: Response{Kind: KindStat, StatName: "name", StatValue: ""}},
		{name: "key", data: "KEY 3 foo\r\n", expected: Response{Kind: KindKey, Key: "foo"}},
		{name: "key multibyte", data: "KEY 8 füübar\r\n", expected: Response{Kind: KindKey, Key: "füübar"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec := newTestParser(t, Config{})

			write(t, p, tt.data)

			require.Equal(t, []string{"response"}, rec.names())
			assert.Equal(t, tt.expected, *rec.events[0].resp)
			assert.Empty(t, p.Buffered())
			assert.Equal(t, 0, p.Expecting())
		})

		t.Run(tt.name+" keeps trailing bytes", func(t *testing.T) {
			p, rec := newTestParser(t, Config{})

			write(t, p, tt.data+"BANANANANA")

			require.Len(t, rec.responses(), 1)
			assert.Equal(t, "BANANANANA", string(p.Buffered()))
		})
	}
}

func TestDispatchProtocolErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected error
	}{
		{
			name:     "client error",
			data:     "CLIENT_ERROR Syntax error: cas <key> <flags> <exptime> <bytes> <casid> [noreply]\r\n",
			expected: &ClientError{Message: "Syntax error: cas <key> <flags> <exptime> <bytes> <casid> [noreply]"},
		},
		{
			name:     "client error keeps spaces",
			data:     "CLIENT_ERROR bad command line format.  \r\n",
			expected: &ClientError{Message: "bad command line format.  "},
		},
		{
			name:     "server error",
			data:     "SERVER_ERROR out of memory storing object with memcached\r\n",
			expected: &ServerError{Message: "out of memory storing object with memcached"},
		},
		{
			name:     "error",
			data:     "ERROR\r\n",
			expected: &GenericError{Message: MessageCommandNotKnown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec := newTestParser(t, Config{})

			write(t, p, tt.data+"BANANANANA")

			require.Equal(t, []string{"error"}, rec.names())
			assert.Equal(t, tt.expected, rec.events[0].err)
			assert.False(t, IsFatal(rec.events[0].err))
			assert.Equal(t, "BANANANANA", string(p.Buffered()))
			assert.False(t, p.Destroyed())
		})
	}
}

func TestDispatchGenericErrorMessage(t *testing.T) {
	p, rec := newTestParser(t, Config{})

	write(t, p, "ERROR\r\n")

	require.Equal(t, []string{"error"}, rec.names())
	assert.Contains(t, rec.events[0].err.Error(), "Command not known")
}

func TestDispatchContinuesAfterProtocolError(t *testing.T) {
	p, rec := newTestParser(t, Config{})

	write(t, p, "SERVER_ERROR out of memory\r\nSTORED\r\nERROR\r\nCLIENT_ERROR bad data chunk\r\nDELETED\r\n")

	assert.Equal(t, []string{"error", "response", "error", "error", "response"}, rec.names())
	assert.Equal(t, KindStored, rec.events[1].resp.Kind)
	assert.Equal(t, KindDeleted, rec.events[4].resp.Kind)
}

func TestDispatchUnknownResponseIsFatal(t *testing.T) {
	p, rec := newTestParser(t, Config{})

	data := []byte("STORED\r\nBANANA\r\nEND\r\n")
	n, err := p.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	assert.Equal(t, []string{"response"}, rec.names())
	assert.True(t, p.Destroyed())
	assert.Nil(t, p.Buffered())

	rec.flush()

	require.Equal(t, []string{"response", "error", "close"}, rec.names())
	var unknownErr *UnknownResponseError
	require.ErrorAs(t, rec.events[1].err, &unknownErr)
	assert.Equal(t, "BANANA", string(unknownErr.Raw))
	assert.True(t, IsFatal(rec.events[1].err))
	assert.True(t, rec.events[2].hadError)

	_, err = p.Write([]byte("END\r\n"))
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestDispatchEmptyLineIsFatal(t *testing.T) {
	p, rec := newTestParser(t, Config{})

	write(t, p, "\r\nEND\r\n")
	rec.flush()

	assert.Equal(t, []string{"error", "close"}, rec.names())
	assert.True(t, IsFatal(rec.events[0].err))
}

func TestDispatchMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "incr with letters", data: "12abc\r\n"},
		{name: "incr overflow", data: "18446744073709551616\r\n"},
		{name: "stat without value", data: "STAT pid\r\n"},
		{name: "stat without name", data: "STAT\r\n"},
		{name: "key without key", data: "KEY 3\r\n"},
		{name: "key bad length", data: "KEY x foo\r\n"},
		{name: "key length mismatch", data: "KEY 4 foo\r\n"},
		{name: "value without flags", data: "VALUE foo\r\n"},
		{name: "value without size", data: "VALUE foo 0\r\n"},
		{name: "value bad flags", data: "VALUE foo x 3\r\nbar\r\n"},
		{name: "value flags overflow", data: "VALUE foo 4294967296 3\r\nbar\r\n"},
		{name: "value bad size", data: "VALUE foo 0 -1\r\nbar\r\n"},
		{name: "value bad cas", data: "VALUE foo 0 3 abc\r\nbar\r\n"},
		{name: "value bad terminator", data: "VALUE foo 0 3\r\nbarXX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec := newTestParser(t, Config{})

			write(t, p, tt.data)
			require.True(t, p.Destroyed())
			rec.flush()

			require.Equal(t, []string{"error", "close"}, rec.names())
			var parseErr *ParseError
			assert.ErrorAs(t, rec.events[0].err, &parseErr)
			assert.True(t, ShouldCloseConnection(rec.events[0].err))
		})
	}
}

func TestDispatchSecondByteAmbiguity(t *testing.T) {
	// Only the distinguishing bytes are inspected outside strict mode
	tests := []struct {
		data string
		kind Kind
	}{
		{data: "EN\r\n", kind: KindEnd},
		{data: "EX\r\n", kind: KindExists},
		{data: "NOT_F\r\n", kind: KindNotFound},
		{data: "NO\r\n", kind: KindNotStored},
		{data: "STO\r\n", kind: KindStored},
		{data: "D\r\n", kind: KindDeleted},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			p, rec := newTestParser(t, Config{})

			write(t, p, tt.data+"END\r\n")

			resps := rec.responses()
			require.Len(t, resps, 2)
			assert.Equal(t, tt.kind, resps[0].Kind)
			assert.Equal(t, KindEnd, resps[1].Kind)
		})
	}
}

func TestDispatchStrict(t *testing.T) {
	valid := "STORED\r\nDELETED\r\nEND\r\nEXISTS\r\nNOT_FOUND\r\nNOT_STORED\r\nOK\r\nTOUCHED\r\n" +
		"VERSION 1.6.21\r\nSTAT pid 1\r\nVALUE k 0 1\r\nx\r\nKEY 1 k\r\n42\r\n" +
		"ERROR\r\nCLIENT_ERROR bad\r\nSERVER_ERROR bad\r\n"

	t.Run("accepts valid responses", func(t *testing.T) {
		p, rec := newTestParser(t, Config{Strict: true})

		write(t, p, valid)

		assert.Len(t, rec.responses(), 13)
		assert.Len(t, rec.errors(), 3)
		assert.False(t, p.Destroyed())
	})

	for _, data := range []string{"STOREDX\r\n", "EN\r\n", "OKAY\r\n", "ERRORS\r\n", "VERSIONS 1\r\n", "SERVER_ERRORx\r\n", "KEYS 1 k\r\n"} {
		t.Run("rejects "+data, func(t *testing.T) {
			p, rec := newTestParser(t, Config{Strict: true})

			write(t, p, data)
			rec.flush()

			require.Equal(t, []string{"error", "close"}, rec.names())
			var unknownErr *UnknownResponseError
			assert.ErrorAs(t, rec.events[0].err, &unknownErr)
		})
	}
}

func TestDispatchMaxLineLength(t *testing.T) {
	t.Run("exceeded", func(t *testing.T) {
		p, rec := newTestParser(t, Config{MaxLineLength: 16})

		write(t, p, "CLIENT_ERROR this message is far too long")
		rec.flush()

		require.Equal(t, []string{"error", "close"}, rec.names())
		assert.True(t, IsFatal(rec.events[0].err))
	})

	t.Run("payload is not a line", func(t *testing.T) {
		p, rec := newTestParser(t, Config{MaxLineLength: 16})

		write(t, p, "VALUE k 0 40\r\n0123456789012345678901234567890123456789\r\n")

		resps := rec.responses()
		require.Len(t, resps, 1)
		assert.Len(t, resps[0].Data, 40)
	})

	t.Run("terminated line", func(t *testing.T) {
		p, rec := newTestParser(t, Config{MaxLineLength: 16})

		write(t, p, "CLIENT_ERROR this message is far too long\r\nSTORED\r\n")
		rec.flush()

		require.Equal(t, []string{"error", "close"}, rec.names())
		assert.True(t, IsFatal(rec.events[0].err))
	})

	t.Run("at the limit", func(t *testing.T) {
		p, rec := newTestParser(t, Config{MaxLineLength: 16})

		line := "SERVER_ERROR " + strings.Repeat("x", 3)
		require.Len(t, line, 16)

		// The CR alone is not part of the line
		write(t, p, line+"\r")
		write(t, p, "\nSTORED\r\n")

		require.Equal(t, []string{"error", "response"}, rec.names())
		assert.False(t, p.Destroyed())
	})

	t.Run("one byte past the limit", func(t *testing.T) {
		p, rec := newTestParser(t, Config{MaxLineLength: 16})

		write(t, p, "SERVER_ERROR xxx")
		assert.Equal(t, 17, p.Expecting())

		write(t, p, "x")
		rec.flush()

		require.Equal(t, []string{"error", "close"}, rec.names())
		assert.True(t, IsFatal(rec.events[0].err))
	})

	t.Run("independent of chunking", func(t *testing.T) {
		data := "STORED\r\nSERVER_ERROR " + strings.Repeat("x", 9000) + "\r\nSTORED\r\n"

		whole, wholeRec := newTestParser(t, Config{})
		write(t, whole, data)
		wholeRec.flush()

		chunked, chunkedRec := newTestParser(t, Config{})
		for _, chunk := range []string{data[:5000], data[5000:9018], data[9018:]} {
			_, _ = chunked.WriteString(chunk)
		}
		chunkedRec.flush()

		require.Equal(t, []string{"response", "error", "close"}, wholeRec.names())
		assert.Equal(t, wholeRec.names(), chunkedRec.names())
		assert.Equal(t, wholeRec.events[1].err, chunkedRec.events[1].err)
		assert.True(t, whole.Destroyed())
		assert.True(t, chunked.Destroyed())
	})

	t.Run("unlimited", func(t *testing.T) {
		p, rec := newTestParser(t, Config{MaxLineLength: -1})

		write(t, p, string(make([]byte, 2*DefaultMaxLineLength)))

		assert.Empty(t, rec.events)
		assert.False(t, p.Destroyed())
	})
}
