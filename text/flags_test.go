package text

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagRegistry(t *testing.T) {
	r := NewFlagRegistry()
	assert.Equal(t, 0, r.Len())

	_, ok := r.Lookup(1)
	assert.False(t, ok)

	require.NoError(t, r.Register(1, DecodeInt))
	assert.Equal(t, 1, r.Len())

	fn, ok := r.Lookup(1)
	require.True(t, ok)
	v, err := fn([]byte("-12"))
	require.NoError(t, err)
	assert.Equal(t, int64(-12), v)
}

func TestFlagRegistryZeroValue(t *testing.T) {
	var r FlagRegistry
	require.NoError(t, r.Register(MaxFlag, DecodeBytes))
	assert.Equal(t, 1, r.Len())
}

func TestFlagRegistryDecode(t *testing.T) {
	r := NewFlagRegistry()
	require.NoError(t, r.Register(2, DecodeUint))

	v, err := r.decode(0, []byte("bar"))
	require.NoError(t, err)
	assert.Equal(t, "bar", v)

	v, err = r.decode(2, []byte("42"))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	_, err = r.decode(2, []byte("forty-two"))
	assert.Error(t, err)
}

func TestFlagRegistryInvalid(t *testing.T) {
	r := NewFlagRegistry()

	tests := []struct {
		name string
		flag int64
		fn   Decoder
	}{
		{name: "negative", flag: -1, fn: DecodeString},
		{name: "too large", flag: MaxFlag + 1, fn: DecodeString},
		{name: "nil decoder", flag: 1, fn: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.flag, tt.fn)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
	assert.Equal(t, 0, r.Len())
}

func TestDecoders(t *testing.T) {
	tests := []struct {
		name     string
		decoder  Decoder
		data     string
		expected any
		wantErr  bool
	}{
		{name: "string", decoder: DecodeString, data: "hello", expected: "hello"},
		{name: "bytes", decoder: DecodeBytes, data: "hello", expected: []byte("hello")},
		{name: "int", decoder: DecodeInt, data: "-42", expected: int64(-42)},
		{name: "int invalid", decoder: DecodeInt, data: "4.2", wantErr: true},
		{name: "uint", decoder: DecodeUint, data: "18446744073709551615", expected: uint64(18446744073709551615)},
		{name: "uint negative", decoder: DecodeUint, data: "-1", wantErr: true},
		{name: "float", decoder: DecodeFloat, data: "3.25", expected: 3.25},
		{name: "bool", decoder: DecodeBool, data: "true", expected: true},
		{name: "bool invalid", decoder: DecodeBool, data: "yes", wantErr: true},
		{name: "json object", decoder: DecodeJSON, data: `{"a":1,"b":[true]}`, expected: map[string]any{"a": 1.0, "b": []any{true}}},
		{name: "json null", decoder: DecodeJSON, data: `null`, expected: nil},
		{name: "json invalid", decoder: DecodeJSON, data: `{"a":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.decoder([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestDecodeJSONInto(t *testing.T) {
	type session struct {
		User    string    `json:"user"`
		Expires time.Time `json:"expires"`
	}

	p, rec := newTestParser(t, Config{
		Decoders: map[uint32]Decoder{16: DecodeJSONInto[session]()},
	})

	payload := `{"user":"pior","expires":"2025-01-02T03:04:05Z"}`
	write(t, p, "VALUE session:1 16 "+strconv.Itoa(len(payload))+"\r\n"+payload+"\r\n")

	resps := rec.responses()
	require.Len(t, resps, 1)
	assert.Equal(t, session{User: "pior", Expires: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}, resps[0].Value)
}
