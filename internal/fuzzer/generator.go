package fuzzer

import (
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/pior/memstream/text"
)

// Replies the generator knows how to fabricate. The error messages are the
// ones a stock memcached server sends.
const (
	ReplyClientError = "CLIENT_ERROR"
	ReplyServerError = "SERVER_ERROR"
	ReplyStat        = "STAT"
	ReplyDeleted     = "DELETED"
	ReplyEnd         = "END"
	ReplyError       = "ERROR"
	ReplyExists      = "EXISTS"
	ReplyNotFound    = "NOT_FOUND"
	ReplyNotStored   = "NOT_STORED"
	ReplyOK          = "OK"
	ReplyStored      = "STORED"
	ReplyTouched     = "TOUCHED"
	ReplyValue       = "VALUE"
	ReplyVersion     = "VERSION"
	ReplyIncr        = "INCR"
	ReplyKey         = "KEY"
)

// AllReplies lists every reply the generator can fabricate.
var AllReplies = []string{
	ReplyClientError, ReplyServerError, ReplyStat,
	ReplyDeleted, ReplyEnd, ReplyError, ReplyExists, ReplyNotFound, ReplyNotStored, ReplyOK, ReplyStored, ReplyTouched,
	ReplyValue, ReplyVersion, ReplyIncr, ReplyKey,
}

var clientErrors = []string{
	"Illegal slab id",
	"bad command line format",
	"bad command line format.  ",
	"bad command line",
	"bad data chunk",
	"cannot increment or decrement non-numeric value",
	"invalid exptime argument",
	"invalid numeric delta argument",
	"slab reassignment disabled",
	"usage: stats detail on|off|dump",
}

var serverErrors = []string{
	"Unhandled storage type.",
	"multi-packet request not supported",
	"object too large for cache",
	"out of memory making CAS suffix",
	"out of memory preparing response",
	"out of memory reading request",
	"out of memory storing object",
	"out of memory writing get response",
	"out of memory writing stats",
	"out of memory",
	"output line too long",
}

var statNames = []string{
	"pid", "uptime", "time", "version", "libevent", "pointer_size", "rusage_user", "rusage_system",
	"curr_connections", "total_connections", "connection_structures", "reserved_fds",
	"cmd_get", "cmd_set", "cmd_flush", "cmd_touch", "get_hits", "get_misses",
	"delete_misses", "delete_hits", "incr_misses", "incr_hits", "decr_misses", "decr_hits",
	"cas_misses", "cas_hits", "cas_badval", "touch_hits", "touch_misses", "auth_cmds", "auth_errors",
	"bytes_read", "bytes_written", "limit_maxbytes", "accepting_conns", "listen_disabled_num",
	"threads", "conn_yields", "hash_power_level", "hash_bytes", "hash_is_expanding",
	"expired_unfetched", "evicted_unfetched", "bytes", "curr_items", "total_items", "evictions", "reclaimed",
}

// protocolNoise is mixed into VALUE payloads: whole response lines the parser
// must not interpret inside a data block.
var protocolNoise = strings.Join(AllReplies, text.CRLF) + text.CRLF + "VALUE noise 0 3" + text.CRLF

// Mixed single and multi-byte characters, never CR or LF.
var (
	wordRunes    = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-:.äöüßéñøπλжщ日本語€")
	messageRunes = append([]rune(" \t!?,;'\"()[]<>"), wordRunes...)
)

// GeneratorConfig configures the replies of a Generator.
type GeneratorConfig struct {
	// MaxKeySize is the maximum key length in bytes.
	// Default: 250
	MaxKeySize int

	// MaxValueSize is the maximum size of the random part of a VALUE payload.
	// Default: 64KB
	MaxValueSize int

	// MaxValuesPerReply is the maximum number of VALUE responses before END.
	// Default: 4
	MaxValuesPerReply int

	// Replies restricts the generated replies. Empty means AllReplies.
	Replies []string
}

func (c *GeneratorConfig) setDefaults() {
	if c.MaxKeySize <= 0 {
		c.MaxKeySize = 250
	}
	if c.MaxValueSize <= 0 {
		c.MaxValueSize = 64 * 1024
	}
	if c.MaxValuesPerReply <= 0 {
		c.MaxValuesPerReply = 4
	}
	if len(c.Replies) == 0 {
		c.Replies = AllReplies
	}
}

// Expectation is a notification a reply must produce. Err is set for
// protocol errors, Response otherwise. Response.Data and Response.Value are
// not set: payloads are checked with Size and Digest.
type Expectation struct {
	Response text.Response
	Err      error
	Size     int
	Digest   uint64
}

// Reply is one server reply with the notifications it must produce, in order.
type Reply struct {
	Name   string
	Data   []byte
	Expect []Expectation
}

// Generator fabricates random server replies. Two generators with the same
// seed and configuration fabricate the same replies.
type Generator struct {
	config GeneratorConfig
	rng    *rand.Rand
}

func NewGenerator(seed uint64, config GeneratorConfig) *Generator {
	config.setDefaults()
	return &Generator{
		config: config,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next returns the next reply.
func (g *Generator) Next() Reply {
	name := g.config.Replies[g.rng.IntN(len(g.config.Replies))]

	switch name {
	case ReplyClientError:
		msg := g.pickMessage(clientErrors)
		return g.line(name, "CLIENT_ERROR "+msg, Expectation{Err: &text.ClientError{Message: msg}})

	case ReplyServerError:
		msg := g.pickMessage(serverErrors)
		return g.line(name, "SERVER_ERROR "+msg, Expectation{Err: &text.ServerError{Message: msg}})

	case ReplyError:
		return g.line(name, text.WordError, Expectation{Err: &text.GenericError{Message: text.MessageCommandNotKnown}})

	case ReplyStat:
		return g.stat()

	case ReplyValue:
		return g.value()

	case ReplyVersion:
		version := strconv.Itoa(g.rng.IntN(20)) + "." + strconv.Itoa(g.rng.IntN(20)) + "." + strconv.Itoa(g.rng.IntN(20))
		return g.line(name, "VERSION "+version, Expectation{Response: text.Response{Kind: text.KindVersion, Version: version}})

	case ReplyIncr:
		// Small numbers, zero included, are the common case
		number := uint64(g.rng.IntN(g.rng.IntN(1000000) + 1))
		if g.rng.IntN(10) == 0 {
			number = g.rng.Uint64()
		}
		return g.line(name, strconv.FormatUint(number, 10), Expectation{Response: text.Response{Kind: text.KindIncrDecr, Number: number}})

	case ReplyKey:
		key := g.key()
		return g.line(name, "KEY "+strconv.Itoa(len(key))+" "+key, Expectation{Response: text.Response{Kind: text.KindKey, Key: key}})

	default:
		return g.line(name, name, Expectation{Response: text.Response{Kind: wordKinds[name]}})
	}
}

var wordKinds = map[string]text.Kind{
	ReplyDeleted:   text.KindDeleted,
	ReplyEnd:       text.KindEnd,
	ReplyExists:    text.KindExists,
	ReplyNotFound:  text.KindNotFound,
	ReplyNotStored: text.KindNotStored,
	ReplyOK:        text.KindOK,
	ReplyStored:    text.KindStored,
	ReplyTouched:   text.KindTouched,
}

func (g *Generator) line(name, line string, expect Expectation) Reply {
	return Reply{
		Name:   name,
		Data:   []byte(line + text.CRLF),
		Expect: []Expectation{expect},
	}
}

// pickMessage returns a known message, or a random one a third of the time.
func (g *Generator) pickMessage(known []string) string {
	if g.rng.IntN(3) == 0 {
		return g.randomString(messageRunes, 1+g.rng.IntN(60))
	}
	return known[g.rng.IntN(len(known))]
}

func (g *Generator) stat() Reply {
	var b strings.Builder
	var expect []Expectation

	for _, name := range statNames {
		value := g.statValue(name)
		b.WriteString("STAT " + name + " " + value + text.CRLF)
		expect = append(expect, Expectation{Response: text.Response{Kind: text.KindStat, StatName: name, StatValue: value}})
	}
	b.WriteString(text.WordEnd + text.CRLF)
	expect = append(expect, Expectation{Response: text.Response{Kind: text.KindEnd}})

	return Reply{Name: ReplyStat, Data: []byte(b.String()), Expect: expect}
}

func (g *Generator) statValue(name string) string {
	switch name {
	case "version":
		return strconv.Itoa(g.rng.IntN(100)) + "." + strconv.Itoa(g.rng.IntN(100)) + "." + strconv.Itoa(g.rng.IntN(100))
	case "libevent":
		return "2.0.17-stable"
	case "rusage_user", "rusage_system":
		return strconv.FormatFloat(math.Tan((g.rng.Float64()-0.5)*math.Pi), 'f', -1, 64)
	default:
		return strconv.FormatUint(g.rng.Uint64N(1<<32), 10)
	}
}

func (g *Generator) value() Reply {
	var b []byte
	var expect []Expectation

	count := 1 + g.rng.IntN(g.config.MaxValuesPerReply)
	for i := 0; i < count; i++ {
		key := g.key()
		payload := g.payload()

		var flags uint32
		if g.rng.IntN(3) == 0 {
			flags = g.rng.Uint32()
		}

		b = append(b, "VALUE "+key+" "+strconv.FormatUint(uint64(flags), 10)+" "+strconv.Itoa(len(payload))...)

		resp := text.Response{Kind: text.KindValue, Key: key, Flags: flags}
		if g.rng.IntN(2) == 0 {
			resp.CAS = g.rng.Uint64()
			resp.HasCAS = true
			b = append(b, " "+strconv.FormatUint(resp.CAS, 10)...)
		}

		b = append(b, text.CRLF...)
		b = append(b, payload...)
		b = append(b, text.CRLF...)

		expect = append(expect, Expectation{Response: resp, Size: len(payload), Digest: xxh3.Hash(payload)})
	}

	b = append(b, text.WordEnd+text.CRLF...)
	expect = append(expect, Expectation{Response: text.Response{Kind: text.KindEnd}})

	return Reply{Name: ReplyValue, Data: b, Expect: expect}
}

// payload returns random binary data followed by protocol noise.
func (g *Generator) payload() []byte {
	size := g.rng.IntN(g.config.MaxValueSize + 1)
	payload := make([]byte, size, size+len(protocolNoise))
	for i := range payload {
		payload[i] = byte(g.rng.Uint32())
	}
	return append(payload, protocolNoise[:g.rng.IntN(len(protocolNoise)+1)]...)
}

// key returns a non-empty key of at most MaxKeySize bytes.
func (g *Generator) key() string {
	key := g.randomString(wordRunes, 1+g.rng.IntN(g.config.MaxKeySize))
	for len(key) > g.config.MaxKeySize {
		runes := []rune(key)
		key = string(runes[:len(runes)-1])
	}
	if key == "" {
		return "k"
	}
	return key
}

func (g *Generator) randomString(alphabet []rune, runes int) string {
	var b strings.Builder
	for i := 0; i < runes; i++ {
		b.WriteRune(alphabet[g.rng.IntN(len(alphabet))])
	}
	return b.String()
}
