package text

import (
	"bytes"
	"strconv"
)

// parse runs decode passes until the queue holds no complete response.
func (p *Parser) parse() {
	p.parsing = true

	for {
		epoch := p.epoch
		consumed := p.decode(p.queue.Bytes(), epoch)
		if p.state == StateDestroyed {
			break
		}
		if epoch == p.epoch {
			p.queue.Next(consumed)
		}

		if len(p.deferred) == 0 {
			break
		}
		p.queue.Write(p.deferred)
		p.deferred = p.deferred[:0]
		if p.queue.Len() < p.expecting {
			break
		}
	}

	p.parsing = false
	if p.state == StateDestroyed {
		p.releaseQueue()
	}
}

// decode emits the responses at the front of buf and returns how many bytes
// they spanned. When the response after them is incomplete, expecting is set
// to the size it needs, counted from its first byte.
func (p *Parser) decode(buf []byte, epoch uint64) int {
	w := window{buf: buf}
	p.expecting = 0

	for w.remaining() > 0 {
		line, size, ok := w.line()
		if !ok {
			if p.lineTooLong(w.pendingLineLength()) {
				break
			}
			p.expecting = w.lineShortfall()
			// Parse again as soon as the line can exceed the limit
			if p.maxLineLength > 0 && p.expecting > p.maxLineLength+1 {
				p.expecting = p.maxLineLength + 1
			}
			break
		}
		if p.lineTooLong(len(line)) {
			break
		}

		n, need, err := p.dispatch(line, size, w.rest())
		if err != nil {
			p.fail(err)
			break
		}
		if need > 0 {
			p.expecting = need
			break
		}

		w.advance(n)

		// A handler destroyed or reset the parser
		if p.epoch != epoch {
			break
		}
	}

	return w.pos
}

// lineTooLong fails the parser when a line of n bytes, terminator excluded,
// exceeds the line limit. Terminated and pending lines are held to the same
// limit so the outcome doesn't depend on where the input was split.
func (p *Parser) lineTooLong(n int) bool {
	if p.maxLineLength <= 0 || n <= p.maxLineLength {
		return false
	}
	p.fail(&ParseError{Message: "line longer than " + strconv.Itoa(p.maxLineLength) + " bytes"})
	return true
}

// dispatch decodes the response starting with line. size is the length of
// line with its terminator and rest is the input from the start of line.
//
// It returns the number of bytes the response spans, or the number of bytes
// needed from the start of line when rest holds only part of it.
//
// The response is identified from its first byte, and from one more byte
// when several responses share the first one.
func (p *Parser) dispatch(line []byte, size int, rest []byte) (n int, need int, err error) {
	switch first := byteAt(line, 0); {
	case first == 'C':
		// CLIENT_ERROR <error>
		if err := p.checkPrefix(line, WordClientError); err != nil {
			return 0, 0, err
		}
		p.handler.Error(&ClientError{Message: string(argument(line))})

	case first == 'D':
		return p.word(line, size, WordDeleted, KindDeleted)

	case first == 'E':
		switch byteAt(line, 1) {
		case 'N':
			return p.word(line, size, WordEnd, KindEnd)
		case 'X':
			return p.word(line, size, WordExists, KindExists)
		default:
			if p.strict && string(line) != WordError {
				return 0, 0, unknown(line)
			}
			p.handler.Error(&GenericError{Message: MessageCommandNotKnown})
		}

	case first == 'N':
		if byteAt(line, 4) == 'F' {
			return p.word(line, size, WordNotFound, KindNotFound)
		}
		return p.word(line, size, WordNotStored, KindNotStored)

	case first == 'O':
		return p.word(line, size, WordOK, KindOK)

	case first == 'S':
		switch byteAt(line, 2) {
		case 'R':
			// SERVER_ERROR <error>
			if err := p.checkPrefix(line, WordServerError); err != nil {
				return 0, 0, err
			}
			p.handler.Error(&ServerError{Message: string(argument(line))})
		case 'O':
			return p.word(line, size, WordStored, KindStored)
		default:
			return p.decodeStat(line, size)
		}

	case first == 'T':
		return p.word(line, size, WordTouched, KindTouched)

	case first == 'V':
		if byteAt(line, 1) == 'A' {
			return p.decodeValue(line, size, rest)
		}
		// VERSION <version>
		if err := p.checkPrefix(line, WordVersion); err != nil {
			return 0, 0, err
		}
		p.handler.Response(&Response{Kind: KindVersion, Version: string(argument(line))})

	case first >= '0' && first <= '9':
		number, err := strconv.ParseUint(string(line), 10, 64)
		if err != nil {
			return 0, 0, &ParseError{Message: "invalid INCR/DECR value", Line: bytes.Clone(line), Err: err}
		}
		p.handler.Response(&Response{Kind: KindIncrDecr, Number: number})

	case first == 'K':
		return p.decodeKey(line, size)

	default:
		return 0, 0, unknown(line)
	}

	return size, 0, nil
}

// word emits a response made of a single word.
func (p *Parser) word(line []byte, size int, word string, kind Kind) (int, int, error) {
	if p.strict && string(line) != word {
		return 0, 0, unknown(line)
	}
	p.handler.Response(&Response{Kind: kind})
	return size, 0, nil
}

// decodeStat decodes STAT <name> <value>. The value may contain spaces.
func (p *Parser) decodeStat(line []byte, size int) (int, int, error) {
	if err := p.checkPrefix(line, WordStat); err != nil {
		return 0, 0, err
	}

	name, value, ok := bytes.Cut(argument(line), spaceBytes)
	if !ok || len(name) == 0 {
		return 0, 0, &ParseError{Message: "invalid STAT line format", Line: bytes.Clone(line)}
	}

	p.handler.Response(&Response{
		Kind:      KindStat,
		StatName:  string(name),
		StatValue: string(value),
	})
	return size, 0, nil
}

// decodeKey decodes KEY <bytes> <key>. The declared length must match the key.
func (p *Parser) decodeKey(line []byte, size int) (int, int, error) {
	if err := p.checkPrefix(line, WordKey); err != nil {
		return 0, 0, err
	}

	count, key, ok := bytes.Cut(argument(line), spaceBytes)
	if !ok {
		return 0, 0, &ParseError{Message: "KEY response missing key", Line: bytes.Clone(line)}
	}

	length, err := strconv.Atoi(string(count))
	if err != nil {
		return 0, 0, &ParseError{Message: "invalid length in KEY response", Line: bytes.Clone(line), Err: err}
	}
	if length != len(key) {
		return 0, 0, &ParseError{Message: "KEY length mismatch", Line: bytes.Clone(line)}
	}

	p.handler.Response(&Response{Kind: KindKey, Key: string(key)})
	return size, 0, nil
}

// checkPrefix verifies, in strict mode, that line starts with the word.
func (p *Parser) checkPrefix(line []byte, word string) error {
	if !p.strict {
		return nil
	}
	if len(line) < len(word) || string(line[:len(word)]) != word {
		return unknown(line)
	}
	if len(line) > len(word) && line[len(word)] != ' ' {
		return unknown(line)
	}
	return nil
}

// fail destroys the parser with a parser fault.
func (p *Parser) fail(err error) {
	p.logger.Error("memcache: unrecoverable response stream", "error", err)
	p.Destroy(err)
}

var spaceBytes = []byte(Space)

// argument returns what follows the first word of line.
func argument(line []byte) []byte {
	_, after, ok := bytes.Cut(line, spaceBytes)
	if !ok {
		return nil
	}
	return after
}

func unknown(line []byte) error {
	return &UnknownResponseError{Raw: bytes.Clone(line)}
}
