package text

import (
	"bytes"
	"strconv"
)

// decodeValue decodes VALUE <key> <flags> <bytes> [<cas unique>]\r\n<data>\r\n
//
// The data block is binary: it is located by its declared byte length, never
// by searching for a terminator, since the data may itself contain CRLF or
// whole protocol lines.
func (p *Parser) decodeValue(line []byte, size int, rest []byte) (int, int, error) {
	if err := p.checkPrefix(line, WordValue); err != nil {
		return 0, 0, err
	}

	key, fields, ok := bytes.Cut(argument(line), spaceBytes)
	if !ok || len(key) == 0 {
		return 0, 0, &ParseError{Message: "VALUE response missing flags", Line: bytes.Clone(line)}
	}

	flagsField, fields, ok := bytes.Cut(fields, spaceBytes)
	if !ok {
		return 0, 0, &ParseError{Message: "VALUE response missing size", Line: bytes.Clone(line)}
	}

	// A space after <bytes> means a cas unique follows
	sizeField, casField, hasCAS := bytes.Cut(fields, spaceBytes)

	flags, err := strconv.ParseUint(string(flagsField), 10, 32)
	if err != nil {
		return 0, 0, &ParseError{Message: "invalid flags in VALUE response", Line: bytes.Clone(line), Err: err}
	}

	dataSize, err := strconv.ParseUint(string(sizeField), 10, 31)
	if err != nil {
		return 0, 0, &ParseError{Message: "invalid size in VALUE response", Line: bytes.Clone(line), Err: err}
	}

	var cas uint64
	if hasCAS && len(casField) > 0 {
		cas, err = strconv.ParseUint(string(casField), 10, 64)
		if err != nil {
			return 0, 0, &ParseError{Message: "invalid cas in VALUE response", Line: bytes.Clone(line), Err: err}
		}
	} else {
		hasCAS = false
	}

	dataEnd := size + int(dataSize)
	total := dataEnd + len(CRLF)
	if len(rest) < total {
		return 0, total, nil
	}

	if !bytes.Equal(rest[dataEnd:total], crlfBytes) {
		return 0, 0, &ParseError{Message: "invalid data block terminator", Line: bytes.Clone(line)}
	}

	resp := &Response{
		Kind:   KindValue,
		Key:    string(key),
		Flags:  uint32(flags),
		CAS:    cas,
		HasCAS: hasCAS,
		Data:   bytes.Clone(rest[size:dataEnd]),
	}

	value, err := p.flags.decode(resp.Flags, resp.Data)
	if err != nil {
		p.handler.Error(&DecodeError{Key: resp.Key, Flags: resp.Flags, Size: len(resp.Data), Err: err})
		return total, 0, nil
	}
	resp.Value = value

	p.handler.Response(resp)
	return total, 0, nil
}
