package text

import "bytes"

var crlfBytes = []byte(CRLF)

// ByteLength returns the encoded length of s, which is what the <bytes>
// fields of the protocol count. A multi-byte UTF-8 character counts for each
// of its bytes.
func ByteLength(s string) int {
	return len(s)
}

// window is the read cursor of one parse pass over the queue.
//
// Every length the engine deals with goes through window and is measured in
// bytes: the queue is never decoded to characters, so a payload or key with
// multi-byte characters can't shift the cursor.
type window struct {
	buf []byte
	pos int
}

// remaining returns the number of unconsumed bytes.
func (w *window) remaining() int {
	return len(w.buf) - w.pos
}

// rest returns the unconsumed bytes.
func (w *window) rest() []byte {
	return w.buf[w.pos:]
}

// line returns the next line without its terminator, and the size of the
// line including the terminator. ok is false when no terminator is buffered.
func (w *window) line() (line []byte, size int, ok bool) {
	rest := w.rest()
	i := bytes.Index(rest, crlfBytes)
	if i < 0 {
		return nil, 0, false
	}
	return rest[:i], i + len(CRLF), true
}

// advance consumes n bytes.
func (w *window) advance(n int) {
	w.pos += n
}

// lineShortfall returns how many bytes, counted from the cursor, must be
// buffered before the pending line can possibly be terminated.
func (w *window) lineShortfall() int {
	rest := w.rest()
	if len(rest) > 0 && rest[len(rest)-1] == '\r' {
		return len(rest) + 1
	}
	return len(rest) + len(CRLF)
}

// pendingLineLength returns the length of the unterminated line at the
// cursor. A trailing CR may be the first half of its terminator and is not
// counted.
func (w *window) pendingLineLength() int {
	rest := w.rest()
	if len(rest) > 0 && rest[len(rest)-1] == '\r' {
		return len(rest) - 1
	}
	return len(rest)
}

// byteAt returns line[i], or 0 past the end of the line.
func byteAt(line []byte, i int) byte {
	if i < len(line) {
		return line[i]
	}
	return 0
}
