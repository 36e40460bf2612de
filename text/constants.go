package text

// Protocol delimiters
const (
	// CRLF is the line terminator for the memcached protocol
	CRLF = "\r\n"

	// Space separates tokens on a response line
	Space = " "
)

// Response words of the ASCII protocol.
//
// Each response line starts with one of these words, except INCR/DECR results
// which are a bare decimal number.
const (
	WordClientError = "CLIENT_ERROR" // CLIENT_ERROR <error>\r\n
	WordServerError = "SERVER_ERROR" // SERVER_ERROR <error>\r\n
	WordError       = "ERROR"        // ERROR\r\n: command not known by server
	WordDeleted     = "DELETED"      // DELETED\r\n
	WordEnd         = "END"          // END\r\n
	WordExists      = "EXISTS"       // EXISTS\r\n: item modified since last fetch
	WordNotFound    = "NOT_FOUND"    // NOT_FOUND\r\n
	WordNotStored   = "NOT_STORED"   // NOT_STORED\r\n
	WordOK          = "OK"           // OK\r\n
	WordStat        = "STAT"         // STAT <name> <value>\r\n
	WordStored      = "STORED"       // STORED\r\n
	WordTouched     = "TOUCHED"      // TOUCHED\r\n
	WordValue       = "VALUE"        // VALUE <key> <flags> <bytes> [<cas unique>]\r\n<data>\r\n
	WordVersion     = "VERSION"      // VERSION <version>\r\n
	WordKey         = "KEY"          // KEY <bytes> <key>\r\n
)

// Limits
const (
	// MaxFlag is the largest client flags value (flags are 32 bit unsigned)
	MaxFlag = 1<<32 - 1

	// DefaultMaxLineLength bounds the length of a response line, terminator
	// excluded. VALUE data blocks are not lines.
	DefaultMaxLineLength = 8192
)

// MessageCommandNotKnown is the message of the GenericError reported for a
// bare ERROR response.
const MessageCommandNotKnown = "Command not known by server"
