// Package text implements an incremental parser for the responses of the
// memcached ASCII (text) protocol.
//
// The parser consumes a byte stream in chunks of any size, as delivered by a
// socket, and reconstructs the typed responses it carries regardless of how
// they are fragmented or coalesced across chunks.
//
// # Usage
//
//	parser, err := text.NewParser(text.Config{
//	    Handler: text.HandlerFuncs{
//	        OnResponse: func(resp *text.Response) {
//	            fmt.Println(resp.Kind, resp.Key, resp.Value)
//	        },
//	        OnError: func(err error) {
//	            log.Println(err)
//	        },
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	_, err = io.Copy(parser, conn)
//
// # Wire Format
//
//	CLIENT_ERROR <message>\r\n
//	SERVER_ERROR <message>\r\n
//	ERROR\r\n
//	DELETED | END | EXISTS | NOT_FOUND | NOT_STORED | OK | STORED | TOUCHED\r\n
//	STAT <name> <value>\r\n
//	VALUE <key> <flags> <bytes> [<cas unique>]\r\n<data block>\r\n
//	VERSION <version>\r\n
//	KEY <bytes> <key>\r\n
//	<number>\r\n (INCR/DECR result)
//
// <bytes> counts bytes, not characters: keys and data blocks may hold
// multi-byte UTF-8 characters or arbitrary binary data.
//
// # Resuming
//
// When the queue ends in the middle of a response, the parser keeps that
// response buffered and records in Expecting how many bytes it needs. Writes
// that leave the queue shorter than that are only buffered.
//
// # Value Decoders
//
// VALUE payloads are delivered as Response.Data and, in Response.Value, as a
// string or as the result of the Decoder registered for the response flags:
//
//	parser.RegisterFlag(1, text.DecodeInt)
//	// VALUE counter 1 2\r\n42\r\n -> Response.Value == int64(42)
//
// # Error Handling
//
// CLIENT_ERROR, SERVER_ERROR and ERROR responses are reported to
// Handler.Error as *ClientError, *ServerError and *GenericError, and parsing
// continues with the next response.
//
// A line starting with an unknown byte (*UnknownResponseError) or a malformed
// response (*ParseError) leaves the parser unable to find the next response.
// The parser destroys itself: the error is delivered to Handler.Error,
// followed by Handler.Close(true). IsFatal tells these errors apart.
//
// # Lifecycle
//
// A parser is active until End or Destroy. End decodes optional trailing
// data, notifies Handler.End and destroys the parser. Destroy discards the
// buffered input; Write fails with ErrDestroyed afterwards. The close
// notification is never delivered from within the call that destroyed the
// parser: it is scheduled with Config.Defer.
package text
