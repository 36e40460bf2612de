package text

// Handler receives the notifications of a Parser.
//
// Response and Error are called synchronously from Write and End, in stream
// order. End is called synchronously from End. The fatal error (if any) and
// Close are delivered later through Config.Defer, Error strictly before Close.
type Handler interface {
	// Response is called for every decoded response.
	Response(resp *Response)

	// Error is called for protocol errors (ClientError, ServerError,
	// GenericError, DecodeError) and, once, for the error the parser was
	// destroyed with. Use IsFatal to tell them apart.
	Error(err error)

	// End is called when the input stream ended.
	End()

	// Close is called once, after the parser was destroyed.
	Close(hadError bool)
}

// HandlerFuncs adapts plain functions to a Handler. Nil fields are ignored.
type HandlerFuncs struct {
	OnResponse func(resp *Response)
	OnError    func(err error)
	OnEnd      func()
	OnClose    func(hadError bool)
}

var _ Handler = HandlerFuncs{}

func (h HandlerFuncs) Response(resp *Response) {
	if h.OnResponse != nil {
		h.OnResponse(resp)
	}
}

func (h HandlerFuncs) Error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h HandlerFuncs) End() {
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

func (h HandlerFuncs) Close(hadError bool) {
	if h.OnClose != nil {
		h.OnClose(hadError)
	}
}
