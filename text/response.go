package text

// Kind identifies the response a Response was decoded from.
type Kind uint8

const (
	KindStored    Kind = iota + 1 // STORED
	KindDeleted                   // DELETED
	KindNotStored                 // NOT_STORED
	KindNotFound                  // NOT_FOUND
	KindExists                    // EXISTS
	KindOK                        // OK
	KindTouched                   // TOUCHED
	KindEnd                       // END
	KindVersion                   // VERSION <version>
	KindIncrDecr                  // <number>
	KindStat                      // STAT <name> <value>
	KindValue                     // VALUE <key> <flags> <bytes> [<cas>]
	KindKey                       // KEY <bytes> <key>

	kindCount
)

var kindNames = [kindCount]string{
	KindStored:    WordStored,
	KindDeleted:   WordDeleted,
	KindNotStored: WordNotStored,
	KindNotFound:  WordNotFound,
	KindExists:    WordExists,
	KindOK:        WordOK,
	KindTouched:   WordTouched,
	KindEnd:       WordEnd,
	KindVersion:   WordVersion,
	KindIncrDecr:  "INCR/DECR",
	KindStat:      WordStat,
	KindValue:     WordValue,
	KindKey:       WordKey,
}

// String returns the protocol word of the kind.
func (k Kind) String() string {
	if k == 0 || k >= kindCount {
		return "UNKNOWN"
	}
	return kindNames[k]
}

// Kinds returns every response kind, in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount-1)
	for k := KindStored; k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Response is one decoded server response.
// Only the fields relevant to Kind are set.
type Response struct {
	Kind Kind

	// Key is set for VALUE and KEY responses
	Key string

	// Flags are the client flags of a VALUE response
	Flags uint32

	// CAS is the cas unique of a VALUE response, when HasCAS is true
	CAS    uint64
	HasCAS bool

	// Data is the raw payload of a VALUE response. It is owned by the Response.
	Data []byte

	// Value is Data passed through the decoder registered for Flags, or
	// string(Data) when no decoder is registered.
	Value any

	// Number is the result of an INCR/DECR command
	Number uint64

	// StatName and StatValue are set for STAT responses
	StatName  string
	StatValue string

	// Version is the server version of a VERSION response
	Version string
}

// IsSuccess returns true if the response reports a successful operation.
// NOT_STORED, NOT_FOUND and EXISTS are the only unsuccessful outcomes.
func (r *Response) IsSuccess() bool {
	switch r.Kind {
	case KindNotStored, KindNotFound, KindExists:
		return false
	default:
		return r.Kind != 0
	}
}

// HasValue returns true for VALUE responses.
func (r *Response) HasValue() bool {
	return r.Kind == KindValue
}
