package protocol

// Limits on client messages. A session never allocates more than these
// for a single message.
const (
	// MaxMessageSize is the largest accepted client message in bytes.
	MaxMessageSize = 64 << 10

	// MaxElements caps the element ids declared in a hello.
	MaxElements = 32

	// MaxImages caps the persisted image ids declared in a hello.
	MaxImages = 256

	// MaxIDLength caps image ids, preview ids and refs.
	MaxIDLength = 128
)
