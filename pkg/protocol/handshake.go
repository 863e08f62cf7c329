package protocol

// Version is the protocol version spoken by this server.
const Version = 1

// HandshakeStatus is the result of a hello.
type HandshakeStatus string

const (
	HandshakeOK              HandshakeStatus = "ok"
	HandshakeVersionMismatch HandshakeStatus = "version_mismatch"
	HandshakeInvalidCSRF     HandshakeStatus = "invalid_csrf"
	HandshakeInvalidFormat   HandshakeStatus = "invalid_format"
)

// Hello is the first client message.
type Hello struct {
	Type    Type `json:"type"`
	Version int  `json:"version"`

	// CSRFToken is the page's anti-forgery token, forwarded on delete
	// requests.
	CSRFToken string `json:"csrfToken"`

	// Origin is the page's scheme and host.
	Origin string `json:"origin,omitempty"`

	// Elements lists the ids of the enhanced elements present on the page.
	Elements []string `json:"elements"`

	// Images lists the ids of the persisted images shown on the page.
	Images []string `json:"images,omitempty"`

	// Tags is the tag field's current comma-separated value.
	Tags string `json:"tags,omitempty"`
}

func (*Hello) clientMessage() {}

// Validate checks the limits of a hello.
func (h *Hello) Validate() error {
	if len(h.Elements) > MaxElements {
		return malformed("hello lists %d elements, limit %d", len(h.Elements), MaxElements)
	}
	if len(h.Images) > MaxImages {
		return malformed("hello lists %d images, limit %d", len(h.Images), MaxImages)
	}
	for _, id := range h.Images {
		if id == "" || len(id) > MaxIDLength {
			return malformed("invalid image id %q", id)
		}
	}
	return nil
}

// HasElement reports whether the page declared the element id.
func (h *Hello) HasElement(id string) bool {
	for _, e := range h.Elements {
		if e == id {
			return true
		}
	}
	return false
}

// Welcome answers a hello.
type Welcome struct {
	Type      Type            `json:"type"`
	Status    HandshakeStatus `json:"status"`
	SessionID string          `json:"sessionId,omitempty"`

	// MaxFiles and MaxFileSize let the client size its upload batches.
	MaxFiles    int   `json:"maxFiles,omitempty"`
	MaxFileSize int64 `json:"maxFileSize,omitempty"`

	// UploadURL is where file bytes are POSTed.
	UploadURL string `json:"uploadUrl,omitempty"`
}

func (*Welcome) serverMessage() {}
