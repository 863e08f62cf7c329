package protocol

// Event names sent by the client.
const (
	EventChange    = "change"
	EventDragEnter = "dragenter"
	EventDragOver  = "dragover"
	EventDragLeave = "dragleave"
	EventDrop      = "drop"
	EventClick     = "click"
)

var knownEvents = map[string]bool{
	EventChange:    true,
	EventDragEnter: true,
	EventDragOver:  true,
	EventDragLeave: true,
	EventDrop:      true,
	EventClick:     true,
}

// Click targets that are not element ids: Ref names the clicked item.
const (
	TargetPreviewRemove = "preview-remove"
	TargetDeleteImage   = "delete-image"
)

// Event is a DOM event forwarded by the client.
type Event struct {
	Type Type `json:"type"`

	// Name is the DOM event name.
	Name string `json:"name"`

	// Target is the element id, or one of the Target* constants.
	Target string `json:"target"`

	// Files are the temp ids of the files carried by change and drop.
	Files []string `json:"files,omitempty"`

	// Ref identifies the clicked preview or image.
	Ref string `json:"ref,omitempty"`
}

func (*Event) clientMessage() {}

// Validate checks the event name and limits.
func (e *Event) Validate() error {
	if !knownEvents[e.Name] {
		return malformed("unknown event %q", e.Name)
	}
	if e.Target == "" {
		return malformed("event %q has no target", e.Name)
	}
	if e.Name == EventClick && e.Ref == "" {
		return malformed("click on %q has no ref", e.Target)
	}
	if len(e.Ref) > MaxIDLength {
		return malformed("ref exceeds %d bytes", MaxIDLength)
	}
	return nil
}

// Reply answers a confirm op.
type Reply struct {
	Type Type `json:"type"`

	// ID is the id of the confirm op.
	ID uint64 `json:"id"`

	// OK is true when the user accepted.
	OK bool `json:"ok"`
}

func (*Reply) clientMessage() {}

// Validate checks that the reply references a prompt.
func (r *Reply) Validate() error {
	if r.ID == 0 {
		return malformed("reply has no id")
	}
	return nil
}
