package protocol

// OpName names a DOM operation.
type OpName string

const (
	OpSetFiles      OpName = "setFiles"
	OpAppendPreview OpName = "appendPreview"
	OpRemovePreview OpName = "removePreview"
	OpAddClass      OpName = "addClass"
	OpRemoveClass   OpName = "removeClass"
	OpAlert         OpName = "alert"
	OpConfirm       OpName = "confirm"
	OpSetBusy       OpName = "setBusy"
	OpDetach        OpName = "detach"
	OpTagsInput     OpName = "tagsInput"
)

// FileView describes a staged file to the client.
type FileView struct {
	TempID   string `json:"tempId"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"type"`
}

// PreviewView is a rendered preview entry.
type PreviewView struct {
	// ID identifies the entry in later removePreview ops and clicks.
	ID     string `json:"id"`
	TempID string `json:"tempId"`
	Name   string `json:"name"`
	Src    string `json:"src"`
}

// Op is one DOM operation. Only the fields of the named op are set.
type Op struct {
	Type    Type         `json:"type"`
	Op      OpName       `json:"op"`
	Target  string       `json:"target,omitempty"`
	Files   []FileView   `json:"files,omitempty"`
	Preview *PreviewView `json:"preview,omitempty"`
	Classes []string     `json:"classes,omitempty"`
	Message string       `json:"message,omitempty"`
	ID      uint64       `json:"id,omitempty"`
	Busy    bool         `json:"busy,omitempty"`
	Options any          `json:"options,omitempty"`
	Tags    []string     `json:"tags,omitempty"`
}

func (*Op) serverMessage() {}

// SetFiles replaces the file list of the input. An op without files
// clears it.
func SetFiles(target string, files []FileView) *Op {
	return &Op{Op: OpSetFiles, Target: target, Files: files}
}

// AppendPreview appends a preview entry to the container.
func AppendPreview(target string, p PreviewView) *Op {
	return &Op{Op: OpAppendPreview, Target: target, Preview: &p}
}

// RemovePreview destroys the preview entry with the given id.
func RemovePreview(target, previewID string) *Op {
	return &Op{Op: OpRemovePreview, Target: target, Preview: &PreviewView{ID: previewID}}
}

// AddClass adds classes to an element.
func AddClass(target string, classes ...string) *Op {
	return &Op{Op: OpAddClass, Target: target, Classes: classes}
}

// RemoveClass removes classes from an element.
func RemoveClass(target string, classes ...string) *Op {
	return &Op{Op: OpRemoveClass, Target: target, Classes: classes}
}

// Alert shows a blocking message.
func Alert(message string) *Op {
	return &Op{Op: OpAlert, Message: message}
}

// Confirm asks a yes/no question; the client answers with a Reply
// carrying the same id.
func Confirm(id uint64, message string) *Op {
	return &Op{Op: OpConfirm, ID: id, Message: message}
}

// SetBusy disables the delete control of an image and shows a spinner,
// or restores it.
func SetBusy(imageID string, busy bool) *Op {
	return &Op{Op: OpSetBusy, Target: imageID, Busy: busy}
}

// Detach removes the card of a deleted image.
func Detach(imageID string) *Op {
	return &Op{Op: OpDetach, Target: imageID}
}

// TagsInput enhances a text field with the tag-input widget.
func TagsInput(target string, options any, tags []string) *Op {
	return &Op{Op: OpTagsInput, Target: target, Options: options, Tags: tags}
}
