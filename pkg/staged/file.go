package staged

import (
	"errors"
	"io"
	"strings"
)

// ErrNoContent is returned when a File has no content source.
var ErrNoContent = errors.New("staged: file has no content")

// Opener opens the bytes of a file for reading.
type Opener interface {
	Open() (io.ReadCloser, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func() (io.ReadCloser, error)

// Open calls f().
func (f OpenerFunc) Open() (io.ReadCloser, error) {
	return f()
}

// File is a candidate or staged file.
//
// Identity is the pointer: two Files with the same name or ID are distinct
// entries.
type File struct {
	// ID is the opaque handle of the file's bytes (the upload temp id).
	ID string

	// Name is the original filename from the client.
	Name string

	// Size is the file size in bytes.
	Size int64

	// MIMEType is the file's media type.
	MIMEType string

	// Content provides the file bytes for previews.
	Content Opener
}

// IsImage reports whether the MIME type is image/*.
func (f *File) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(f.MIMEType)), "image/")
}

// Open opens the file bytes.
func (f *File) Open() (io.ReadCloser, error) {
	if f.Content == nil {
		return nil, ErrNoContent
	}
	return f.Content.Open()
}

// Thumbnail is the displayable form of a staged image.
type Thumbnail struct {
	// MIMEType is the media type of Src.
	MIMEType string

	// Src is the image source, typically a data: URL.
	Src string
}

// PreviewEntry is the rendered preview of exactly one staged file.
type PreviewEntry struct {
	// File is the staged file this entry shows.
	File *File

	// Thumbnail is the image shown for File.
	Thumbnail Thumbnail

	remove func()
}

// Remove is the entry's removal affordance: it unstages File.
// It must be called on the controller's loop.
func (e *PreviewEntry) Remove() {
	if e.remove != nil {
		e.remove()
	}
}
