package staged

import (
	"log/slog"
	"slices"

	"github.com/vango-dev/projectform/internal/errors"
	"github.com/vango-dev/projectform/pkg/future"
)

const (
	// DefaultMaxFiles is the staged file cap.
	DefaultMaxFiles = 5

	// DefaultMaxFileSize is the per-file size cap (5 MiB).
	DefaultMaxFileSize int64 = 5 << 20
)

// FileInput is the form control whose file list is submitted with the form.
type FileInput interface {
	// SetFiles replaces the control's file list.
	SetFiles(files []*File)
}

// PreviewContainer renders and destroys preview entries.
type PreviewContainer interface {
	Append(e *PreviewEntry)
	Remove(e *PreviewEntry)
}

// Alerter shows a blocking, user-visible message.
type Alerter interface {
	Alert(message string)
}

// Reader produces the thumbnail of a file without blocking the caller.
type Reader interface {
	Read(f *File) *future.Future[Thumbnail]
}

// Forgetter is implemented by Readers that cache thumbnails. The
// controller evicts the thumbnail of a file when it is unstaged.
type Forgetter interface {
	Forget(id string)
}

// Observer receives counts of controller outcomes, e.g. for metrics.
type Observer interface {
	FilesStaged(n int)
	FilesRejected(reason Reason, n int)
	PreviewRendered()
	PreviewDropped()
	PreviewFailed()
}

// Config configures a Controller.
type Config struct {
	// Input receives the staged list after every change. Required.
	Input FileInput

	// Previews hosts the preview entries. Required.
	Previews PreviewContainer

	// Alerter surfaces rejections. Required.
	Alerter Alerter

	// Reader builds thumbnails. Required.
	Reader Reader

	// Loop is where thumbnail completions resume.
	// Default: future.Inline.
	Loop future.Dispatcher

	// InputEvents delivers the file input's change events. Optional.
	InputEvents Target

	// MaxFiles caps the staged list. Default: 5.
	MaxFiles int

	// MaxFileSize caps each file in bytes. Default: 5 MiB.
	MaxFileSize int64

	// Observer receives outcome counts. Optional.
	Observer Observer

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// Controller owns the staged file list.
type Controller struct {
	input    FileInput
	previews PreviewContainer
	alerter  Alerter
	reader   Reader
	loop     future.Dispatcher
	observer Observer
	logger   *slog.Logger

	maxFiles    int
	maxFileSize int64

	files   []*File
	entries map[*File]*PreviewEntry

	// pending maps a file to the generation of its in-flight read.
	pending map[*File]uint64
	readGen uint64

	subs   []Subscription
	closed bool
}

// New creates a Controller and subscribes to cfg.InputEvents.
// It panics if a required dependency is missing.
func New(cfg Config) *Controller {
	if cfg.Input == nil || cfg.Previews == nil || cfg.Alerter == nil || cfg.Reader == nil {
		panic("staged: Config requires Input, Previews, Alerter and Reader")
	}
	if cfg.Loop == nil {
		cfg.Loop = future.Inline
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = DefaultMaxFiles
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Controller{
		input:       cfg.Input,
		previews:    cfg.Previews,
		alerter:     cfg.Alerter,
		reader:      cfg.Reader,
		loop:        cfg.Loop,
		observer:    cfg.Observer,
		logger:      cfg.Logger.With("component", "staged"),
		maxFiles:    cfg.MaxFiles,
		maxFileSize: cfg.MaxFileSize,
		entries:     make(map[*File]*PreviewEntry),
		pending:     make(map[*File]uint64),
	}
	if cfg.InputEvents != nil {
		c.subs = append(c.subs, cfg.InputEvents.Subscribe(EventChange, c.handleChange))
	}
	return c
}

func (c *Controller) handleChange(e *Event) {
	if len(e.Files) == 0 {
		return
	}
	c.Add(e.Files)
}

// Add validates a batch of candidate files and stages the valid ones.
//
// If the batch is larger than the remaining slots nothing is staged and a
// single capacity error is reported. Otherwise every file is checked on its
// own; rejected files are reported together after the batch and do not
// prevent their siblings from being staged.
//
// The returned error is the one shown to the user, or nil.
func (c *Controller) Add(files []*File) error {
	if c.closed || len(files) == 0 {
		return nil
	}

	remaining := c.maxFiles - len(c.files)
	if len(files) > remaining {
		batchErr := &BatchError{Errors: []*errors.Error{capacityError(remaining, c.maxFiles)}}
		c.observer.FilesRejected(ReasonCapacity, len(files))
		c.logger.Debug("batch rejected", "files", len(files), "remaining", remaining)
		c.alerter.Alert(batchErr.Error())
		return batchErr
	}

	var rejected []*errors.Error
	var accepted []*File
	for _, f := range files {
		if err, reason := c.check(f); err != nil {
			rejected = append(rejected, err)
			c.observer.FilesRejected(reason, 1)
			continue
		}
		c.files = append(c.files, f)
		accepted = append(accepted, f)
	}

	var result error
	if len(rejected) > 0 {
		batchErr := &BatchError{Errors: rejected}
		c.logger.Debug("files rejected", "rejected", batchErr.Rejected())
		c.alerter.Alert(batchErr.Error())
		result = batchErr
	}

	if len(accepted) > 0 {
		c.observer.FilesStaged(len(accepted))
		c.logger.Debug("files staged", "accepted", len(accepted), "staged", len(c.files))
		c.syncInput()
		for _, f := range accepted {
			c.schedulePreview(f)
		}
	}

	return result
}

func (c *Controller) check(f *File) (*errors.Error, Reason) {
	switch {
	case f.Size > c.maxFileSize:
		return tooLargeError(f, c.maxFileSize), ReasonTooLarge
	case !f.IsImage():
		return notImageError(f), ReasonNotImage
	case c.indexOf(f) >= 0:
		return duplicateError(f), ReasonDuplicate
	}
	return nil, ""
}

// Remove unstages f and destroys its preview. Removing a file that is not
// staged is a no-op.
func (c *Controller) Remove(f *File) {
	i := c.indexOf(f)
	if i < 0 {
		return
	}
	c.files = slices.Delete(c.files, i, i+1)
	delete(c.pending, f)
	c.syncInput()

	if entry, ok := c.entries[f]; ok {
		delete(c.entries, f)
		c.previews.Remove(entry)
	}
	if fr, ok := c.reader.(Forgetter); ok && f.ID != "" {
		fr.Forget(f.ID)
	}
	c.logger.Debug("file removed", "name", f.Name, "staged", len(c.files))
}

func (c *Controller) syncInput() {
	c.input.SetFiles(slices.Clone(c.files))
}

func (c *Controller) schedulePreview(f *File) {
	c.readGen++
	gen := c.readGen
	c.pending[f] = gen

	c.reader.Read(f).OnCompleteOn(c.loop, func(thumb Thumbnail, err error) {
		c.previewReady(f, gen, thumb, err)
	})
}

func (c *Controller) previewReady(f *File, gen uint64, thumb Thumbnail, err error) {
	if current, ok := c.pending[f]; !ok || current != gen {
		c.observer.PreviewDropped()
		c.logger.Debug("orphaned preview dropped", "name", f.Name)
		return
	}
	delete(c.pending, f)

	if err != nil {
		// Without a preview the file has no remove control; unstage it.
		readErr := readError(f, err)
		c.observer.PreviewFailed()
		c.logger.Warn("preview read failed", "name", f.Name, "error", err)
		c.Remove(f)
		c.alerter.Alert(readErr.Message)
		return
	}

	entry := &PreviewEntry{
		File:      f,
		Thumbnail: thumb,
		remove:    func() { c.Remove(f) },
	}
	c.entries[f] = entry
	c.previews.Append(entry)
	c.observer.PreviewRendered()
}

func (c *Controller) indexOf(f *File) int {
	for i, staged := range c.files {
		if staged == f {
			return i
		}
	}
	return -1
}

// Files returns a copy of the staged list in insertion order.
func (c *Controller) Files() []*File {
	return slices.Clone(c.files)
}

// Len returns the number of staged files.
func (c *Controller) Len() int {
	return len(c.files)
}

// Remaining returns how many more files can be staged.
func (c *Controller) Remaining() int {
	return c.maxFiles - len(c.files)
}

// MaxFiles returns the staged file cap.
func (c *Controller) MaxFiles() int {
	return c.maxFiles
}

// Preview returns the rendered preview of f, if any.
func (c *Controller) Preview(f *File) (*PreviewEntry, bool) {
	e, ok := c.entries[f]
	return e, ok
}

// Reading reports whether a thumbnail read for f is in flight.
func (c *Controller) Reading(f *File) bool {
	_, ok := c.pending[f]
	return ok
}

// Close unsubscribes from the file input. Reads still in flight complete
// as dropped previews. Close is idempotent.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.subs = nil
	clear(c.pending)
}

type nopObserver struct{}

func (nopObserver) FilesStaged(int) {}
func (nopObserver) FilesRejected(Reason, int) {}
func (nopObserver) PreviewRendered() {}
func (nopObserver) PreviewDropped() {}
func (nopObserver) PreviewFailed() {}
