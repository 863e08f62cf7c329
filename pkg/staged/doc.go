// Package staged keeps the list of files a user intends to submit with a
// form in sync with the form's file input and the rendered previews.
//
// A Controller owns the ordered list of staged files. Files arrive from the
// file input's change event or from a DropZone, are validated against the
// count, size and type limits, and are mirrored into the FileInput after
// every change. Each accepted file gets one PreviewEntry once its
// thumbnail read completes.
//
// # Threading
//
// A Controller is not safe for concurrent use. All of its methods, and the
// handlers it subscribes, must run on one goroutine: the loop that
// Config.Loop dispatches to. Thumbnail reads run elsewhere and resume on
// that loop.
//
// # Batch policy
//
// A batch larger than the remaining slots is rejected whole with a single
// error. A batch that fits is checked file by file: valid files are staged
// even when siblings are rejected, and all per-file errors are reported
// together once the batch is processed.
//
// # Orphaned previews
//
// A thumbnail read that completes after its file was removed, or after a
// newer read for the same file was started, is discarded. It never renders.
package staged
