// Package server hosts the project form enhancements behind HTTP and
// WebSocket endpoints.
//
// Routes:
//
//	GET  /ws       WebSocket session for one page
//	POST /upload   multipart upload, answers {"temp_id": ...}
//	GET  /metrics  Prometheus exposition (when Config.Metrics is set)
//	GET  /healthz  liveness
//
// A page opens /ws and sends a hello listing the enhanced elements it has
// (file-upload, preview-container, drop-zone, the tag field) and the ids
// of its persisted images. The session wires a staged.Controller, a
// staged.DropZone, one imagedelete.Flow per image and the tag widget for
// exactly those elements, then translates client events into calls on
// them and their effects into DOM ops.
//
// Each session runs three goroutines, following the read/write/event
// loop split: the read loop decodes messages and looks up temp ids in the
// upload store, the write loop sends heartbeats, and the event loop owns
// all page state. Async completions (thumbnails, confirm replies, delete
// requests) re-enter the event loop through Session.Dispatch.
package server
