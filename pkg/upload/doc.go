// Package upload stages file bytes for the edit page.
//
// WebSocket sessions only carry events, so file bytes take a separate
// HTTP path:
//
//  1. The user picks or drops files.
//  2. The client POSTs each file to /upload.
//  3. The handler streams it into a Store and answers with a temp_id.
//  4. The client reports the temp ids in its change or drop event.
//  5. The session resolves each temp id with Store.Stat and hands the file
//     to the staging controller, which reads it back with Store.Open to
//     build the preview.
//
// Staged bytes are temporary. Cleanup removes them once they expire;
// the form submission itself carries the files to the backend.
//
// # Content type
//
// The type reported by the client is not trusted. The handler sniffs the
// first bytes of the body and records the detected type, so a PDF renamed
// to photo.png is still staged as application/pdf and is rejected as "not
// an image" by the controller.
//
// # Size
//
// The handler's request limit is deliberately larger than the per-file
// staging limit so that oversized files reach the controller and are
// rejected by name instead of failing the upload request.
package upload
