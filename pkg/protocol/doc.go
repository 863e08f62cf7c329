// Package protocol defines the JSON messages exchanged between the page's
// thin client and its session over a WebSocket.
//
// Every WebSocket text message is one JSON object with a "type" field.
//
// # Client to server
//
//   - hello: first message; carries the anti-forgery token, the ids of the
//     elements present on the page, the persisted image ids and the current
//     tag field value.
//   - event: a DOM event on a known element. File-carrying events reference
//     staged bytes by the temp ids returned from POST /upload.
//   - reply: the user's answer to a confirm prompt.
//
// # Server to client
//
//   - welcome: handshake result and the staging limits.
//   - op: one DOM operation (setFiles, appendPreview, removePreview,
//     addClass, removeClass, alert, confirm, setBusy, detach, tagsInput).
//   - error: a protocol error; fatal errors are followed by a close.
//
// Example exchange:
//
//	→ {"type":"hello","version":1,"csrfToken":"…","elements":["file-upload","preview-container"],"images":["12"]}
//	← {"type":"welcome","status":"ok","sessionId":"…","maxFiles":5,"maxFileSize":5242880}
//	→ {"type":"event","name":"change","target":"file-upload","files":["3f0c…"]}
//	← {"type":"op","op":"setFiles","target":"file-upload","files":[{"tempId":"3f0c…","name":"a.png","size":1024,"type":"image/png"}]}
//	← {"type":"op","op":"appendPreview","target":"preview-container","preview":{"id":"p1","tempId":"3f0c…","name":"a.png","src":"data:image/png;base64,…"}}
package protocol
