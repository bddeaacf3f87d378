// Package api is a typed client for the component-recognition web server.
//
// The server owns detection, cropping, batch processing and storage. This
// package only speaks its request/response contracts:
//
//   - POST /save-enhanced-image   multipart enhanced_image, original_path
//   - POST /detect                multipart file "image"
//   - POST /create_batch          multipart files "images"
//   - GET  /get_all_batches
//   - GET  /get_batch_status/{id}
//   - POST /delete_component      JSON {"path": ...}
//   - POST /delete_components     JSON {"paths": [...]}
//
// Every JSON endpoint answers {"success": bool, "error"?: string}, often with
// a 4xx/5xx status. Bodies are decoded regardless of status; a success=false
// reply becomes a *RejectionError carrying the server's message verbatim.
// Anything else (connection failure, timeout, a body that is not JSON) is a
// transport error.
package api
