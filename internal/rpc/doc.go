// Package rpc implements the editor-facing JSON-RPC 2.0 link (§6): a
// newline-framed dispatcher reading requests/notifications from the
// editor on one stream and writing responses and core-initiated
// notifications on another, routing inbound calls to one of three
// method categories (provider lifecycle, provider events, action
// calls).
package rpc
