// Package mdserver implements the markdown live-preview server (§4.6):
// a websocket bridge that renders a markdown file to HTML and pushes
// re-renders to a connected browser tab on every file change, with a
// polling fallback when filesystem notifications are unavailable, and
// safe static-file serving for images the markdown references.
package mdserver
