// Package rank implements the fuzzy-rank engine: a fixed-size
// TopQueue over a streaming sequence of items, filled and maintained
// without ever holding the whole stream, plus the notification
// throttling and line-diff suppression that keep a fast-moving UI
// from being flooded.
package rank
