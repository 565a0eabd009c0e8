// Package grep implements the parallel live-grep searcher: a
// directory walk scored line-by-line against a parsed query, feeding a
// bounded best-K buffer whose diff-suppressed snapshots drive the
// picker display without redundant repaints.
package grep
