// Package input hosts the fuzzy subpackage: a cached, scored matcher
// used both to build the picker's interactive result ranking and, via
// internal/grep, to score the lines a directory walk turns up for a
// live-grep query.
package input
