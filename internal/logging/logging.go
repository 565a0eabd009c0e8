// Package logging constructs the single process-wide structured logger
// used by every component in the daemon. There is no package-level
// global: New returns a *logrus.Logger that callers inject explicitly
// into component constructors (session.WithLogger and siblings),
// exactly as the picker core's ambient-stack design requires.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options configures the process-wide logger.
type Options struct {
	// Level is the minimum level that will be emitted. Defaults to
	// logrus.InfoLevel when the zero value is used.
	Level logrus.Level
	// JSON selects the JSON formatter instead of the text formatter;
	// daemons spawned by an editor generally want JSON since stderr is
	// captured into a log file, not a terminal.
	JSON bool
	// Output overrides the destination; defaults to os.Stderr so
	// stdout remains reserved for the JSON-RPC channel.
	Output io.Writer
}

// New builds the process-wide logger. stdout is never a valid Output:
// the newline-framed JSON-RPC link to the editor owns stdout, and
// anything logrus writes there would corrupt the protocol stream.
func New(opts Options) *logrus.Logger {
	log := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)

	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level := opts.Level
	if level == 0 {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}

// Component returns a per-component entry carrying a "component" field,
// the convention every package in this daemon uses to tag its log
// lines (session_id and provider_id are added by the caller per
// request, component is fixed at construction).
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
