// Command clap-core is the fuzzy-picker compute-core daemon: it speaks
// newline-framed JSON-RPC 2.0 to an editor over stdio, maintaining
// provider sessions, fuzzy-ranking and grep-searching candidate
// streams, brokering a language server, and serving a markdown
// live-preview over websocket.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/liuchengxu/vim-clap-sub000/internal/config"
	"github.com/liuchengxu/vim-clap-sub000/internal/logging"
	"github.com/liuchengxu/vim-clap-sub000/internal/rpc"
)

func main() {
	// Flag parsing is the only place this daemon reaches for the
	// standard library: the surface here is two boolean/string
	// toggles, not worth adopting a dependency for.
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logJSON := flag.Bool("log-json", true, "emit structured logs as JSON")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log := logging.New(logging.Options{Level: level, JSON: *logJSON})
	entry := logging.Component(log, "clap-core")

	cfg := config.Default()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dispatcher := rpc.New(os.Stdin, os.Stdout, entry)

	reg := newRegistry(ctx, cfg, dispatcher, log)
	defer reg.closeAll()

	dispatcher.SetProviderHandler(reg)
	dispatcher.SetEventHandler(reg)
	dispatcher.RegisterAction("lsp", reg.lspAction)
	dispatcher.RegisterAction("markdown", reg.markdownAction)

	if err := dispatcher.Run(ctx); err != nil {
		entry.WithError(err).Error("rpc loop exited with error")
		os.Exit(1)
	}
}
