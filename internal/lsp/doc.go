// Package lsp provides Language Server Protocol client integration for
// the picker's code-intelligence providers.
//
// The LSP layer enables intelligent code features by communicating with external
// language servers (gopls, rust-analyzer, typescript-language-server, etc.).
// It abstracts the complexity of JSON-RPC communication, server lifecycle management,
// and protocol negotiation while exposing a clean interface to the rest of the daemon.
//
// # Architecture
//
// The package is organized around these core components:
//
//   - Client: High-level interface for LSP operations
//   - Manager: Manages multiple language server lifecycles
//   - Server: Single server connection and communication
//   - Transport: JSON-RPC 2.0 protocol implementation
//
// # Quick Start
//
// Create and initialize the LSP client:
//
//	client := lsp.NewClient(lsp.WithWorkspaceRoot("/path/to/project"))
//
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Shutdown(ctx)
//
//	// Open a document
//	client.OpenDocument(ctx, "/path/to/file.go", content)
//
//	// Request completions
//	result, err := client.Complete(ctx, "/path/to/file.go", lsp.Position{Line: 10, Character: 5}, "")
//
// # Server Configuration
//
// Servers are configured per-language:
//
//	client := lsp.NewClient(lsp.WithServers(map[string]lsp.ServerConfig{
//	    "go": {
//	        Command:     "gopls",
//	        Args:        []string{"serve"},
//	        LanguageIDs: []string{"go"},
//	    },
//	    "rust": {
//	        Command:     "rust-analyzer",
//	        LanguageIDs: []string{"rust"},
//	    },
//	}))
//
// # Features
//
// The LSP client supports:
//   - Code completion with filtering and sorting
//   - Hover information
//   - Go-to-definition/type-definition
//   - Find references
//   - Document and workspace symbols
//   - Real-time diagnostics (errors, warnings)
//   - Code actions (quick fixes, refactorings)
//   - Document formatting
//   - Symbol renaming
//   - Signature help
//
// # Multi-Server Support
//
// The Manager handles multiple concurrent language servers. Servers are started
// lazily when files of that language are opened. They keep running until
// Manager.Shutdown stops them or Manager.RestartServer replaces one.
//
// # Crash Recovery
//
// A Manager built with WithSupervision restarts a crashed server with
// exponential backoff and re-syncs open documents to the new instance.
// Client does not pass WithSupervision, so servers it starts are not
// restarted after a crash.
//
// # Thread Safety
//
// The Client and Manager are safe for concurrent use. Individual Server instances
// use internal locking for thread safety.
//
// # Broker
//
// Broker wraps a started Client with capability gating: each of its
// six operations (goto_definition, references, document_symbols,
// code_actions, completion, diagnostics) checks the owning server's
// advertised ServerCapabilities before issuing the request, returning
// ErrNotSupported instead of a request the server told us at
// initialize time it does not implement. This is the type the picker
// providers (goto-definition, dumb-jump, code-action) actually hold.
package lsp
