package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/liuchengxu/vim-clap-sub000/internal/lsp"
)

// lspActionParams covers every "lsp/*" action this daemon exposes:
// goto_definition, references, document_symbols, completion, and
// diagnostics, matching the Broker's capability-gated facade.
type lspActionParams struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
	Prefix    string `json:"prefix,omitempty"`
}

// ensureBroker lazily starts a single workspace-wide LSP client on
// first use (§4.5's startup barrier), auto-detecting servers with
// lsp.AutoDetectServers, and wraps it as a capability-gated
// Broker. Subsequent action calls reuse the same client.
func (r *registry) ensureBroker(ctx context.Context, workspaceRoot string) (*lsp.Broker, error) {
	r.lspMu.Lock()
	defer r.lspMu.Unlock()

	if r.lspBroker != nil {
		return r.lspBroker, nil
	}

	client := lsp.NewClient(
		lsp.WithServers(lsp.AutoDetectServers()),
		lsp.WithWorkspaceRoot(workspaceRoot),
		lsp.WithClientRequestTimeout(r.cfg.LSPInitTimeout),
	)

	startCtx, cancel := context.WithTimeout(ctx, r.cfg.LSPInitTimeout)
	defer cancel()
	if err := client.Start(startCtx); err != nil {
		return nil, fmt.Errorf("lsp: start client: %w", err)
	}

	r.lspClient = client
	r.lspBroker = lsp.NewBroker(client)
	return r.lspBroker, nil
}

// lspAction implements rpc.ActionHandler for the "lsp" plugin ID.
func (r *registry) lspAction(ctx context.Context, action string, raw json.RawMessage) (any, error) {
	var p lspActionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("lsp/%s: decode params: %w", action, err)
	}

	root, ok := r.lookup("")
	workspaceRoot := p.Path
	if ok {
		workspaceRoot = root.sess.Env().Cwd
	}

	broker, err := r.ensureBroker(ctx, workspaceRoot)
	if err != nil {
		return nil, err
	}

	pos := lsp.Position{Line: p.Line, Character: p.Character}

	switch action {
	case "goto_definition":
		return broker.GotoDefinition(ctx, p.Path, pos)
	case "references":
		return broker.References(ctx, p.Path, pos)
	case "document_symbols":
		return broker.DocumentSymbols(ctx, p.Path)
	case "completion":
		return broker.Completion(ctx, p.Path, pos, p.Prefix)
	case "diagnostics":
		return broker.Diagnostics(p.Path), nil
	default:
		return nil, fmt.Errorf("lsp/%s: unknown action", action)
	}
}
