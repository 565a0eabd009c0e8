package lsp

import "context"

// requireCapability starts (if needed) the server owning path and
// checks it advertises the capability has checks for, returning
// ErrNotSupported rather than sending a request the server already
// told us during initialize it will reject.
func (c *Client) requireCapability(ctx context.Context, path string, has func(ServerCapabilities) bool) error {
	svc, err := c.getServices()
	if err != nil {
		return err
	}
	server, err := svc.manager.ServerForFile(ctx, path)
	if err != nil {
		return err
	}
	if !has(server.Capabilities()) {
		return ErrNotSupported
	}
	return nil
}

// Broker is the narrow, capability-gated facade a picker provider
// actually drives: goto_definition, references, document_symbols,
// code_actions, completion, and diagnostics, each checked against the
// owning server's advertised capabilities before the request is sent.
// It embeds Client so the full operation set (formatting, rename,
// signature help, navigation history, ...) remains reachable for
// providers that need it.
type Broker struct {
	*Client
}

// NewBroker wraps a Client, which must already be started, as a
// capability-gated Broker.
func NewBroker(client *Client) *Broker {
	return &Broker{Client: client}
}

// GotoDefinition resolves the symbol at pos, gated on
// definitionProvider.
func (b *Broker) GotoDefinition(ctx context.Context, path string, pos Position) (*NavigationResult, error) {
	if err := b.requireCapability(ctx, path, func(c ServerCapabilities) bool { return c.DefinitionProvider != nil }); err != nil {
		return nil, err
	}
	return b.Client.GoToDefinition(ctx, path, pos)
}

// References finds every reference to the symbol at pos, gated on
// referencesProvider.
func (b *Broker) References(ctx context.Context, path string, pos Position) (*NavigationResult, error) {
	if err := b.requireCapability(ctx, path, func(c ServerCapabilities) bool { return c.ReferencesProvider != nil }); err != nil {
		return nil, err
	}
	return b.Client.FindReferences(ctx, path, pos)
}

// DocumentSymbols lists path's symbol tree, gated on
// documentSymbolProvider.
func (b *Broker) DocumentSymbols(ctx context.Context, path string) ([]DocumentSymbol, error) {
	if err := b.requireCapability(ctx, path, func(c ServerCapabilities) bool { return c.DocumentSymbolProvider != nil }); err != nil {
		return nil, err
	}
	return b.Client.DocumentSymbols(ctx, path)
}

// CodeActions lists the actions available for rng, gated on
// codeActionProvider.
func (b *Broker) CodeActions(ctx context.Context, path string, rng Range, diagnostics []Diagnostic) (*CodeActionResult, error) {
	if err := b.requireCapability(ctx, path, func(c ServerCapabilities) bool { return c.CodeActionProvider != nil }); err != nil {
		return nil, err
	}
	svc, err := b.getServices()
	if err != nil {
		return nil, err
	}
	return svc.actions.GetCodeActions(ctx, path, rng, diagnostics)
}

// Completion requests completions at pos, gated on
// completionProvider.
func (b *Broker) Completion(ctx context.Context, path string, pos Position, prefix string) (*CompletionResult, error) {
	if err := b.requireCapability(ctx, path, func(c ServerCapabilities) bool { return c.CompletionProvider != nil }); err != nil {
		return nil, err
	}
	return b.Client.Complete(ctx, path, pos, prefix)
}

// Diagnostics returns the last diagnostics pushed for path; no
// capability gate applies, diagnostics are server-initiated push
// notifications rather than a client request.
func (b *Broker) Diagnostics(path string) []Diagnostic {
	return b.Client.Diagnostics(path)
}
