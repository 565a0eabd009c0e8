package rpc

import (
	"context"
	"encoding/json"
)

// ProviderHandler answers the provider-lifecycle method category
// (§6): new_provider, exit_provider.
type ProviderHandler interface {
	NewProvider(ctx context.Context, params json.RawMessage) (any, error)
	ExitProvider(ctx context.Context, params json.RawMessage) (any, error)
}

// EventHandler answers the provider-event method category (§6):
// on_typed, on_move, key_event, autocmd_event.
type EventHandler interface {
	OnTyped(ctx context.Context, params json.RawMessage) (any, error)
	OnMove(ctx context.Context, params json.RawMessage) (any, error)
	KeyEvent(ctx context.Context, params json.RawMessage) (any, error)
	AutocmdEvent(ctx context.Context, params json.RawMessage) (any, error)
}

// ActionHandler answers one plugin's action-call method category
// (§6): "<plugin-id>/<action>". action is the method suffix after the
// slash.
type ActionHandler func(ctx context.Context, action string, params json.RawMessage) (any, error)
