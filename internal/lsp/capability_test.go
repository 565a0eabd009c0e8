package lsp

import (
	"context"
	"errors"
	"testing"
)

func TestBrokerRequiresStartedClient(t *testing.T) {
	client := NewClient()
	broker := NewBroker(client)

	// The client has not been started, so getServices fails with
	// ErrNotStarted before any capability is even checked.
	_, err := broker.GotoDefinition(context.Background(), "main.go", Position{})
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestCapabilityPredicates(t *testing.T) {
	caps := ServerCapabilities{
		DefinitionProvider: true,
		CompletionProvider: &CompletionOptions{},
	}

	if !(caps.DefinitionProvider != nil) {
		t.Error("expected DefinitionProvider predicate to hold")
	}
	if !(caps.CompletionProvider != nil) {
		t.Error("expected CompletionProvider predicate to hold")
	}
	if caps.ReferencesProvider != nil {
		t.Error("expected ReferencesProvider predicate to be false on zero value")
	}
}
