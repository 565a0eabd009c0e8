package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

type stubProviders struct {
	newCalls  int
	exitCalls int
}

func (s *stubProviders) NewProvider(_ context.Context, _ json.RawMessage) (any, error) {
	s.newCalls++
	return map[string]any{"ok": true}, nil
}

func (s *stubProviders) ExitProvider(_ context.Context, _ json.RawMessage) (any, error) {
	s.exitCalls++
	return nil, nil
}

type stubEvents struct{ typedInputs []string }

func (s *stubEvents) OnTyped(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Input string `json:"input"`
	}
	_ = json.Unmarshal(params, &p)
	s.typedInputs = append(s.typedInputs, p.Input)
	return nil, nil
}
func (s *stubEvents) OnMove(context.Context, json.RawMessage) (any, error)       { return nil, nil }
func (s *stubEvents) KeyEvent(context.Context, json.RawMessage) (any, error)     { return nil, nil }
func (s *stubEvents) AutocmdEvent(context.Context, json.RawMessage) (any, error) { return nil, nil }

func newDispatcherOver(in string, out *bytes.Buffer) *Dispatcher {
	return New(strings.NewReader(in), out, testLogger())
}

func TestDispatcherRoutesProviderLifecycle(t *testing.T) {
	providers := &stubProviders{}
	out := &bytes.Buffer{}
	d := newDispatcherOver(`{"jsonrpc":"2.0","id":1,"method":"new_provider","params":{}}`+"\n", out)
	d.SetProviderHandler(providers)

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, 1, providers.newCalls)
	assert.Contains(t, out.String(), `"result"`)
}

func TestDispatcherRoutesProviderEvents(t *testing.T) {
	events := &stubEvents{}
	out := &bytes.Buffer{}
	d := newDispatcherOver(`{"jsonrpc":"2.0","method":"on_typed","params":{"input":"abc"}}`+"\n", out)
	d.SetEventHandler(events)

	require.NoError(t, d.Run(context.Background()))
	require.Len(t, events.typedInputs, 1)
	assert.Equal(t, "abc", events.typedInputs[0])
	// A notification (no id) never gets a response frame.
	assert.Empty(t, out.String())
}

func TestDispatcherRoutesActionCalls(t *testing.T) {
	out := &bytes.Buffer{}
	var gotAction string
	d := newDispatcherOver(`{"jsonrpc":"2.0","id":7,"method":"grep/search","params":{}}`+"\n", out)
	d.RegisterAction("grep", func(_ context.Context, action string, _ json.RawMessage) (any, error) {
		gotAction = action
		return "done", nil
	})

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, "search", gotAction)
	assert.Contains(t, out.String(), `"done"`)
}

func TestDispatcherUnknownMethodReturnsMethodNotFound(t *testing.T) {
	out := &bytes.Buffer{}
	d := newDispatcherOver(`{"jsonrpc":"2.0","id":2,"method":"bogus","params":{}}`+"\n", out)

	require.NoError(t, d.Run(context.Background()))

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestDispatcherInvalidJSONIsParseError(t *testing.T) {
	out := &bytes.Buffer{}
	d := newDispatcherOver("not json at all\n", out)

	require.NoError(t, d.Run(context.Background()))
	assert.Contains(t, out.String(), `"code":-32700`)
}

func TestNotifyWritesEnvelopeWithoutID(t *testing.T) {
	out := &bytes.Buffer{}
	d := New(strings.NewReader(""), out, testLogger())

	require.NoError(t, d.Notify(NotifyPickerUpdate, UpdatePayload{Matched: 3, Processed: 100}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &got))
	assert.Equal(t, NotifyPickerUpdate, got["method"])
	_, hasID := got["id"]
	assert.False(t, hasID)
}
