package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"
)

// Notification method names the core sends to the editor (§6).
const (
	NotifyPickerUpdate        = "clap#picker#update"
	NotifyPickerUpdatePreview = "clap#picker#update_preview"
	NotifyProcessFilterMsg    = "clap#state#process_filter_message"
)

// UpdatePayload is the §4.1/§6 snapshot notification payload.
type UpdatePayload struct {
	Matched      uint64            `json:"matched"`
	Processed    uint64            `json:"processed"`
	Lines        []string          `json:"lines,omitempty"`
	Indices      [][]int           `json:"indices,omitempty"`
	TruncatedMap map[string]string `json:"truncated_map,omitempty"`
	IconAdded    bool              `json:"icon_added"`
}

// Notify sends a core-initiated notification to the editor: a
// JSON-RPC 2.0 object with no "id" field. The envelope is assembled
// with sjson directly onto a raw params payload rather than through a
// Notification struct, avoiding a second marshal/copy of params that
// is typically already serialized JSON (a rendered snapshot or
// preview) by the time Notify is called.
func (d *Dispatcher) Notify(method string, params any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("rpc: marshal notify params for %s: %w", method, err)
	}

	methodJSON, err := json.Marshal(method)
	if err != nil {
		return fmt.Errorf("rpc: marshal notify method: %w", err)
	}

	body, err := sjson.SetRawBytes([]byte(`{}`), "method", methodJSON)
	if err != nil {
		return fmt.Errorf("rpc: build notify envelope: %w", err)
	}
	body, err = sjson.SetRawBytes(body, "params", paramsJSON)
	if err != nil {
		return fmt.Errorf("rpc: build notify envelope: %w", err)
	}

	d.writeLine(body)
	return nil
}

// NotifyPickerUpdateMsg is a typed convenience wrapper over Notify for
// the picker-update snapshot.
func (d *Dispatcher) NotifyPickerUpdateMsg(p UpdatePayload) error {
	return d.Notify(NotifyPickerUpdate, p)
}
