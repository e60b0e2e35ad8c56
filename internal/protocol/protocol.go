package protocol

import "encoding/json"

// SchemaVersion names the one canonical shape of the published world state
// and of snapshot files. Bump it whenever that shape changes.
const SchemaVersion = 2

// Action names accepted on POST /actions.
const (
	ActionBuyProperty     = "buy_property"
	ActionSellProperty    = "sell_property"
	ActionUpgradeProperty = "upgrade_property"
	ActionControlTime     = "control_time"
)

// control_time sub-actions.
const (
	TimePause    = "pause"
	TimeStart    = "start"
	TimeResume   = "resume"
	TimeSetSpeed = "set_speed"
)

// ActionRequest is the wire envelope of an action.
type ActionRequest struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}
