package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type BuyPropertyPayload struct {
	PropertyID int64 `json:"property_id"`
	PlayerID   int64 `json:"player_id"`
}

type SellPropertyPayload struct {
	PropertyID int64 `json:"property_id"`
}

type UpgradePropertyPayload struct {
	PropertyID int64  `json:"property_id"`
	PathName   string `json:"path_name"`
}

type ControlTimePayload struct {
	Action          string   `json:"action"`
	SpeedMultiplier *float64 `json:"speed_multiplier,omitempty"`
}

// Action is a decoded request. Exactly one payload pointer is set and it
// matches Kind.
type Action struct {
	Kind            string
	BuyProperty     *BuyPropertyPayload
	SellProperty    *SellPropertyPayload
	UpgradeProperty *UpgradePropertyPayload
	ControlTime     *ControlTimePayload
}

func NewBuyProperty(propertyID, playerID int64) Action {
	return Action{Kind: ActionBuyProperty, BuyProperty: &BuyPropertyPayload{PropertyID: propertyID, PlayerID: playerID}}
}

func NewSellProperty(propertyID int64) Action {
	return Action{Kind: ActionSellProperty, SellProperty: &SellPropertyPayload{PropertyID: propertyID}}
}

func NewUpgradeProperty(propertyID int64, path string) Action {
	return Action{Kind: ActionUpgradeProperty, UpgradeProperty: &UpgradePropertyPayload{PropertyID: propertyID, PathName: path}}
}

func NewControlTime(action string) Action {
	return Action{Kind: ActionControlTime, ControlTime: &ControlTimePayload{Action: action}}
}

func NewSetSpeed(m float64) Action {
	return Action{Kind: ActionControlTime, ControlTime: &ControlTimePayload{Action: TimeSetSpeed, SpeedMultiplier: &m}}
}

func (a Action) payload() any {
	switch a.Kind {
	case ActionBuyProperty:
		return a.BuyProperty
	case ActionSellProperty:
		return a.SellProperty
	case ActionUpgradeProperty:
		return a.UpgradeProperty
	case ActionControlTime:
		return a.ControlTime
	}
	return nil
}

// Encode returns the wire envelope for a. Tick logs store actions in this form
// so replay goes through the same decoder as HTTP.
func (a Action) Encode() (ActionRequest, error) {
	p := a.payload()
	if p == nil {
		return ActionRequest{}, Errorf(ErrInvalidArgument, "unknown action %q", a.Kind)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return ActionRequest{}, fmt.Errorf("encode %s: %w", a.Kind, err)
	}
	return ActionRequest{Action: a.Kind, Payload: b}, nil
}

//go:embed schemas/actions.schema.json
var actionsSchemaJSON []byte

var (
	actionsSchemaOnce sync.Once
	actionsSchema     *jsonschema.Schema
	actionsSchemaErr  error
)

func compiledActionsSchema() (*jsonschema.Schema, error) {
	actionsSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource("actions.schema.json", bytes.NewReader(actionsSchemaJSON)); err != nil {
			actionsSchemaErr = err
			return
		}
		actionsSchema, actionsSchemaErr = c.Compile("actions.schema.json")
	})
	return actionsSchema, actionsSchemaErr
}

// DecodeAction validates b against the action schema and decodes it. Every
// failure is an ErrInvalidArgument except a broken embedded schema.
func DecodeAction(b []byte) (Action, error) {
	s, err := compiledActionsSchema()
	if err != nil {
		return Action{}, Errorf(ErrInternal, "actions schema: %v", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return Action{}, Errorf(ErrInvalidArgument, "bad json: %v", err)
	}
	if err := s.Validate(doc); err != nil {
		return Action{}, Errorf(ErrInvalidArgument, "%v", err)
	}
	var req ActionRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return Action{}, Errorf(ErrInvalidArgument, "bad request: %v", err)
	}
	return DecodeRequest(req)
}

// DecodeRequest decodes an envelope that has already passed validation, or
// one read back from a tick log.
func DecodeRequest(req ActionRequest) (Action, error) {
	a := Action{Kind: req.Action}
	var dst any
	switch req.Action {
	case ActionBuyProperty:
		a.BuyProperty = &BuyPropertyPayload{}
		dst = a.BuyProperty
	case ActionSellProperty:
		a.SellProperty = &SellPropertyPayload{}
		dst = a.SellProperty
	case ActionUpgradeProperty:
		a.UpgradeProperty = &UpgradePropertyPayload{}
		dst = a.UpgradeProperty
	case ActionControlTime:
		a.ControlTime = &ControlTimePayload{}
		dst = a.ControlTime
	default:
		return Action{}, Errorf(ErrInvalidArgument, "unknown action %q", req.Action)
	}
	if len(req.Payload) == 0 {
		return Action{}, Errorf(ErrInvalidArgument, "%s: missing payload", req.Action)
	}
	if err := json.Unmarshal(req.Payload, dst); err != nil {
		return Action{}, Errorf(ErrInvalidArgument, "%s: %v", req.Action, err)
	}
	return a, nil
}
