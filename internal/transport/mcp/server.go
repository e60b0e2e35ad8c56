// Package mcp exposes the world to tool-calling agents as a small JSON-RPC
// tool server (initialize, list_tools, call_tool) mounted at /mcp.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"citydev.io/internal/protocol"
	"citydev.io/internal/sim/world"
)

// World is the part of *world.World the tools need.
type World interface {
	State() *world.State
	StateJSON() []byte
	Metrics() world.WorldMetrics
	Do(ctx context.Context, a protocol.Action) (world.ActionResult, error)
}

var _ World = (*world.World)(nil)

const (
	toolGetState     = "citydev.get_state"
	toolGetProperty  = "citydev.get_property"
	toolGetPortfolio = "citydev.get_portfolio"
	toolGetMetrics   = "citydev.get_metrics"
	toolAct          = "citydev.act"
)

type Config struct {
	World         World
	ActionTimeout time.Duration
	Logger        *log.Logger
}

type Server struct {
	world         World
	actionTimeout time.Duration
	logger        *log.Logger
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.World == nil {
		return nil, fmt.Errorf("nil world")
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 2 * time.Second
	}
	return &Server{world: cfg.World, actionTimeout: cfg.ActionTimeout, logger: cfg.Logger}, nil
}

// Handler serves JSON-RPC over POST.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleMCP)
}

func (s *Server) handleMCP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(rw, "bad body", http.StatusBadRequest)
		return
	}
	_ = r.Body.Close()

	var resp rpcResponse
	req, err := decodeRequest(body)
	if err != nil {
		resp = req.fail(codeParseError, "bad jsonrpc request", err.Error())
	} else {
		resp = s.dispatch(r.Context(), req)
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return req.ok(map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]any{"name": "citydev", "schemaVersion": protocol.SchemaVersion},
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
		})

	case "list_tools", "tools/list":
		return req.ok(map[string]any{"tools": toolsList()})

	case "call_tool", "tools/call":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if len(req.Params) == 0 {
			return req.fail(codeInvalidParams, "missing params", nil)
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return req.fail(codeInvalidParams, "bad params", err.Error())
		}
		if p.Name == "" {
			return req.fail(codeInvalidParams, "missing tool name", nil)
		}
		if !isKnownTool(p.Name) {
			return req.fail(codeMethodNotFound, "tool not found", map[string]any{"name": p.Name})
		}
		out, err := s.callTool(ctx, p.Name, p.Arguments)
		if err != nil {
			return req.fail(codeToolError, err.Error(), map[string]any{"code": protocol.CodeOf(err)})
		}
		return req.ok(out)

	default:
		return req.fail(codeMethodNotFound, "method not found", nil)
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props, "additionalProperties": false}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func toolsList() []map[string]any {
	return []map[string]any{
		{
			"name":        toolGetState,
			"description": "Full published world state: every entity with its components, the tick and the schema version.",
			"inputSchema": objectSchema(map[string]any{}),
		},
		{
			"name":        toolGetProperty,
			"description": "One property by id, including its upgrade paths and queued upgrades.",
			"inputSchema": objectSchema(map[string]any{
				"property_id": map[string]any{"type": "integer"},
			}, "property_id"),
		},
		{
			"name":        toolGetPortfolio,
			"description": "Player funds, simulated date and the owned properties with their current monthly rent.",
			"inputSchema": objectSchema(map[string]any{}),
		},
		{
			"name":        toolGetMetrics,
			"description": "Engine counters: tick, funds, owned properties, action totals.",
			"inputSchema": objectSchema(map[string]any{}),
		},
		{
			"name":        toolAct,
			"description": "Submit one action (buy_property, sell_property, upgrade_property, control_time) exactly as POST /actions takes it.",
			"inputSchema": objectSchema(map[string]any{
				"action":  map[string]any{"type": "string", "enum": []string{protocol.ActionBuyProperty, protocol.ActionSellProperty, protocol.ActionUpgradeProperty, protocol.ActionControlTime}},
				"payload": map[string]any{"type": "object"},
			}, "action", "payload"),
		},
	}
}

func isKnownTool(name string) bool {
	switch name {
	case toolGetState, toolGetProperty, toolGetPortfolio, toolGetMetrics, toolAct:
		return true
	default:
		return false
	}
}

// PortfolioItem is one owned property in get_portfolio.
type PortfolioItem struct {
	PropertyID     int64   `json:"property_id"`
	Name           string  `json:"name"`
	NeighborhoodID int64   `json:"neighborhood_id"`
	Price          float64 `json:"price"`
	MonthlyRent    float64 `json:"monthly_rent"`
	UpgradeLevel   int     `json:"upgrade_level"`
	PendingUpgrade int     `json:"pending_upgrades"`
}

type Portfolio struct {
	Tick        uint64          `json:"tick"`
	Date        time.Time       `json:"date"`
	Paused      bool            `json:"paused"`
	Funds       float64         `json:"funds"`
	MonthlyRent float64         `json:"monthly_rent"`
	Properties  []PortfolioItem `json:"properties"`
}

func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case toolGetState:
		b := s.world.StateJSON()
		if len(b) == 0 {
			return nil, protocol.Errorf(protocol.ErrInternal, "state not available")
		}
		return json.RawMessage(b), nil

	case toolGetProperty:
		var p struct {
			PropertyID *int64 `json:"property_id"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, protocol.Errorf(protocol.ErrInvalidArgument, "bad arguments: %v", err)
		}
		if p.PropertyID == nil {
			return nil, protocol.Errorf(protocol.ErrInvalidArgument, "missing property_id")
		}
		st := s.world.State()
		if st == nil {
			return nil, protocol.Errorf(protocol.ErrInternal, "state not available")
		}
		e := st.Entities[strconv.FormatInt(*p.PropertyID, 10)]
		prop, ok := e.Property()
		if !ok {
			return nil, protocol.Errorf(protocol.ErrNotFound, "property %d not found", *p.PropertyID)
		}
		return prop, nil

	case toolGetPortfolio:
		return s.portfolio()

	case toolGetMetrics:
		return s.world.Metrics(), nil

	case toolAct:
		if len(args) == 0 {
			return nil, protocol.Errorf(protocol.ErrInvalidArgument, "missing arguments")
		}
		act, err := protocol.DecodeAction(args)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(ctx, s.actionTimeout)
		defer cancel()
		res, err := s.world.Do(ctx, act)
		if err != nil {
			if protocol.CodeOf(err) == protocol.ErrInternal && s.logger != nil {
				s.logger.Printf("mcp action %s: %v", act.Kind, err)
			}
			return nil, err
		}
		return res, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func (s *Server) portfolio() (Portfolio, error) {
	st := s.world.State()
	if st == nil {
		return Portfolio{}, protocol.Errorf(protocol.ErrInternal, "state not available")
	}
	out := Portfolio{Tick: st.Tick, Properties: []PortfolioItem{}}
	for _, e := range st.Entities {
		if gt, ok := e.GameTime(); ok {
			out.Date = gt.CurrentDate
			out.Paused = gt.IsPaused
		}
		if pl, ok := e.Player(); ok {
			out.Funds = pl.Funds
		}
		p, ok := e.Property()
		if !ok || !p.Owned {
			continue
		}
		item := PortfolioItem{
			PropertyID:     int64(p.ID),
			Name:           p.Name,
			NeighborhoodID: int64(p.NeighborhoodID),
			Price:          p.Price,
			MonthlyRent:    p.EffectiveRent(),
			UpgradeLevel:   p.UpgradeLevel,
		}
		for _, u := range p.Upgrades {
			if !u.Applied {
				item.PendingUpgrade++
			}
		}
		out.MonthlyRent += item.MonthlyRent
		out.Properties = append(out.Properties, item)
	}
	sort.Slice(out.Properties, func(i, j int) bool { return out.Properties[i].PropertyID < out.Properties[j].PropertyID })
	return out, nil
}
