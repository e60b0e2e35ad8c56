package world

import (
	"time"

	"github.com/google/uuid"

	"citydev.io/internal/protocol"
	"citydev.io/internal/sim/entity"
)

// ActionResult is returned for every successful action.
type ActionResult struct {
	ActionID  string           `json:"ActionID"`
	Action    string           `json:"Action"`
	Tick      uint64           `json:"Tick"`
	Date      time.Time        `json:"Date"`
	Funds     float64          `json:"Funds"`
	Property  *entity.Property `json:"Property,omitempty"`
	SaleValue *float64         `json:"SaleValue,omitempty"`
	Upgrade   *entity.Upgrade  `json:"Upgrade,omitempty"`
	Time      *entity.GameTime `json:"Time,omitempty"`
}

// applyAction validates and applies a on the loop goroutine, records it for
// the tick log and republishes state on success.
func (w *World) applyAction(a protocol.Action) (ActionResult, error) {
	id := uuid.NewString()
	res, err := w.dispatchAction(id, a)

	w.actionsTotal++
	rec := RecordedAction{ID: id, Code: protocol.CodeOf(err)}
	if req, encErr := a.Encode(); encErr == nil {
		rec.Request = req
	} else {
		rec.Request = protocol.ActionRequest{Action: a.Kind}
	}
	w.pendingRecorded = append(w.pendingRecorded, rec)

	if err != nil {
		w.actionErrorsTotal++
		w.storeMetrics()
		return ActionResult{}, err
	}
	if ierr := w.checkInvariants(); ierr != nil {
		w.invariantViolations++
		w.logf("world %s: invariant violated after %s: %v", w.cfg.ID, a.Kind, ierr)
		w.publish()
		return ActionResult{}, protocol.Errorf(protocol.ErrInternal, "internal error after %s", a.Kind)
	}
	w.publish()
	return res, nil
}

func (w *World) dispatchAction(id string, a protocol.Action) (ActionResult, error) {
	switch a.Kind {
	case protocol.ActionBuyProperty:
		if a.BuyProperty == nil {
			break
		}
		return w.buyProperty(id, entity.ID(a.BuyProperty.PropertyID), entity.ID(a.BuyProperty.PlayerID))
	case protocol.ActionSellProperty:
		if a.SellProperty == nil {
			break
		}
		return w.sellProperty(id, entity.ID(a.SellProperty.PropertyID))
	case protocol.ActionUpgradeProperty:
		if a.UpgradeProperty == nil {
			break
		}
		return w.upgradeProperty(id, entity.ID(a.UpgradeProperty.PropertyID), a.UpgradeProperty.PathName)
	case protocol.ActionControlTime:
		if a.ControlTime == nil {
			break
		}
		return w.controlTime(id, a.ControlTime)
	default:
		return ActionResult{}, protocol.Errorf(protocol.ErrInvalidArgument, "unknown action %q", a.Kind)
	}
	return ActionResult{}, protocol.Errorf(protocol.ErrInvalidArgument, "%s: missing payload", a.Kind)
}

func (w *World) result(id, action string) ActionResult {
	gt := w.clock()
	return ActionResult{
		ActionID: id,
		Action:   action,
		Tick:     w.tick.Load(),
		Date:     gt.CurrentDate,
		Funds:    w.player().Funds,
	}
}

func (w *World) lookupProperty(id entity.ID) (*entity.Property, error) {
	e, err := w.store.Get(id)
	if err != nil {
		return nil, protocol.Errorf(protocol.ErrNotFound, "property %d not found", id)
	}
	p, ok := e.Property()
	if !ok {
		return nil, protocol.Errorf(protocol.ErrNotFound, "entity %d is not a property", id)
	}
	return p, nil
}

func (w *World) lookupPlayer(id entity.ID) (*entity.Player, error) {
	e, err := w.store.Get(id)
	if err != nil {
		return nil, protocol.Errorf(protocol.ErrNotFound, "player %d not found", id)
	}
	p, ok := e.Player()
	if !ok {
		return nil, protocol.Errorf(protocol.ErrNotFound, "entity %d is not a player", id)
	}
	return p, nil
}

func (w *World) buyProperty(actionID string, propertyID, playerID entity.ID) (ActionResult, error) {
	p, err := w.lookupProperty(propertyID)
	if err != nil {
		return ActionResult{}, err
	}
	pl, err := w.lookupPlayer(playerID)
	if err != nil {
		return ActionResult{}, err
	}
	if p.Owned {
		return ActionResult{}, protocol.Errorf(protocol.ErrAlreadyOwned, "property %d is already owned", p.ID)
	}
	if pl.Funds < p.Price {
		return ActionResult{}, protocol.Errorf(protocol.ErrInsufficientFunds, "funds %.2f < price %.2f", pl.Funds, p.Price)
	}

	gt := w.clock()
	pl.Funds = roundCents(pl.Funds - p.Price)
	pl.PropertyIDs = append(pl.PropertyIDs, p.ID)
	p.Owned = true
	p.PlayerID = pl.ID
	p.PurchaseDate = gt.CurrentDate

	w.audit(AuditEntry{
		Tick:       w.tick.Load(),
		Date:       gt.CurrentDate,
		Kind:       AuditBuy,
		ActionID:   actionID,
		PlayerID:   int64(pl.ID),
		PropertyID: int64(p.ID),
		Amount:     -p.Price,
		Funds:      pl.Funds,
	})
	res := w.result(actionID, protocol.ActionBuyProperty)
	res.Property = cloneProperty(p)
	return res, nil
}

func (w *World) sellProperty(actionID string, propertyID entity.ID) (ActionResult, error) {
	p, err := w.lookupProperty(propertyID)
	if err != nil {
		return ActionResult{}, err
	}
	if !p.Owned {
		return ActionResult{}, protocol.Errorf(protocol.ErrNotOwned, "property %d is not owned", p.ID)
	}
	pl, err := w.lookupPlayer(p.PlayerID)
	if err != nil {
		return ActionResult{}, protocol.Errorf(protocol.ErrInternal, "property %d: owner %d missing", p.ID, p.PlayerID)
	}

	sale := roundCents(p.Price * w.cfg.Economy.SaleValueRatio)
	pl.Funds = roundCents(pl.Funds + sale)
	pl.RemoveProperty(p.ID)
	p.Owned = false
	p.PlayerID = 0
	p.PurchaseDate = time.Time{}

	gt := w.clock()
	w.audit(AuditEntry{
		Tick:       w.tick.Load(),
		Date:       gt.CurrentDate,
		Kind:       AuditSell,
		ActionID:   actionID,
		PlayerID:   int64(pl.ID),
		PropertyID: int64(p.ID),
		Amount:     sale,
		Funds:      pl.Funds,
	})
	res := w.result(actionID, protocol.ActionSellProperty)
	res.Property = cloneProperty(p)
	res.SaleValue = &sale
	return res, nil
}

// nextUpgrade returns the definition that a purchase on path would queue,
// with its effective prerequisite filled in.
func nextUpgrade(p *entity.Property, path string) (entity.Upgrade, error) {
	defs, ok := p.UpgradePaths[path]
	if !ok {
		return entity.Upgrade{}, protocol.Errorf(protocol.ErrNotFound, "property %d has no upgrade path %q", p.ID, path)
	}
	if !p.Owned {
		return entity.Upgrade{}, protocol.Errorf(protocol.ErrNotOwned, "property %d is not owned", p.ID)
	}
	idx := p.UpgradesOnPath(path)
	if idx >= len(defs) {
		return entity.Upgrade{}, protocol.Errorf(protocol.ErrAlreadyMaxed, "path %q is complete on property %d", path, p.ID)
	}
	def := defs[idx]
	if def.Prerequisite == "" && idx > 0 {
		def.Prerequisite = defs[idx-1].ID
	}
	if def.Prerequisite != "" && !p.UpgradeApplied(def.Prerequisite) {
		return entity.Upgrade{}, protocol.Errorf(protocol.ErrPrerequisiteUnmet, "%s requires %s to be completed first", def.ID, def.Prerequisite)
	}
	for _, u := range p.Upgrades {
		if u.ID == def.ID {
			return entity.Upgrade{}, protocol.Errorf(protocol.ErrAlreadyMaxed, "upgrade %s already purchased on property %d", def.ID, p.ID)
		}
	}
	return def, nil
}

func (w *World) upgradeProperty(actionID string, propertyID entity.ID, path string) (ActionResult, error) {
	p, err := w.lookupProperty(propertyID)
	if err != nil {
		return ActionResult{}, err
	}
	def, err := nextUpgrade(p, path)
	if err != nil {
		return ActionResult{}, err
	}
	pl, err := w.lookupPlayer(p.PlayerID)
	if err != nil {
		return ActionResult{}, protocol.Errorf(protocol.ErrInternal, "property %d: owner %d missing", p.ID, p.PlayerID)
	}
	if pl.Funds < def.Cost {
		return ActionResult{}, protocol.Errorf(protocol.ErrInsufficientFunds, "funds %.2f < cost %.2f", pl.Funds, def.Cost)
	}

	gt := w.clock()
	pl.Funds = roundCents(pl.Funds - def.Cost)
	u := def
	u.Path = path
	u.PurchaseDate = gt.CurrentDate
	u.CompletionDate = gt.CurrentDate.AddDate(0, 0, def.DaysToComplete)
	u.Applied = false
	p.Upgrades = append(p.Upgrades, u)

	w.audit(AuditEntry{
		Tick:       w.tick.Load(),
		Date:       gt.CurrentDate,
		Kind:       AuditUpgradePurchase,
		ActionID:   actionID,
		PlayerID:   int64(pl.ID),
		PropertyID: int64(p.ID),
		UpgradeID:  u.ID,
		Amount:     -def.Cost,
		Funds:      pl.Funds,
	})
	res := w.result(actionID, protocol.ActionUpgradeProperty)
	res.Property = cloneProperty(p)
	res.Upgrade = &u
	return res, nil
}

func (w *World) controlTime(actionID string, c *protocol.ControlTimePayload) (ActionResult, error) {
	switch c.Action {
	case protocol.TimePause:
		w.pauseTime()
	case protocol.TimeStart, protocol.TimeResume:
		w.startTime()
	case protocol.TimeSetSpeed:
		if err := w.setSpeed(c.SpeedMultiplier); err != nil {
			return ActionResult{}, err
		}
	default:
		return ActionResult{}, protocol.Errorf(protocol.ErrInvalidArgument, "unknown control_time action %q", c.Action)
	}
	res := w.result(actionID, protocol.ActionControlTime)
	gt := *w.clock()
	res.Time = &gt
	return res, nil
}

func cloneProperty(p *entity.Property) *entity.Property {
	e := entity.New(p.ID, entity.EntityProperty, p).Clone()
	c, _ := e.Property()
	return c
}
