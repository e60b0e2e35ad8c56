package world

import (
	"math"
	"testing"
	"time"

	"citydev.io/internal/protocol"
	"citydev.io/internal/sim/tuning"
)

func TestBuyProperty_FundsAndOwnership(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, "")

	res := mustApply(t, w, protocol.NewBuyProperty(101, 1))
	if res.Funds != 200 {
		t.Fatalf("funds=%v want 200", res.Funds)
	}
	p := prop(t, w, 101)
	if !p.Owned || p.PlayerID != 1 {
		t.Fatalf("ownership not set: owned=%v player=%d", p.Owned, p.PlayerID)
	}
	if !p.PurchaseDate.Equal(w.clock().CurrentDate) {
		t.Fatalf("purchase date=%v want %v", p.PurchaseDate, w.clock().CurrentDate)
	}
	if !w.player().Owns(101) {
		t.Fatalf("player does not list 101: %v", w.player().PropertyIDs)
	}
	if res.Property == nil || !res.Property.Owned {
		t.Fatalf("result should carry the bought property: %+v", res)
	}
	if res.ActionID == "" {
		t.Fatalf("missing action id")
	}
}

func TestBuyProperty_AlreadyOwnedChangesNothing(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, "")
	mustApply(t, w, protocol.NewBuyProperty(101, 1))
	digest := w.StateDigest()

	_, err := w.ApplyAction(protocol.NewBuyProperty(101, 1))
	wantCode(t, err, protocol.ErrAlreadyOwned)
	if w.player().Funds != 200 {
		t.Fatalf("funds changed: %v", w.player().Funds)
	}
	if len(w.player().PropertyIDs) != 1 {
		t.Fatalf("owned list changed: %v", w.player().PropertyIDs)
	}
	if w.StateDigest() != digest {
		t.Fatalf("failed action republished a different state")
	}
}

func TestBuyProperty_Errors(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, "")

	_, err := w.ApplyAction(protocol.NewBuyProperty(999, 1))
	wantCode(t, err, protocol.ErrNotFound)
	_, err = w.ApplyAction(protocol.NewBuyProperty(101, 42))
	wantCode(t, err, protocol.ErrNotFound)
	// The neighborhood entity is not a property.
	_, err = w.ApplyAction(protocol.NewBuyProperty(100, 1))
	wantCode(t, err, protocol.ErrNotFound)

	_, err = w.ApplyAction(protocol.NewBuyProperty(201, 1))
	wantCode(t, err, protocol.ErrInsufficientFunds)
	if w.player().Funds != 1000 || prop(t, w, 201).Owned {
		t.Fatalf("failed buy mutated state")
	}
}

func TestSellProperty(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, "")

	_, err := w.ApplyAction(protocol.NewSellProperty(101))
	wantCode(t, err, protocol.ErrNotOwned)
	_, err = w.ApplyAction(protocol.NewSellProperty(999))
	wantCode(t, err, protocol.ErrNotFound)

	mustApply(t, w, protocol.NewBuyProperty(101, 1))
	res := mustApply(t, w, protocol.NewSellProperty(101))
	if res.SaleValue == nil || *res.SaleValue != 640 {
		t.Fatalf("sale value=%v want 640", res.SaleValue)
	}
	if w.player().Funds != 840 {
		t.Fatalf("funds=%v want 840", w.player().Funds)
	}
	p := prop(t, w, 101)
	if p.Owned || p.PlayerID != 0 || !p.PurchaseDate.IsZero() {
		t.Fatalf("ownership not cleared: %+v", p)
	}
	if w.player().Owns(101) {
		t.Fatalf("player still lists 101")
	}
}

func TestSellProperty_RatioZeroCreditsNothing(t *testing.T) {
	cfg := WorldConfig{}
	cfg.applyDefaults()
	cfg.Economy.SaleValueRatio = 0
	w := newTestWorld(t, cfg, "")
	mustApply(t, w, protocol.NewBuyProperty(101, 1))
	res := mustApply(t, w, protocol.NewSellProperty(101))
	if *res.SaleValue != 0 || w.player().Funds != 200 {
		t.Fatalf("sale=%v funds=%v", *res.SaleValue, w.player().Funds)
	}
}

func TestUpgradeProperty_PrerequisiteAndTiming(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, "")
	start := w.clock().CurrentDate

	_, err := w.ApplyAction(protocol.NewUpgradeProperty(101, "Cozy"))
	wantCode(t, err, protocol.ErrNotOwned)

	mustApply(t, w, protocol.NewBuyProperty(101, 1))
	_, err = w.ApplyAction(protocol.NewUpgradeProperty(101, "Nope"))
	wantCode(t, err, protocol.ErrNotFound)

	res := mustApply(t, w, protocol.NewUpgradeProperty(101, "Cozy"))
	if res.Funds != 100 {
		t.Fatalf("funds=%v want 100", res.Funds)
	}
	if res.Upgrade == nil || res.Upgrade.ID != "c1" || res.Upgrade.Applied {
		t.Fatalf("unexpected upgrade: %+v", res.Upgrade)
	}
	if want := start.AddDate(0, 0, 5); !res.Upgrade.CompletionDate.Equal(want) {
		t.Fatalf("completion=%v want %v", res.Upgrade.CompletionDate, want)
	}

	// c2 needs c1 applied; a pending c1 does not count.
	_, err = w.ApplyAction(protocol.NewUpgradeProperty(101, "Cozy"))
	wantCode(t, err, protocol.ErrPrerequisiteUnmet)
	p := prop(t, w, 101)
	if p.UpgradeLevel != 0 || p.RentBoost != 0 {
		t.Fatalf("prerequisite failure changed level/boost: %d %v", p.UpgradeLevel, p.RentBoost)
	}

	for i := 0; i < 4; i++ {
		w.StepOnce()
		if prop(t, w, 101).UpgradeLevel != 0 {
			t.Fatalf("upgrade applied early on %v", w.clock().CurrentDate)
		}
	}
	w.StepOnce()
	p = prop(t, w, 101)
	if !w.clock().CurrentDate.Equal(start.AddDate(0, 0, 5)) {
		t.Fatalf("date=%v", w.clock().CurrentDate)
	}
	if p.UpgradeLevel != 1 || p.UpgradeRentBoost != 3 || p.RentBoost != 3 {
		t.Fatalf("upgrade not applied: level=%d boost=%v/%v", p.UpgradeLevel, p.UpgradeRentBoost, p.RentBoost)
	}

	_, err = w.ApplyAction(protocol.NewUpgradeProperty(101, "Cozy"))
	wantCode(t, err, protocol.ErrInsufficientFunds)

	w.player().Funds = 10000
	res = mustApply(t, w, protocol.NewUpgradeProperty(101, "Cozy"))
	if res.Upgrade.ID != "c2" || res.Upgrade.Prerequisite != "c1" {
		t.Fatalf("expected c2 after c1, got %+v", res.Upgrade)
	}
	_, err = w.ApplyAction(protocol.NewUpgradeProperty(101, "Cozy"))
	wantCode(t, err, protocol.ErrAlreadyMaxed)
}

func TestUpgradeScheduler_FIFOWithinOneTick(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, "")
	mustApply(t, w, protocol.NewBuyProperty(101, 1))
	p := prop(t, w, 101)
	due := w.clock().CurrentDate.AddDate(0, 0, 1)
	defs := p.UpgradePaths["Cozy"]
	first, second := defs[0], defs[1]
	first.CompletionDate, second.CompletionDate = due, due
	second.Prerequisite = first.ID
	p.Upgrades = append(p.Upgrades, first, second)

	w.StepOnce()
	p = prop(t, w, 101)
	if !p.Upgrades[0].Applied || !p.Upgrades[1].Applied {
		t.Fatalf("chain should resolve in one tick: %+v", p.Upgrades)
	}
	if p.UpgradeLevel != 2 || p.UpgradeRentBoost != 9 {
		t.Fatalf("level=%d boost=%v", p.UpgradeLevel, p.UpgradeRentBoost)
	}
}

func TestControlTime_InvalidSpeedKeepsMultiplier(t *testing.T) {
	w := newTestWorld(t, WorldConfig{MaxSpeedMultiplier: 50}, "")
	mustApply(t, w, protocol.NewSetSpeed(3))

	for _, v := range []float64{0, -1, math.NaN(), math.Inf(1), 51} {
		_, err := w.ApplyAction(protocol.NewSetSpeed(v))
		wantCode(t, err, protocol.ErrInvalidArgument)
		if got := w.clock().SpeedMultiplier; got != 3 {
			t.Fatalf("speed %v changed multiplier to %v", v, got)
		}
	}
	_, err := w.ApplyAction(protocol.NewControlTime(protocol.TimeSetSpeed))
	wantCode(t, err, protocol.ErrInvalidArgument)
	_, err = w.ApplyAction(protocol.NewControlTime("rewind"))
	wantCode(t, err, protocol.ErrInvalidArgument)
}

func TestControlTime_SpeedBoundedByMaxAdvance(t *testing.T) {
	w := newTestWorld(t, WorldConfig{MaxSpeedMultiplier: 1e9}, "")
	if w.cfg.MaxSpeedMultiplier != tuning.MaxDaysPerTick {
		t.Fatalf("max speed=%v want %v", w.cfg.MaxSpeedMultiplier, float64(tuning.MaxDaysPerTick))
	}
	_, err := w.ApplyAction(protocol.NewSetSpeed(1e9))
	wantCode(t, err, protocol.ErrInvalidArgument)

	mustApply(t, w, protocol.NewBuyProperty(101, 1))
	mustApply(t, w, protocol.NewSetSpeed(tuning.MaxDaysPerTick))
	start := w.clock().CurrentDate
	funds := w.player().Funds
	w.StepOnce()
	got := w.clock().CurrentDate
	if want := start.AddDate(0, 0, tuning.MaxDaysPerTick); !got.Equal(want) {
		t.Fatalf("date after max tick=%v want %v", got, want)
	}
	if w.clock().MonthsCrossed < 1000 || w.player().Funds <= funds {
		t.Fatalf("months=%d funds=%v", w.clock().MonthsCrossed, w.player().Funds)
	}
}

func TestAdvanceDays_FractionalAndLarge(t *testing.T) {
	start := time.Date(2023, 1, 20, 0, 0, 0, 0, time.UTC)
	if got := advanceDays(start, 1.5); !got.Equal(start.Add(36 * time.Hour)) {
		t.Fatalf("1.5 days: %v", got)
	}
	if got := advanceDays(start, 200000); got.Year() < 2500 {
		t.Fatalf("large advance went to %v", got)
	}
}

func TestControlTime_SetSpeedThenPause(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, "")
	start := w.clock().CurrentDate

	mustApply(t, w, protocol.NewSetSpeed(2))
	w.StepOnce()
	if got := w.clock().CurrentDate; !got.Equal(start.Add(48 * time.Hour)) {
		t.Fatalf("date after one tick at 2x=%v", got)
	}

	res := mustApply(t, w, protocol.NewControlTime(protocol.TimePause))
	if res.Time == nil || !res.Time.IsPaused {
		t.Fatalf("pause result: %+v", res.Time)
	}
	paused := w.clock().CurrentDate
	tick := w.CurrentTick()
	stepN(w, 3)
	if !w.clock().CurrentDate.Equal(paused) {
		t.Fatalf("date moved while paused: %v", w.clock().CurrentDate)
	}
	if w.CurrentTick() != tick+3 {
		t.Fatalf("ticks should still count while paused: %d", w.CurrentTick())
	}

	mustApply(t, w, protocol.NewControlTime(protocol.TimeStart))
	w.StepOnce()
	if got := w.clock().CurrentDate; !got.Equal(paused.Add(48 * time.Hour)) {
		t.Fatalf("date after start=%v", got)
	}
}

func TestApplyAction_RecordsForTickLog(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, "")
	tl := &memTickLog{}
	w.SetTickLogger(tl)

	mustApply(t, w, protocol.NewBuyProperty(101, 1))
	_, _ = w.ApplyAction(protocol.NewBuyProperty(101, 1))
	_, digest := w.StepOnce()
	w.StepOnce()

	if len(tl.entries) != 2 {
		t.Fatalf("entries=%d want 2", len(tl.entries))
	}
	e := tl.entries[0]
	if e.Tick != 0 || len(e.Actions) != 2 {
		t.Fatalf("first entry: %+v", e)
	}
	if e.Actions[0].Code != "" || e.Actions[1].Code != protocol.ErrAlreadyOwned {
		t.Fatalf("codes: %+v", e.Actions)
	}
	if e.Digest == "" || e.Digest != digest {
		t.Fatalf("digest=%q want %q", e.Digest, digest)
	}
	if len(tl.entries[1].Actions) != 0 {
		t.Fatalf("actions should be flushed after each tick")
	}
}

func TestAudit_FundsEvents(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, "2023-01-25")
	al := &memAudit{}
	w.SetAuditLogger(al)

	mustApply(t, w, protocol.NewBuyProperty(101, 1))
	mustApply(t, w, protocol.NewUpgradeProperty(101, "Cozy"))
	stepN(w, 7) // Jan 25 -> Feb 1, c1 completes on Jan 30
	mustApply(t, w, protocol.NewSellProperty(101))

	want := []string{AuditBuy, AuditUpgradePurchase, AuditUpgradeComplete, AuditRent, AuditSell}
	got := al.kinds()
	if len(got) != len(want) {
		t.Fatalf("audit kinds=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audit kinds=%v want %v", got, want)
		}
	}
	if al.entries[0].Amount != -800 || al.entries[0].Funds != 200 {
		t.Fatalf("buy audit: %+v", al.entries[0])
	}
}
