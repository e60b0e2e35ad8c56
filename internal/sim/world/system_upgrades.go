package world

import (
	"citydev.io/internal/sim/entity"
)

// systemUpgrades applies every pending upgrade whose completion date has been
// reached, in enqueue order per property.
func (w *World) systemUpgrades(nowTick uint64) {
	gt := w.clock()
	for _, e := range w.store.With(entity.KindProperty) {
		p, _ := e.Property()
		changed := false
		for i := range p.Upgrades {
			u := &p.Upgrades[i]
			if u.Applied || u.CompletionDate.After(gt.CurrentDate) {
				continue
			}
			if u.Prerequisite != "" && !p.UpgradeApplied(u.Prerequisite) {
				continue
			}
			u.Applied = true
			p.UpgradeLevel++
			p.UpgradeRentBoost += u.RentIncrease
			changed = true
			w.audit(AuditEntry{
				Tick:       nowTick,
				Date:       gt.CurrentDate,
				Kind:       AuditUpgradeComplete,
				PlayerID:   int64(p.PlayerID),
				PropertyID: int64(p.ID),
				UpgradeID:  u.ID,
				Funds:      w.player().Funds,
			})
		}
		if changed {
			p.RecomputeRentBoost()
		}
	}
}
