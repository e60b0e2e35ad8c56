package world

import (
	"math"
	"time"

	"citydev.io/internal/sim/entity"
)

// systemEconomy moves satisfaction and occupancy of owned properties toward
// their targets and, on a month edge, settles neighborhood values, rent boosts
// and rent.
func (w *World) systemEconomy(nowTick uint64, days float64) {
	if days <= 0 {
		return
	}
	w.smoothTenants(days)
	if gt := w.clock(); gt.NewMonth {
		w.updateNeighborhoodValues()
		w.updateNeighborhoodBoosts()
		w.creditRent(nowTick, gt.MonthsCrossed)
	}
}

// satisfactionTarget rises with upgrade level toward 1 with diminishing returns.
func (w *World) satisfactionTarget(level int) float64 {
	e := w.cfg.Economy
	return clamp01(1 - (1-e.BaseSatisfaction)*math.Exp(-e.SatisfactionPerLevel*float64(level)))
}

func (w *World) occupancyTarget(satisfaction float64) float64 {
	f := w.cfg.Economy.OccupancyFloor
	return clamp01(f + (1-f)*satisfaction)
}

func (w *World) smoothTenants(days float64) {
	alpha := 1 - math.Pow(1-w.cfg.Economy.SmoothingRate, days)
	alpha = clamp01(alpha)
	for _, e := range w.store.With(entity.KindProperty) {
		p, _ := e.Property()
		if !p.Owned {
			continue
		}
		sat := p.TenantSatisfaction
		sat = clamp01(sat + alpha*(w.satisfactionTarget(p.UpgradeLevel)-sat))
		occ := p.OccupancyRate
		occ = clamp01(occ + alpha*(w.occupancyTarget(sat)-occ))
		p.TenantSatisfaction = sat
		p.OccupancyRate = occ
	}
}

func (w *World) updateNeighborhoodValues() {
	for _, ne := range w.store.With(entity.KindNeighborhood) {
		n, _ := ne.Neighborhood()
		if len(n.PropertyIDs) == 0 {
			n.AveragePropertyValue = 0
			continue
		}
		total := 0.0
		for _, id := range n.PropertyIDs {
			if p := w.propertyByID(id); p != nil {
				total += p.Price
			}
		}
		n.AveragePropertyValue = roundCents(total / float64(len(n.PropertyIDs)))
	}
}

func (w *World) updateNeighborhoodBoosts() {
	for _, ne := range w.store.With(entity.KindNeighborhood) {
		n, _ := ne.Neighborhood()
		if len(n.PropertyIDs) == 0 {
			continue
		}
		upgraded := 0
		for _, id := range n.PropertyIDs {
			if p := w.propertyByID(id); p != nil && p.UpgradeLevel > 0 {
				upgraded++
			}
		}
		pct := float64(upgraded) * 100 / float64(len(n.PropertyIDs))
		boost := 0.0
		if pct >= n.RentBoostThreshold {
			boost = n.RentBoostPercent
		}
		for _, id := range n.PropertyIDs {
			if p := w.propertyByID(id); p != nil {
				p.NeighborhoodRentBoost = boost
				p.RecomputeRentBoost()
			}
		}
	}
}

// creditRent pays each owned property's rent for the months that just closed.
func (w *World) creditRent(nowTick uint64, months int) {
	if months <= 0 {
		return
	}
	gt := w.clock()
	closed := monthStart(gt.LastUpdated)
	player := w.player()
	for _, e := range w.store.With(entity.KindProperty) {
		p, _ := e.Property()
		if !p.Owned || p.PlayerID != w.playerID {
			continue
		}
		var rent float64
		if w.cfg.Economy.ProrateFirstMonth {
			rent = w.roundRent(proratedRent(p, closed, months))
		} else {
			rent = w.roundRent(p.EffectiveRent() * float64(months))
		}
		if rent == 0 {
			continue
		}
		player.Funds = roundCents(player.Funds + rent)
		w.audit(AuditEntry{
			Tick:       nowTick,
			Date:       gt.CurrentDate,
			Kind:       AuditRent,
			PlayerID:   int64(player.ID),
			PropertyID: int64(p.ID),
			Amount:     rent,
			Funds:      player.Funds,
		})
	}
}

// proratedRent is the rent for the months starting at first. Neither the
// purchase day nor an upgrade's completion day earns: base rent counts from
// the day after purchase and each upgrade's share from the day after it
// completed.
func proratedRent(p *entity.Property, first time.Time, months int) float64 {
	neighborhood := 1 + p.NeighborhoodRentBoost/100
	total := 0.0
	for i := 0; i < months; i++ {
		m := first.AddDate(0, i, 0)
		owned := activeFraction(m, p.PurchaseDate)
		share := owned * neighborhood
		for _, u := range p.Upgrades {
			if u.Applied {
				share += math.Min(activeFraction(m, u.CompletionDate), owned) * u.RentIncrease / 100
			}
		}
		total += p.BaseRent * p.OccupancyRate * share
	}
	return total
}

// activeFraction is the part of month m that follows since: all of it when
// since is earlier, the days after since's day when it falls inside m, and
// none when it is later.
func activeFraction(m, since time.Time) float64 {
	switch {
	case since.Before(m):
		return 1
	case !since.Before(m.AddDate(0, 1, 0)):
		return 0
	}
	dim := daysInMonth(m)
	return float64(dim-since.Day()) / float64(dim)
}

func (w *World) roundRent(x float64) float64 {
	if step := w.cfg.Economy.RentRoundTo; step > 0 {
		return math.Floor(x/step) * step
	}
	return roundCents(x)
}

func (w *World) propertyByID(id entity.ID) *entity.Property {
	e, err := w.store.Get(id)
	if err != nil {
		return nil
	}
	p, _ := e.Property()
	return p
}
