package world

import (
	"time"
)

func (w *World) stepInternal() *published {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Time -> upgrades -> economy. A paused clock makes the whole step a no-op
	// on simulated state; only the tick counter moves.
	days := w.systemTime()
	if days > 0 {
		w.systemUpgrades(nowTick)
		w.systemEconomy(nowTick, days)
	}
	if err := w.checkInvariants(); err != nil {
		w.invariantViolations++
		w.logf("world %s: invariant violated at tick %d: %v", w.cfg.ID, nowTick, err)
	}

	w.lastStepMS = float64(time.Since(stepStart).Microseconds()) / 1000.0
	w.tick.Add(1)
	pub := w.publish()

	gt := w.clock()
	if w.tickLogger != nil {
		entry := TickLogEntry{
			Tick:    nowTick,
			Date:    gt.CurrentDate,
			Paused:  days == 0,
			Actions: w.pendingRecorded,
			Digest:  pub.digest,
		}
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.logf("world %s: tick log: %v", w.cfg.ID, err)
		}
	}
	w.pendingRecorded = nil

	for _, out := range w.subscribers {
		sendLatest(out, pub.json)
	}

	// Snapshot every N ticks starting after tick 0, and on every year rollover
	// so the archive sees the closing state of each year.
	if w.snapshotSink != nil {
		yearEnd := days > 0 && gt.LastUpdated.Year() != gt.CurrentDate.Year()
		every := uint64(w.cfg.SnapshotEveryTicks)
		if yearEnd || (nowTick != 0 && every > 0 && nowTick%every == 0) {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}
	return pub
}
