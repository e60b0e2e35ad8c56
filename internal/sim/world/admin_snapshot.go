package world

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoSnapshotSink       = errors.New("snapshot sink not configured")
	ErrSnapshotBackpressure = errors.New("snapshot sink backpressure")
)

type adminSnapshotReq struct {
	Resp chan SnapshotReceipt
}

// SnapshotReceipt says which tick an on-demand snapshot captured.
type SnapshotReceipt struct {
	Tick uint64
	Date time.Time
	Err  error
}

// RequestSnapshot asks the world loop to hand a snapshot to the sink at the
// end of the next tick. Safe to call from any goroutine.
func (w *World) RequestSnapshot(ctx context.Context) (SnapshotReceipt, error) {
	if w == nil || w.admin == nil {
		return SnapshotReceipt{}, ErrNoSnapshotSink
	}
	resp := make(chan SnapshotReceipt, 1)

	select {
	case w.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return SnapshotReceipt{}, ctx.Err()
	}

	select {
	case r := <-resp:
		return r, r.Err
	case <-ctx.Done():
		return SnapshotReceipt{}, ctx.Err()
	}
}

// handleAdminSnapshotRequests runs right after a step, so the snapshot
// describes the tick that just finished.
func (w *World) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	snapTick := uint64(0)
	if cur := w.tick.Load(); cur > 0 {
		snapTick = cur - 1
	}

	r := SnapshotReceipt{Tick: snapTick, Date: w.clock().CurrentDate}
	if w.snapshotSink == nil {
		r.Err = ErrNoSnapshotSink
	} else {
		select {
		case w.snapshotSink <- w.ExportSnapshot(snapTick):
		default:
			r.Err = ErrSnapshotBackpressure
		}
	}

	for _, req := range reqs {
		select {
		case req.Resp <- r:
		default:
		}
	}
}
