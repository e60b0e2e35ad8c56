package world

import (
	"context"
	"sync/atomic"
	"time"

	"citydev.io/internal/protocol"
)

// Claim states of an actionReq. Exactly one of the loop (running) or the
// caller (abandoned) wins the transition out of pending.
const (
	reqPending int32 = iota
	reqRunning
	reqAbandoned
)

type actionReq struct {
	ctx   context.Context
	Act   protocol.Action
	Resp  chan actionResp
	claim *atomic.Int32
}

type actionResp struct {
	Result ActionResult
	Err    error
}

// Run drives the world until ctx ends or Stop is called. Either way the world
// counts as stopped afterwards, so pending callers are released.
func (w *World) Run(ctx context.Context) error {
	defer w.Stop()
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.actions:
			w.handleActionReq(req)
		case req := <-w.subscribe:
			w.handleSubscribe(req)
		case id := <-w.unsubscribe:
			w.handleUnsubscribe(id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case <-ticker.C:
			w.stepInternal()
			w.handleAdminSnapshotRequests(pendingAdmin)
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Do submits an action to the world loop and waits for its result. If ctx
// ends before the loop has claimed the request the caller gets E_BUSY and the
// action is never applied. Once claimed, Do waits for the outcome even past
// ctx, which is bounded by one action's work.
func (w *World) Do(ctx context.Context, a protocol.Action) (ActionResult, error) {
	resp := make(chan actionResp, 1)
	req := actionReq{ctx: ctx, Act: a, Resp: resp, claim: new(atomic.Int32)}

	select {
	case w.actions <- req:
	case <-ctx.Done():
		return ActionResult{}, busy(ctx)
	case <-w.stop:
		return ActionResult{}, protocol.Errorf(protocol.ErrBusy, "world %s stopped", w.cfg.ID)
	}

	select {
	case r := <-resp:
		return r.Result, r.Err
	case <-ctx.Done():
		if req.claim.CompareAndSwap(reqPending, reqAbandoned) {
			return ActionResult{}, busy(ctx)
		}
	case <-w.stop:
		if req.claim.CompareAndSwap(reqPending, reqAbandoned) {
			return ActionResult{}, protocol.Errorf(protocol.ErrBusy, "world %s stopped", w.cfg.ID)
		}
	}
	r := <-resp
	return r.Result, r.Err
}

func busy(ctx context.Context) error {
	return protocol.Errorf(protocol.ErrBusy, "world did not answer in time: %v", ctx.Err())
}

func (w *World) handleActionReq(req actionReq) {
	if req.claim != nil && !req.claim.CompareAndSwap(reqPending, reqRunning) {
		// Caller already gave up and was told E_BUSY.
		return
	}
	if req.ctx != nil && req.ctx.Err() != nil {
		req.Resp <- actionResp{Err: busy(req.ctx)}
		return
	}
	res, err := w.applyAction(req.Act)
	req.Resp <- actionResp{Result: res, Err: err}
}

// ApplyAction runs a synchronously. It must only be used while Run is not
// active (replay, tests).
func (w *World) ApplyAction(a protocol.Action) (ActionResult, error) {
	return w.applyAction(a)
}

// StepOnce advances the world by a single tick using the same ordering
// semantics as Run. Like ApplyAction it is for replays and tests.
func (w *World) StepOnce() (tick uint64, digest string) {
	tick = w.tick.Load()
	pub := w.stepInternal()
	return tick, pub.digest
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
