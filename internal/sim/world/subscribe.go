package world

import (
	"context"
	"errors"
)

var ErrWorldStopped = errors.New("world stopped")

type subscribeReq struct {
	Out  chan []byte
	Resp chan uint64
}

// Subscribe registers out to receive the encoded State after every tick.
// The current state is delivered immediately. Slow readers lose older
// frames, never the newest.
func (w *World) Subscribe(ctx context.Context, out chan []byte) (uint64, error) {
	resp := make(chan uint64, 1)
	select {
	case w.subscribe <- subscribeReq{Out: out, Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-w.stop:
		return 0, ErrWorldStopped
	}
	select {
	case id := <-resp:
		return id, nil
	case <-ctx.Done():
		// The loop may still register us; make sure it is undone.
		go func() {
			select {
			case id := <-resp:
				w.Unsubscribe(id)
			case <-w.stop:
			}
		}()
		return 0, ctx.Err()
	case <-w.stop:
		return 0, ErrWorldStopped
	}
}

func (w *World) Unsubscribe(id uint64) {
	select {
	case w.unsubscribe <- id:
	case <-w.stop:
	}
}

func (w *World) handleSubscribe(req subscribeReq) {
	w.nextSubID++
	id := w.nextSubID
	w.subscribers[id] = req.Out
	if b := w.StateJSON(); b != nil {
		sendLatest(req.Out, b)
	}
	req.Resp <- id
	w.storeMetrics()
}

func (w *World) handleUnsubscribe(id uint64) {
	if _, ok := w.subscribers[id]; !ok {
		return
	}
	delete(w.subscribers, id)
	w.storeMetrics()
}
