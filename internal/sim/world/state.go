package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"citydev.io/internal/protocol"
	"citydev.io/internal/sim/entity"
)

// State is the published, versioned view of every entity. It is always a
// deep copy taken at the end of a tick or an action.
type State struct {
	SchemaVersion int                       `json:"SchemaVersion"`
	Tick          uint64                    `json:"Tick"`
	Entities      map[string]*entity.Entity `json:"Entities"`
	Systems       []SystemInfo              `json:"Systems"`
}

type SystemInfo struct {
	Name  string `json:"Name"`
	Order int    `json:"Order"`
}

// Systems in the order a tick runs them.
var systems = []SystemInfo{
	{Name: "TimeSystem", Order: 1},
	{Name: "UpgradeScheduler", Order: 2},
	{Name: "EconomicSystem", Order: 3},
}

type published struct {
	state  *State
	json   []byte
	digest string
}

func (w *World) buildState() *State {
	st := &State{
		SchemaVersion: protocol.SchemaVersion,
		Tick:          w.tick.Load(),
		Entities:      make(map[string]*entity.Entity, w.store.Len()),
		Systems:       append([]SystemInfo(nil), systems...),
	}
	for _, e := range w.store.All() {
		st.Entities[strconv.FormatInt(int64(e.ID), 10)] = e.Clone()
	}
	return st
}

// publish swaps in a fresh copy of the state and returns it. encoding/json
// sorts map keys, so the bytes (and the digest over them) are canonical.
func (w *World) publish() *published {
	st := w.buildState()
	b, err := json.Marshal(st)
	if err != nil {
		// Only reachable if a component stops being marshalable.
		w.logf("world %s: marshal state: %v", w.cfg.ID, err)
		b = nil
	}
	sum := sha256.Sum256(b)
	p := &published{state: st, json: b, digest: hex.EncodeToString(sum[:])}
	w.published.Store(p)
	w.storeMetrics()
	return p
}

// State returns the latest published state. Callers must treat it as read-only.
func (w *World) State() *State {
	p := w.published.Load()
	if p == nil {
		return nil
	}
	return p.state
}

// StateJSON returns the encoded form of State.
func (w *World) StateJSON() []byte {
	p := w.published.Load()
	if p == nil {
		return nil
	}
	return p.json
}

// StateDigest is the sha256 of StateJSON.
func (w *World) StateDigest() string {
	p := w.published.Load()
	if p == nil {
		return ""
	}
	return p.digest
}
