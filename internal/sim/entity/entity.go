// Package entity holds the entity/component data model and the entity store.
//
// Entities carry no behavior. Components are a closed set of variants keyed by
// ComponentKind; systems and actions in package world operate on them.
package entity

import (
	"encoding/json"
	"fmt"
)

type ID int64

// EntityKind is a coarse tag for what an entity represents.
type EntityKind string

const (
	EntityClock        EntityKind = "clock"
	EntityPlayer       EntityKind = "player"
	EntityProperty     EntityKind = "property"
	EntityNeighborhood EntityKind = "neighborhood"
)

type Entity struct {
	ID         ID                          `json:"ID"`
	Kind       EntityKind                  `json:"Kind"`
	Components map[ComponentKind]Component `json:"Components"`
}

func New(id ID, kind EntityKind, comps ...Component) *Entity {
	e := &Entity{ID: id, Kind: kind, Components: make(map[ComponentKind]Component, len(comps))}
	for _, c := range comps {
		e.Set(c)
	}
	return e
}

// Set attaches c, replacing any component of the same kind.
func (e *Entity) Set(c Component) {
	if c == nil {
		return
	}
	if e.Components == nil {
		e.Components = map[ComponentKind]Component{}
	}
	e.Components[c.Kind()] = c
}

func (e *Entity) Has(k ComponentKind) bool {
	if e == nil {
		return false
	}
	_, ok := e.Components[k]
	return ok
}

func (e *Entity) HasGameTime() bool     { return e.Has(KindGameTime) }
func (e *Entity) HasPlayer() bool       { return e.Has(KindPlayer) }
func (e *Entity) HasProperty() bool     { return e.Has(KindProperty) }
func (e *Entity) HasNeighborhood() bool { return e.Has(KindNeighborhood) }

func (e *Entity) GameTime() (*GameTime, bool) {
	if e == nil {
		return nil, false
	}
	c, ok := e.Components[KindGameTime].(*GameTime)
	return c, ok
}

func (e *Entity) Player() (*Player, bool) {
	if e == nil {
		return nil, false
	}
	c, ok := e.Components[KindPlayer].(*Player)
	return c, ok
}

func (e *Entity) Property() (*Property, bool) {
	if e == nil {
		return nil, false
	}
	c, ok := e.Components[KindProperty].(*Property)
	return c, ok
}

func (e *Entity) Neighborhood() (*Neighborhood, bool) {
	if e == nil {
		return nil, false
	}
	c, ok := e.Components[KindNeighborhood].(*Neighborhood)
	return c, ok
}

// Clone returns a deep copy.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := &Entity{ID: e.ID, Kind: e.Kind, Components: make(map[ComponentKind]Component, len(e.Components))}
	for k, c := range e.Components {
		out.Components[k] = c.clone()
	}
	return out
}

func (e *Entity) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID         ID                                `json:"ID"`
		Kind       EntityKind                        `json:"Kind"`
		Components map[ComponentKind]json.RawMessage `json:"Components"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.ID = raw.ID
	e.Kind = raw.Kind
	e.Components = make(map[ComponentKind]Component, len(raw.Components))
	for k, msg := range raw.Components {
		var c Component
		switch k {
		case KindGameTime:
			c = &GameTime{}
		case KindPlayer:
			c = &Player{}
		case KindProperty:
			c = &Property{}
		case KindNeighborhood:
			c = &Neighborhood{}
		default:
			return fmt.Errorf("entity %d: unknown component kind %q", raw.ID, k)
		}
		if err := json.Unmarshal(msg, c); err != nil {
			return fmt.Errorf("entity %d: %s: %w", raw.ID, k, err)
		}
		e.Components[k] = c
	}
	return nil
}
