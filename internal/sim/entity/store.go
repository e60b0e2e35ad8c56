package entity

import (
	"errors"
	"fmt"
	"sort"
)

var ErrNotFound = errors.New("entity not found")

// Store holds entities by id. It is not safe for concurrent use; the world
// loop owns it and readers get Clone()d copies.
type Store struct {
	byID   map[ID]*Entity
	nextID ID
}

func NewStore() *Store {
	return &Store{byID: map[ID]*Entity{}}
}

func (s *Store) Get(id ID) (*Entity, error) {
	e, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return e, nil
}

func (s *Store) Upsert(e *Entity) {
	if e == nil {
		return
	}
	s.byID[e.ID] = e
	if e.ID >= s.nextID {
		s.nextID = e.ID + 1
	}
}

// All returns entities ordered by id.
func (s *Store) All() []*Entity {
	out := make([]*Entity, 0, len(s.byID))
	for _, e := range s.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Len() int { return len(s.byID) }

// NextID returns an id that has never been used by this store.
func (s *Store) NextID() ID {
	id := s.nextID
	s.nextID++
	return id
}

// PeekNextID returns what NextID would return without consuming it.
func (s *Store) PeekNextID() ID { return s.nextID }

// Reserve makes sure ids below id are never handed out by NextID.
func (s *Store) Reserve(id ID) {
	if id > s.nextID {
		s.nextID = id
	}
}

// Singleton returns the only entity carrying a component of kind k.
func (s *Store) Singleton(k ComponentKind) (*Entity, error) {
	var found *Entity
	for _, e := range s.byID {
		if !e.Has(k) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("more than one %s entity (%d, %d)", k, found.ID, e.ID)
		}
		found = e
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no %s entity", ErrNotFound, k)
	}
	return found, nil
}

// With returns entities carrying kind k, ordered by id.
func (s *Store) With(k ComponentKind) []*Entity {
	var out []*Entity
	for _, e := range s.All() {
		if e.Has(k) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) Clone() *Store {
	out := &Store{byID: make(map[ID]*Entity, len(s.byID)), nextID: s.nextID}
	for id, e := range s.byID {
		out.byID[id] = e.Clone()
	}
	return out
}
