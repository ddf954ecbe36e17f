// Package catalogue holds the items candidates are drawn from, loads them from
// a manifest and computes missing descriptors off the request path.
package catalogue

import (
	"strings"
	"sync"

	"github.com/skinmatch/platform/internal/descriptor"
	apperrors "github.com/skinmatch/platform/internal/errors"
)

// Slot is an equipment slot. The set is open; these are the common ones.
type Slot string

const (
	SlotHeadgear Slot = "headgear"
	SlotCape     Slot = "cape"
	SlotShield   Slot = "shield"
	SlotPet      Slot = "pet"
)

// DefaultSlots are searched when a query names none.
var DefaultSlots = []Slot{SlotHeadgear, SlotCape, SlotShield, SlotPet}

// ParseSlot normalizes case and whitespace. Empty names are rejected.
func ParseSlot(s string) (Slot, error) {
	slot := Slot(strings.ToLower(strings.TrimSpace(s)))
	if slot == "" {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "slot is empty")
	}
	return slot, nil
}

// Item is one catalogue entry.
type Item struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Slot       Slot                  `json:"slot"`
	Descriptor descriptor.Descriptor `json:"descriptor"`
}

// Store is read by retrieval and written by loaders.
type Store interface {
	// Put inserts or replaces by ID. Replacing keeps the original position.
	Put(item Item) error
	Get(id string) (Item, bool)
	// Items returns a snapshot of one slot in insertion order.
	Items(slot Slot) []Item
	All() []Item
	Slots() []Slot
	Counts() map[Slot]int
	Len() int
}

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	items  []Item
	byID   map[string]int
	bySlot map[Slot][]int
	slots  []Slot
}

// NewStore creates an empty store.
func NewStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]int),
		bySlot: make(map[Slot][]int),
	}
}

// Put inserts or replaces an item. A replacement may not move slots.
func (s *MemoryStore) Put(item Item) error {
	if item.ID == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "item has no id")
	}
	if item.Slot == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "item has no slot").WithMetadata("id", item.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.byID[item.ID]; ok {
		if s.items[i].Slot != item.Slot {
			return apperrors.Newf(apperrors.CodeInvalidArgument, "item %s cannot move from %s to %s", item.ID, s.items[i].Slot, item.Slot)
		}
		s.items[i] = item
		return nil
	}

	s.byID[item.ID] = len(s.items)
	if _, ok := s.bySlot[item.Slot]; !ok {
		s.slots = append(s.slots, item.Slot)
	}
	s.bySlot[item.Slot] = append(s.bySlot[item.Slot], len(s.items))
	s.items = append(s.items, item)
	return nil
}

// Get returns an item by ID.
func (s *MemoryStore) Get(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return Item{}, false
	}
	return s.items[i], true
}

// Items returns a copy of the items in slot.
func (s *MemoryStore) Items(slot Slot) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.bySlot[slot]
	out := make([]Item, len(idx))
	for j, i := range idx {
		out[j] = s.items[i]
	}
	return out
}

// All returns a copy of every item in insertion order.
func (s *MemoryStore) All() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Slots returns the slots in first-seen order.
func (s *MemoryStore) Slots() []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Slot, len(s.slots))
	copy(out, s.slots)
	return out
}

// Counts returns the number of items per slot.
func (s *MemoryStore) Counts() map[Slot]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Slot]int, len(s.bySlot))
	for slot, idx := range s.bySlot {
		out[slot] = len(idx)
	}
	return out
}

// Len returns the number of items.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
