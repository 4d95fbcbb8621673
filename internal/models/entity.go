package models

import "dialog-manager/internal/slots"

// Entity is an extracted value, optionally bound to the slot it may fill.
type Entity struct {
	Type         string      `json:"type"`
	Value        string      `json:"value"`
	Confidence   *float64    `json:"confidence,omitempty"`
	PossibleSlot *slots.Slot `json:"possible_slot,omitempty"`
}

// SlotName is the merge key: the bound slot's name, else the entity type.
func (e Entity) SlotName() string {
	if e.PossibleSlot != nil && e.PossibleSlot.Name != "" {
		return e.PossibleSlot.Name
	}
	return e.Type
}

// AsSlot returns the bound slot carrying this entity's value.
func (e Entity) AsSlot() slots.Slot {
	base := slots.Slot{Name: e.SlotName(), SlotType: slots.TypeText}
	if e.PossibleSlot != nil {
		base = *e.PossibleSlot
	}
	return base.WithValue(e.Value, e.Confidence)
}

// Clone deep-copies the entity.
func (e Entity) Clone() Entity {
	out := e
	if e.Confidence != nil {
		c := *e.Confidence
		out.Confidence = &c
	}
	if e.PossibleSlot != nil {
		s := e.PossibleSlot.Clone()
		out.PossibleSlot = &s
	}
	return out
}

// MergeEntities folds incoming into existing by slot name. Later values win
// and keep the position the slot was first seen at.
func MergeEntities(existing, incoming []Entity) []Entity {
	out := make([]Entity, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	for _, list := range [][]Entity{existing, incoming} {
		for _, e := range list {
			key := e.SlotName()
			if i, ok := index[key]; ok {
				out[i] = e.Clone()
				continue
			}
			index[key] = len(out)
			out = append(out, e.Clone())
		}
	}
	return out
}
