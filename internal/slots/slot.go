// Package slots holds the slot model and the slot-filling decision core:
// the boolean slot expression compiler and the sequence checkers that rank
// which missing slots to ask for next.
package slots

// SlotType is the kind of value a slot collects.
type SlotType string

const (
	TypeText          SlotType = "text"
	TypeCategorical   SlotType = "categorical"
	TypeNumeric       SlotType = "numeric"
	TypeBoolean       SlotType = "boolean"
	TypeNumericOrText SlotType = "numeric_or_text"
)

// Valid reports whether t is one of the known slot types.
func (t SlotType) Valid() bool {
	switch t {
	case TypeText, TypeCategorical, TypeNumeric, TypeBoolean, TypeNumericOrText:
		return true
	}
	return false
}

// Slot is a named datum a form wants filled. Two slots are the same slot
// when their names match, whatever their value or confidence.
type Slot struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	SlotType    SlotType `json:"slot_type" yaml:"slot_type"`
	Options     []string `json:"options,omitempty" yaml:"options,omitempty"`
	Value       *string  `json:"value,omitempty" yaml:"-"`
	Confidence  *float64 `json:"confidence,omitempty" yaml:"-"`
	Optional    bool     `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Equal compares slots by name.
func (s Slot) Equal(other Slot) bool {
	return s.Name == other.Name
}

// Filled reports whether the slot carries a value.
func (s Slot) Filled() bool {
	return s.Value != nil
}

// Mandatory reports whether the slot must be present when a form has no
// slot expression. Boolean slots never block satisfaction.
func (s Slot) Mandatory() bool {
	return !s.Optional && s.SlotType != TypeBoolean
}

// WithValue returns a copy of s holding value and confidence.
func (s Slot) WithValue(value string, confidence *float64) Slot {
	v := value
	s.Value = &v
	if confidence != nil {
		c := *confidence
		s.Confidence = &c
	} else {
		s.Confidence = nil
	}
	return s
}

// Clone deep-copies the slot.
func (s Slot) Clone() Slot {
	out := s
	if s.Value != nil {
		v := *s.Value
		out.Value = &v
	}
	if s.Confidence != nil {
		c := *s.Confidence
		out.Confidence = &c
	}
	out.Options = append([]string(nil), s.Options...)
	return out
}

// Names returns slot names in order.
func Names(list []Slot) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Name
	}
	return out
}

// NameSet is a set of slot names.
type NameSet map[string]struct{}

func NewNameSet(names ...string) NameSet {
	set := make(NameSet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Difference returns the names of target absent from s, in target order.
func (s NameSet) Difference(target []string) []string {
	missed := make([]string, 0, len(target))
	for _, name := range target {
		if !s.Has(name) {
			missed = append(missed, name)
		}
	}
	return missed
}

func uniqueNames(names []string) []string {
	seen := make(NameSet, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen.Has(n) {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
