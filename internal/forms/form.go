// Package forms maps leaf intents to their slot schema and answers whether
// the slots collected so far satisfy a form.
package forms

import (
	"fmt"
	"strings"

	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/slots"
)

// Form is the slot schema and action binding of one leaf intent. When
// SlotExpression is set it alone decides satisfaction; otherwise every
// mandatory slot is required.
type Form struct {
	Intent         string       `json:"intent" yaml:"intent"`
	Slots          []slots.Slot `json:"slots" yaml:"slots"`
	Action         string       `json:"action" yaml:"action"`
	SlotExpression string       `json:"slot_expression,omitempty" yaml:"slot_expression,omitempty"`
}

// Validate rejects forms that cannot be used: duplicate or untyped slots, a
// malformed expression or one naming undeclared slots.
func (f *Form) Validate() error {
	if strings.TrimSpace(f.Intent) == "" {
		return apperrors.NewFormInvalidError(f.Intent, "intent is required")
	}
	if strings.TrimSpace(f.Action) == "" {
		return apperrors.NewFormInvalidError(f.Intent, "action is required")
	}

	declared := slots.NewNameSet()
	for i, s := range f.Slots {
		if strings.TrimSpace(s.Name) == "" {
			return apperrors.NewFormInvalidError(f.Intent, fmt.Sprintf("slot %d has no name", i))
		}
		if declared.Has(s.Name) {
			return apperrors.NewFormInvalidError(f.Intent, fmt.Sprintf("duplicate slot %q", s.Name))
		}
		if !s.SlotType.Valid() {
			return apperrors.NewFormInvalidError(f.Intent, fmt.Sprintf("slot %q has unknown type %q", s.Name, s.SlotType))
		}
		declared[s.Name] = struct{}{}
	}

	if f.SlotExpression == "" {
		return nil
	}
	clauses, err := slots.Compile(f.SlotExpression)
	if err != nil {
		if std, ok := apperrors.AsStandardError(err); ok {
			std.WithMetadata("intent", f.Intent)
		}
		return err
	}
	for _, atom := range slots.Atoms(clauses) {
		if !declared.Has(atom) {
			return apperrors.NewFormSlotUndefinedError(f.Intent, atom)
		}
	}
	return nil
}

// RequiredSlotNames returns the non-optional, non-boolean slots in declaration order.
func (f *Form) RequiredSlotNames() []string {
	var names []string
	for _, s := range f.Slots {
		if s.Mandatory() {
			names = append(names, s.Name)
		}
	}
	return names
}

// Slot looks a declared slot up by name.
func (f *Form) Slot(name string) (slots.Slot, bool) {
	for _, s := range f.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return slots.Slot{}, false
}

// Clone deep-copies the form so callers may fill slot values.
func (f *Form) Clone() *Form {
	out := *f
	out.Slots = make([]slots.Slot, len(f.Slots))
	copy(out.Slots, f.Slots)
	return &out
}
