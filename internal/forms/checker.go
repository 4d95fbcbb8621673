package forms

import "dialog-manager/internal/slots"

// SlotChecker answers whether the slots present satisfy a form and which
// slots to ask for, cheapest alternative first.
type SlotChecker struct {
	form    *Form
	real    []string
	checker slots.SequenceChecker
}

// NewSlotChecker builds the checker for form against the slot names already
// filled. Forms with an expression use every compiled clause as an
// alternative; the rest require all mandatory slots.
func NewSlotChecker(form *Form, real []string) (*SlotChecker, error) {
	c := &SlotChecker{form: form, real: append([]string(nil), real...)}

	if form.SlotExpression != "" {
		clauses, err := slots.Compile(form.SlotExpression)
		if err != nil {
			return nil, err
		}
		c.checker = slots.NewMultiSequenceChecker(clauses)
	} else {
		c.checker = slots.NewSingleSequenceChecker(form.RequiredSlotNames())
	}
	return c, nil
}

func (c *SlotChecker) SlotIsMissing() bool {
	return !c.checker.Satisfied(c.real)
}

// MissedSlots hydrates each ranked alternative into the form's slots.
func (c *SlotChecker) MissedSlots() [][]slots.Slot {
	names := c.checker.MissedSlots(c.real)
	out := make([][]slots.Slot, len(names))
	for i, alt := range names {
		hydrated := make([]slots.Slot, len(alt))
		for j, name := range alt {
			s, ok := c.form.Slot(name)
			if !ok {
				s = slots.Slot{Name: name, SlotType: slots.TypeText}
			}
			hydrated[j] = s
		}
		out[i] = hydrated
	}
	return out
}

func (c *SlotChecker) UnsortedMissedSlots() []slots.CheckResult {
	return c.checker.UnsortedMissedSlots(c.real)
}
