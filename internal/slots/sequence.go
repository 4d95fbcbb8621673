package slots

import "sort"

// CheckResult is the outcome of checking one target sequence against the
// slots that are present.
type CheckResult struct {
	MissedSlots   []string `json:"missed_slots"`
	MissingWeight float64  `json:"missing_weight"`
}

// MissingWeight ranks alternatives: fewer missing first, then the larger
// sequence, since its fractional term is smaller. It is only meaningful as a
// relative ordering.
func MissingWeight(missed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(missed) + float64(missed)/float64(total)
}

// SequenceChecker answers whether present slots satisfy a requirement and
// which slots are missing.
type SequenceChecker interface {
	Satisfied(real []string) bool
	MissedSlots(real []string) [][]string
	UnsortedMissedSlots(real []string) []CheckResult
}

// SingleSequenceChecker requires every slot of one target sequence.
type SingleSequenceChecker struct {
	target []string
}

func NewSingleSequenceChecker(target []string) *SingleSequenceChecker {
	return &SingleSequenceChecker{target: uniqueNames(target)}
}

// Target returns the required slot names.
func (c *SingleSequenceChecker) Target() []string {
	return append([]string(nil), c.target...)
}

// Check computes missed slots and their weight.
func (c *SingleSequenceChecker) Check(real []string) CheckResult {
	missed := NewNameSet(real...).Difference(c.target)
	return CheckResult{
		MissedSlots:   missed,
		MissingWeight: MissingWeight(len(missed), len(c.target)),
	}
}

// Satisfied is true when no target slot is missing. An empty target is
// always satisfied.
func (c *SingleSequenceChecker) Satisfied(real []string) bool {
	return len(c.Check(real).MissedSlots) == 0
}

// MissedSlots always returns exactly one entry: the target slots absent from real.
func (c *SingleSequenceChecker) MissedSlots(real []string) [][]string {
	return [][]string{c.Check(real).MissedSlots}
}

func (c *SingleSequenceChecker) UnsortedMissedSlots(real []string) []CheckResult {
	return []CheckResult{c.Check(real)}
}

// MultiSequenceChecker is satisfied when any one alternative is.
type MultiSequenceChecker struct {
	alternatives []*SingleSequenceChecker
}

func NewMultiSequenceChecker(alternatives [][]string) *MultiSequenceChecker {
	checkers := make([]*SingleSequenceChecker, len(alternatives))
	for i, alt := range alternatives {
		checkers[i] = NewSingleSequenceChecker(alt)
	}
	return &MultiSequenceChecker{alternatives: checkers}
}

// Satisfied reports whether any alternative is complete. With no
// alternatives nothing is required.
func (c *MultiSequenceChecker) Satisfied(real []string) bool {
	if len(c.alternatives) == 0 {
		return true
	}
	for _, alt := range c.alternatives {
		if alt.Satisfied(real) {
			return true
		}
	}
	return false
}

// UnsortedMissedSlots returns one result per alternative, in expression order.
func (c *MultiSequenceChecker) UnsortedMissedSlots(real []string) []CheckResult {
	results := make([]CheckResult, len(c.alternatives))
	for i, alt := range c.alternatives {
		results[i] = alt.Check(real)
	}
	return results
}

// MissedSlots returns each alternative's missing slots, cheapest to
// complete first. Equal weights keep expression order.
func (c *MultiSequenceChecker) MissedSlots(real []string) [][]string {
	results := c.UnsortedMissedSlots(real)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MissingWeight < results[j].MissingWeight
	})

	out := make([][]string, len(results))
	for i, r := range results {
		out[i] = r.MissedSlots
	}
	return out
}

var (
	_ SequenceChecker = (*SingleSequenceChecker)(nil)
	_ SequenceChecker = (*MultiSequenceChecker)(nil)
)
