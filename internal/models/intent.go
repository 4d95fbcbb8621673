package models

import "strings"

// RootIntent is the implicit root of every intent tree.
const RootIntent = "root"

// Intent is a node of the intent tree named by its dotted path,
// e.g. root.billing.refund.
type Intent struct {
	Name        string   `json:"name" yaml:"name"`
	Confidence  *float64 `json:"confidence,omitempty" yaml:"-"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Disabled    bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// NewIntent builds an intent with a confidence score.
func NewIntent(name string, confidence float64) *Intent {
	c := confidence
	return &Intent{Name: name, Confidence: &c}
}

// Path splits the dotted name into its segments.
func (i *Intent) Path() []string {
	return strings.Split(i.Name, ".")
}

// Parent returns the dotted name of the parent node, or "" for the root.
func (i *Intent) Parent() string {
	return ParentOf(i.Name)
}

// Leaf returns the last segment of the dotted name.
func (i *Intent) Leaf() string {
	idx := strings.LastIndex(i.Name, ".")
	return i.Name[idx+1:]
}

// ConfidenceOr returns the confidence or def when unset.
func (i *Intent) ConfidenceOr(def float64) float64 {
	if i == nil || i.Confidence == nil {
		return def
	}
	return *i.Confidence
}

// SetConfidence replaces the confidence score.
func (i *Intent) SetConfidence(c float64) {
	i.Confidence = &c
}

// Clone deep-copies the intent.
func (i *Intent) Clone() *Intent {
	if i == nil {
		return nil
	}
	out := *i
	if i.Confidence != nil {
		c := *i.Confidence
		out.Confidence = &c
	}
	return &out
}

// ParentOf returns the dotted parent of name, or "" when name has none.
func ParentOf(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return name[:idx]
}

// IsDescendant reports whether name lies strictly below ancestor.
func IsDescendant(name, ancestor string) bool {
	return strings.HasPrefix(name, ancestor+".")
}
