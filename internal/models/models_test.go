package models

import (
	"testing"

	"dialog-manager/internal/slots"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entity(slot, value string) Entity {
	return Entity{Type: "text", Value: value, PossibleSlot: &slots.Slot{Name: slot, SlotType: slots.TypeText}}
}

func TestMergeEntities_LastWriteWinsBySlotName(t *testing.T) {
	merged := MergeEntities([]Entity{entity("x", "1")}, []Entity{entity("x", "2")})

	require.Len(t, merged, 1)
	assert.Equal(t, "x", merged[0].SlotName())
	assert.Equal(t, "2", merged[0].Value)
}

func TestMergeEntities_KeepsFirstSeenOrder(t *testing.T) {
	existing := []Entity{entity("a", "1"), entity("b", "1")}
	incoming := []Entity{entity("c", "3"), entity("a", "9"), entity("c", "4")}

	merged := MergeEntities(existing, incoming)
	require.Len(t, merged, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{merged[0].SlotName(), merged[1].SlotName(), merged[2].SlotName()})
	assert.Equal(t, "9", merged[0].Value)
	assert.Equal(t, "4", merged[2].Value)
}

func TestMergeEntities_DoesNotAliasInputs(t *testing.T) {
	existing := []Entity{entity("a", "1")}
	merged := MergeEntities(existing, nil)
	merged[0].PossibleSlot.Name = "changed"
	assert.Equal(t, "a", existing[0].PossibleSlot.Name)
}

func TestEntity_SlotNameFallsBackToType(t *testing.T) {
	e := Entity{Type: "city", Value: "Paris"}
	assert.Equal(t, "city", e.SlotName())

	s := e.AsSlot()
	assert.Equal(t, "city", s.Name)
	require.NotNil(t, s.Value)
	assert.Equal(t, "Paris", *s.Value)
}

func TestIntent_PathHelpers(t *testing.T) {
	i := NewIntent("root.rma_qa.lc_advising", 0.8)

	assert.Equal(t, []string{"root", "rma_qa", "lc_advising"}, i.Path())
	assert.Equal(t, "root.rma_qa", i.Parent())
	assert.Equal(t, "lc_advising", i.Leaf())
	assert.Equal(t, 0.8, i.ConfidenceOr(0))
	assert.Equal(t, "", ParentOf(RootIntent))
	assert.True(t, IsDescendant(i.Name, "root.rma_qa"))
	assert.False(t, IsDescendant("root.rma_qaa", "root.rma_qa"))

	c := i.Clone()
	c.SetConfidence(0.1)
	assert.Equal(t, 0.8, i.ConfidenceOr(0))

	var none *Intent
	assert.Equal(t, 0.5, none.ConfidenceOr(0.5))
}
