package composition

import (
	"testing"

	"composition-resolver/internal/pkg/common"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier(DefaultRegistry())

	tests := []struct {
		label string
		want  string
	}{
		{"milling", "milling"},
		{"Freeze Drying", "freeze-drying"},
		{"FREEZE-DRYING", "freeze-drying"},
		{"Mixing of juices", "blending"},
		{"grinding", "milling"},
		{"coffee powder", "milling"},
		{"dehydration", "freeze-drying"},
		{"label printing", "printing"},
		{"baking", "cooking"},
		{"brewing", "fermentation"},
		{"bottling", "packaging"},
		{"welding", "assembly"},
		{"road transport", "transport"},
		{"teleportation", "blending"},
		{"", "blending"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.label))
		})
	}
}

func TestClassifier_EmptyRegistry(t *testing.T) {
	c := NewClassifier(NewRegistry("empty", nil))
	assert.Equal(t, DefaultProcessType, c.Classify("anything"))
	assert.Equal(t, DefaultProcessType, c.Classify(""))
}

func TestClassifier_BoostRequiresCategory(t *testing.T) {
	c := NewClassifier(NewRegistry("custom", []string{"cutting", "sewing"}))

	// 列舉中沒有 blending，混合字樣不加分，同分取第一個
	assert.Equal(t, "cutting", c.Classify("smoothie mixing"))
	assert.Equal(t, "sewing", c.Classify("Sewing"))
}

func TestClassifier_TieBreakByRegistryOrder(t *testing.T) {
	c := NewClassifier(NewRegistry("custom", []string{"heat treatment", "surface treatment"}))
	assert.Equal(t, "heat treatment", c.Classify("treatment"))

	c = NewClassifier(NewRegistry("custom", []string{"surface treatment", "heat treatment"}))
	assert.Equal(t, "surface treatment", c.Classify("treatment"))
}

func TestClassifier_Idempotent(t *testing.T) {
	c := NewClassifier(DefaultRegistry())
	labels := []string{"", "Mixing", "roasting beans", "ink", "freeze dried", "unknown thing", "Packaging"}
	for _, label := range labels {
		once := c.Classify(label)
		assert.True(t, c.Registry().Contains(once), once)
		assert.Equal(t, once, c.Classify(once), label)
	}
}

func TestClassifier_ClassifyTree(t *testing.T) {
	c := NewClassifier(DefaultRegistry())
	item := &common.Item{
		Name: "Cake",
		Process: &common.Process{
			Type: "",
			InputInstances: []common.Input{
				{Instance: common.Item{Name: "Chocolate", Process: &common.Process{Type: "roasting"}}},
				{Instance: common.Item{Name: "Flour", Process: &common.Process{Type: "Stone grinding"}}},
				{Instance: common.Item{Name: "Eggs"}},
			},
		},
	}

	c.ClassifyTree(item, "baking")

	assert.Equal(t, "cooking", item.Process.Type)
	assert.Equal(t, "cooking", item.Process.InputInstances[0].Instance.Process.Type)
	assert.Equal(t, "milling", item.Process.InputInstances[1].Instance.Process.Type)
	assert.Nil(t, item.Process.InputInstances[2].Instance.Process)

	before := *item.Process
	c.ClassifyTree(item, "baking")
	assert.Equal(t, before.Type, item.Process.Type)
}
