package nuscenes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapCategory(t *testing.T) {
	tax := Standard()

	assert.Equal(t, "vehicle.car", tax.MapCategory("car"))
	assert.Equal(t, "vehicle.car", tax.MapCategory("Car"), "lookup is case-insensitive")
	assert.Equal(t, "vehicle.car", tax.MapCategory("van"))
	assert.Equal(t, "human.pedestrian.adult", tax.MapCategory("pedestrian"))
	assert.Equal(t, "movable_object.pushable_pullable", tax.MapCategory("unknown"))
	assert.Equal(t, "movable_object.pushable_pullable", tax.MapCategory("never_seen_before"))
}

func TestMappingTargetsExistInCategoryTable(t *testing.T) {
	tax := Standard()
	known := make(map[string]bool, len(tax.Categories))
	for _, c := range tax.Categories {
		known[c] = true
	}
	for objType, category := range tax.categoryByType {
		assert.Truef(t, known[category], "object type %q maps to unlisted category %q", objType, category)
	}
	assert.True(t, known[fallbackCategory])
}

func TestDefaultAttribute(t *testing.T) {
	tax := Standard()

	attr, ok := tax.DefaultAttribute("vehicle.car")
	assert.True(t, ok)
	assert.Equal(t, "vehicle.stopped", attr)

	attr, ok = tax.DefaultAttribute("vehicle.bicycle")
	assert.True(t, ok)
	assert.Equal(t, "cycle.without_rider", attr)

	_, ok = tax.DefaultAttribute("animal")
	assert.False(t, ok, "static categories carry no attributes")
}

func TestDefaultAttributesExistInAttributeTable(t *testing.T) {
	tax := Standard()
	known := make(map[string]bool, len(tax.Attributes))
	for _, a := range tax.Attributes {
		known[a] = true
	}
	for category, attr := range tax.defaultAttribute {
		assert.Truef(t, known[attr], "category %q defaults to unlisted attribute %q", category, attr)
	}
}

func TestSizeWithin(t *testing.T) {
	tax := Standard()

	assert.True(t, tax.SizeWithin("vehicle.car", [3]float64{4.5, 1.8, 1.5}))
	assert.False(t, tax.SizeWithin("vehicle.car", [3]float64{10, 1.8, 1.5}), "too long for a car")
	assert.False(t, tax.SizeWithin("vehicle.car", [3]float64{4.5, 1.8, 0.5}), "too flat for a car")
	assert.True(t, tax.SizeWithin("movable_object.debris", [3]float64{50, 50, 50}), "unconstrained categories always pass")
}

func TestVisibilityLevels(t *testing.T) {
	tax := Standard()
	assert.Len(t, tax.VisibilityLevels, 4)
	assert.Equal(t, DefaultVisibilityLevel, tax.VisibilityLevels[len(tax.VisibilityLevels)-1])
}
