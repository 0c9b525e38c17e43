package nuscenes

import "strings"

// Taxonomy holds the static category, attribute and visibility definitions
// of the target schema plus the source object-type mapping onto them. It is
// built once and passed into the converter; nothing mutates it after that.
type Taxonomy struct {
	Categories       []string
	Attributes       []string
	VisibilityLevels []string

	categoryByType   map[string]string
	defaultAttribute map[string]string
	sizeConstraints  map[string]SizeRange
}

// SizeRange bounds plausible object dimensions in (length, width, height)
// meters for one category.
type SizeRange struct {
	Min [3]float64
	Max [3]float64
}

// fallbackCategory absorbs object types with no mapping entry.
const fallbackCategory = "movable_object.pushable_pullable"

// DefaultVisibilityLevel is assumed when the source carries no per-object
// visibility, which it currently never does.
const DefaultVisibilityLevel = "v80-100"

// Standard returns the taxonomy of the nuScenes v1.0 schema.
func Standard() *Taxonomy {
	return &Taxonomy{
		Categories: []string{
			"human.pedestrian.adult",
			"human.pedestrian.child",
			"human.pedestrian.wheelchair",
			"human.pedestrian.stroller",
			"human.pedestrian.personal_mobility",
			"human.pedestrian.police_officer",
			"human.pedestrian.construction_worker",
			"animal",
			"vehicle.rider",
			"vehicle.bicycle",
			"vehicle.bus.bendy",
			"vehicle.bus.rigid",
			"vehicle.car",
			"vehicle.construction",
			"vehicle.emergency.ambulance",
			"vehicle.emergency.police",
			"vehicle.motorcycle",
			"vehicle.trailer",
			"vehicle.truck",
			"movable_object.barrier",
			"movable_object.trafficcone",
			"movable_object.pushable_pullable",
			"movable_object.debris",
			"static_object.bicycle_rack",
		},
		Attributes: []string{
			"vehicle.moving",
			"vehicle.stopped",
			"vehicle.parked",
			"cycle.with_rider",
			"cycle.without_rider",
			"pedestrian.sitting_lying_down",
			"pedestrian.standing",
			"pedestrian.moving",
		},
		VisibilityLevels: []string{"v0-40", "v40-60", "v60-80", "v80-100"},
		categoryByType: map[string]string{
			"car":        "vehicle.car",
			"van":        "vehicle.car",
			"bus":        "vehicle.bus.rigid",
			"truck":      "vehicle.truck",
			"trailer":    "vehicle.trailer",
			"motorcycle": "vehicle.motorcycle",

			"pedestrian": "human.pedestrian.adult",
			"person":     "human.pedestrian.adult",
			"child":      "human.pedestrian.child",
			"police":     "human.pedestrian.police_officer",
			"worker":     "human.pedestrian.construction_worker",

			"rider":         "vehicle.rider",
			"bicycle":       "vehicle.bicycle",
			"tricycle":      "vehicle.bicycle",
			"bicycle_group": "vehicle.bicycle",

			"animal": "animal",
			"dog":    "animal",
			"cat":    "animal",

			"barrier":      "movable_object.barrier",
			"traffic_cone": "movable_object.trafficcone",
			"cone":         "movable_object.trafficcone",
			"debris":       "movable_object.debris",

			"bicycle_rack": "static_object.bicycle_rack",

			"unknown": fallbackCategory,
		},
		defaultAttribute: map[string]string{
			"vehicle.car":                          "vehicle.stopped",
			"vehicle.bus.rigid":                    "vehicle.stopped",
			"vehicle.truck":                        "vehicle.stopped",
			"vehicle.trailer":                      "vehicle.stopped",
			"vehicle.motorcycle":                   "vehicle.stopped",
			"vehicle.bicycle":                      "cycle.without_rider",
			"human.pedestrian.adult":               "pedestrian.standing",
			"human.pedestrian.child":               "pedestrian.standing",
			"human.pedestrian.police_officer":      "pedestrian.standing",
			"human.pedestrian.construction_worker": "pedestrian.standing",
		},
		sizeConstraints: map[string]SizeRange{
			"vehicle.car":            {Min: [3]float64{3.0, 1.5, 1.0}, Max: [3]float64{6.0, 2.5, 3.0}},
			"vehicle.bus.rigid":      {Min: [3]float64{8.0, 2.0, 2.5}, Max: [3]float64{15.0, 3.0, 4.0}},
			"vehicle.truck":          {Min: [3]float64{4.0, 2.0, 2.0}, Max: [3]float64{20.0, 3.5, 4.5}},
			"vehicle.trailer":        {Min: [3]float64{6.0, 2.0, 2.0}, Max: [3]float64{15.0, 3.0, 4.0}},
			"vehicle.motorcycle":     {Min: [3]float64{1.5, 0.5, 1.0}, Max: [3]float64{3.0, 1.0, 2.0}},
			"vehicle.bicycle":        {Min: [3]float64{1.2, 0.3, 0.8}, Max: [3]float64{2.2, 0.8, 1.5}},
			"human.pedestrian.adult": {Min: [3]float64{0.3, 0.3, 1.5}, Max: [3]float64{0.8, 0.8, 2.0}},
			"human.pedestrian.child": {Min: [3]float64{0.2, 0.2, 0.8}, Max: [3]float64{0.5, 0.5, 1.5}},
			"animal":                 {Min: [3]float64{0.2, 0.2, 0.2}, Max: [3]float64{2.0, 1.5, 2.0}},
		},
	}
}

// MapCategory resolves a source object type (case-insensitive) to a schema
// category. Unmapped types land in the pushable_pullable catch-all, so every
// annotation resolves to a category that exists in the static table.
func (t *Taxonomy) MapCategory(objType string) string {
	if c, ok := t.categoryByType[strings.ToLower(objType)]; ok {
		return c
	}
	return fallbackCategory
}

// DefaultAttribute returns the attribute recorded for a category when the
// source provides none. Categories without a default get no attributes.
func (t *Taxonomy) DefaultAttribute(category string) (string, bool) {
	a, ok := t.defaultAttribute[category]
	return a, ok
}

// SizeWithin reports whether an object's (length, width, height) size is
// plausible for its category. Categories without constraints always pass.
func (t *Taxonomy) SizeWithin(category string, sizeLWH [3]float64) bool {
	r, ok := t.sizeConstraints[category]
	if !ok {
		return true
	}
	for i := 0; i < 3; i++ {
		if sizeLWH[i] < r.Min[i] || sizeLWH[i] > r.Max[i] {
			return false
		}
	}
	return true
}
