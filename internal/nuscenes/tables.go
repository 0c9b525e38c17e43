package nuscenes

// TableSet aggregates the 13 relations of one export run. Slices keep
// insertion order, which is also the canonical save order.
type TableSet struct {
	Scenes            []Scene
	Samples           []Sample
	SampleData        []SampleData
	EgoPoses          []EgoPose
	Sensors           []Sensor
	CalibratedSensors []CalibratedSensor
	Logs              []Log
	Categories        []Category
	Attributes        []Attribute
	Visibility        []Visibility
	Maps              []Map
	Instances         []Instance
	SampleAnnotations []SampleAnnotation
}

// TableFile pairs a relation's canonical filename with its records.
type TableFile struct {
	Name    string
	Records any
}

// Files returns the relations in their canonical write order, one JSON
// array per file.
func (t *TableSet) Files() []TableFile {
	return []TableFile{
		{"scene.json", t.Scenes},
		{"sample.json", t.Samples},
		{"sample_data.json", t.SampleData},
		{"ego_pose.json", t.EgoPoses},
		{"sensor.json", t.Sensors},
		{"calibrated_sensor.json", t.CalibratedSensors},
		{"log.json", t.Logs},
		{"category.json", t.Categories},
		{"attribute.json", t.Attributes},
		{"visibility.json", t.Visibility},
		{"map.json", t.Maps},
		{"instance.json", t.Instances},
		{"sample_annotation.json", t.SampleAnnotations},
	}
}

// RecordCount returns the total number of records across all relations.
func (t *TableSet) RecordCount() int {
	return len(t.Scenes) + len(t.Samples) + len(t.SampleData) + len(t.EgoPoses) +
		len(t.Sensors) + len(t.CalibratedSensors) + len(t.Logs) + len(t.Categories) +
		len(t.Attributes) + len(t.Visibility) + len(t.Maps) + len(t.Instances) +
		len(t.SampleAnnotations)
}
