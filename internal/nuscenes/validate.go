package nuscenes

import "fmt"

// Validate checks referential integrity and count invariants across a fully
// assembled table set. It is a pure function; callers treat a non-empty
// result as fatal, since a violation indicates a conversion logic error
// rather than a transient condition.
func Validate(ts *TableSet) []error {
	var errs []error

	// Tokens share a single flat namespace across all relations.
	owner := make(map[string]string, ts.RecordCount())
	claim := func(relation, token string) {
		if token == "" {
			errs = append(errs, fmt.Errorf("%s: record with empty token", relation))
			return
		}
		if prev, dup := owner[token]; dup {
			errs = append(errs, fmt.Errorf("duplicate token %s in %s and %s", token, prev, relation))
			return
		}
		owner[token] = relation
	}

	for _, r := range ts.Scenes {
		claim("scene", r.Token)
	}
	sampleTokens := make(map[string]bool, len(ts.Samples))
	for _, r := range ts.Samples {
		claim("sample", r.Token)
		sampleTokens[r.Token] = true
	}
	for _, r := range ts.SampleData {
		claim("sample_data", r.Token)
	}
	egoPoseTokens := make(map[string]bool, len(ts.EgoPoses))
	for _, r := range ts.EgoPoses {
		claim("ego_pose", r.Token)
		egoPoseTokens[r.Token] = true
	}
	sensorTokens := make(map[string]bool, len(ts.Sensors))
	for _, r := range ts.Sensors {
		claim("sensor", r.Token)
		sensorTokens[r.Token] = true
	}
	calibTokens := make(map[string]bool, len(ts.CalibratedSensors))
	for _, r := range ts.CalibratedSensors {
		claim("calibrated_sensor", r.Token)
		calibTokens[r.Token] = true
	}
	logTokens := make(map[string]bool, len(ts.Logs))
	for _, r := range ts.Logs {
		claim("log", r.Token)
		logTokens[r.Token] = true
	}
	categoryTokens := make(map[string]bool, len(ts.Categories))
	for _, r := range ts.Categories {
		claim("category", r.Token)
		categoryTokens[r.Token] = true
	}
	attributeTokens := make(map[string]bool, len(ts.Attributes))
	for _, r := range ts.Attributes {
		claim("attribute", r.Token)
		attributeTokens[r.Token] = true
	}
	visibilityTokens := make(map[string]bool, len(ts.Visibility))
	for _, r := range ts.Visibility {
		claim("visibility", r.Token)
		visibilityTokens[r.Token] = true
	}
	for _, r := range ts.Maps {
		claim("map", r.Token)
	}
	instanceTokens := make(map[string]bool, len(ts.Instances))
	for _, r := range ts.Instances {
		claim("instance", r.Token)
		instanceTokens[r.Token] = true
	}
	annByToken := make(map[string]SampleAnnotation, len(ts.SampleAnnotations))
	for _, r := range ts.SampleAnnotations {
		claim("sample_annotation", r.Token)
		annByToken[r.Token] = r
	}

	// scene: sample counts and chain endpoints
	samplesByScene := make(map[string]int, len(ts.Scenes))
	for _, s := range ts.Samples {
		samplesByScene[s.SceneToken]++
	}
	for _, sc := range ts.Scenes {
		if !logTokens[sc.LogToken] {
			errs = append(errs, fmt.Errorf("scene %s missing log %s", sc.Token, sc.LogToken))
		}
		if got := samplesByScene[sc.Token]; got != sc.NbrSamples {
			errs = append(errs, fmt.Errorf("scene %s nbr_samples %d but %d samples reference it", sc.Token, sc.NbrSamples, got))
		}
		if !sampleTokens[sc.FirstSampleToken] {
			errs = append(errs, fmt.Errorf("scene %s first_sample_token %s not found", sc.Token, sc.FirstSampleToken))
		}
		if !sampleTokens[sc.LastSampleToken] {
			errs = append(errs, fmt.Errorf("scene %s last_sample_token %s not found", sc.Token, sc.LastSampleToken))
		}
	}

	// sample: prev/next resolve within sample
	for _, s := range ts.Samples {
		if s.Prev != "" && !sampleTokens[s.Prev] {
			errs = append(errs, fmt.Errorf("sample %s prev %s not found", s.Token, s.Prev))
		}
		if s.Next != "" && !sampleTokens[s.Next] {
			errs = append(errs, fmt.Errorf("sample %s next %s not found", s.Token, s.Next))
		}
	}

	// sample_data: all foreign references resolve
	for _, sd := range ts.SampleData {
		if !sampleTokens[sd.SampleToken] {
			errs = append(errs, fmt.Errorf("sample_data %s missing sample %s", sd.Token, sd.SampleToken))
		}
		if !egoPoseTokens[sd.EgoPoseToken] {
			errs = append(errs, fmt.Errorf("sample_data %s missing ego_pose %s", sd.Token, sd.EgoPoseToken))
		}
		if !calibTokens[sd.CalibratedSensorToken] {
			errs = append(errs, fmt.Errorf("sample_data %s missing calibrated_sensor %s", sd.Token, sd.CalibratedSensorToken))
		}
	}

	// calibrated_sensor → sensor
	for _, cs := range ts.CalibratedSensors {
		if !sensorTokens[cs.SensorToken] {
			errs = append(errs, fmt.Errorf("calibrated_sensor %s missing sensor %s", cs.Token, cs.SensorToken))
		}
	}

	// map → log
	for _, m := range ts.Maps {
		for _, lt := range m.LogTokens {
			if !logTokens[lt] {
				errs = append(errs, fmt.Errorf("map %s missing log %s", m.Token, lt))
			}
		}
	}

	// instance: category, annotation counts, chain endpoints
	annsByInstance := make(map[string]int, len(ts.Instances))
	for _, a := range ts.SampleAnnotations {
		annsByInstance[a.InstanceToken]++
	}
	for _, in := range ts.Instances {
		if !categoryTokens[in.CategoryToken] {
			errs = append(errs, fmt.Errorf("instance %s missing category %s", in.Token, in.CategoryToken))
		}
		if got := annsByInstance[in.Token]; got != in.NbrAnnotations {
			errs = append(errs, fmt.Errorf("instance %s nbr_annotations %d but %d annotations reference it", in.Token, in.NbrAnnotations, got))
		}
		if in.NbrAnnotations > 0 {
			if _, ok := annByToken[in.FirstAnnotationToken]; !ok {
				errs = append(errs, fmt.Errorf("instance %s first_annotation_token %s not found", in.Token, in.FirstAnnotationToken))
			}
			if _, ok := annByToken[in.LastAnnotationToken]; !ok {
				errs = append(errs, fmt.Errorf("instance %s last_annotation_token %s not found", in.Token, in.LastAnnotationToken))
			}
		}
	}

	// sample_annotation: foreign references, and prev/next stay within the
	// same instance
	for _, a := range ts.SampleAnnotations {
		if !sampleTokens[a.SampleToken] {
			errs = append(errs, fmt.Errorf("sample_annotation %s missing sample %s", a.Token, a.SampleToken))
		}
		if !instanceTokens[a.InstanceToken] {
			errs = append(errs, fmt.Errorf("sample_annotation %s missing instance %s", a.Token, a.InstanceToken))
		}
		if !visibilityTokens[a.VisibilityToken] {
			errs = append(errs, fmt.Errorf("sample_annotation %s missing visibility %s", a.Token, a.VisibilityToken))
		}
		for _, at := range a.AttributeTokens {
			if !attributeTokens[at] {
				errs = append(errs, fmt.Errorf("sample_annotation %s missing attribute %s", a.Token, at))
			}
		}
		if a.Prev != "" {
			prev, ok := annByToken[a.Prev]
			if !ok {
				errs = append(errs, fmt.Errorf("sample_annotation %s prev %s not found", a.Token, a.Prev))
			} else if prev.InstanceToken != a.InstanceToken {
				errs = append(errs, fmt.Errorf("sample_annotation %s prev %s belongs to a different instance", a.Token, a.Prev))
			}
		}
		if a.Next != "" {
			next, ok := annByToken[a.Next]
			if !ok {
				errs = append(errs, fmt.Errorf("sample_annotation %s next %s not found", a.Token, a.Next))
			} else if next.InstanceToken != a.InstanceToken {
				errs = append(errs, fmt.Errorf("sample_annotation %s next %s belongs to a different instance", a.Token, a.Next))
			}
		}
	}

	return errs
}
