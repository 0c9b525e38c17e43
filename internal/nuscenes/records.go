package nuscenes

import (
	"fmt"

	"github.com/banshee-data/dataset.export/internal/geom"
)

// Quaternion norms outside this window fail record construction.
const (
	minQuatNorm = 0.999
	maxQuatNorm = 1.001
)

func checkToken(relation, field, token string) error {
	if len(token) != TokenLen {
		return fmt.Errorf("%s: %s must be %d characters, got %d", relation, field, TokenLen, len(token))
	}
	return nil
}

func checkTranslation(relation string, t []float64) error {
	if len(t) != 3 {
		return fmt.Errorf("%s: translation must have 3 elements, got %d", relation, len(t))
	}
	return nil
}

func checkRotation(relation string, rot []float64) error {
	q, err := geom.QuatFromSlice(rot)
	if err != nil {
		return fmt.Errorf("%s: %w", relation, err)
	}
	if n := q.Norm(); n < minQuatNorm || n > maxQuatNorm {
		return fmt.Errorf("%s: rotation norm %.6f outside [%v, %v]", relation, n, minQuatNorm, maxQuatNorm)
	}
	return nil
}

// Scene is one continuous recording; it owns an ordered run of samples.
type Scene struct {
	Token            string `json:"token"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	LogToken         string `json:"log_token"`
	NbrSamples       int    `json:"nbr_samples"`
	FirstSampleToken string `json:"first_sample_token"`
	LastSampleToken  string `json:"last_sample_token"`
}

func NewScene(token, name, description, logToken string, nbrSamples int, firstSample, lastSample string) (Scene, error) {
	if err := checkToken("scene", "token", token); err != nil {
		return Scene{}, err
	}
	if err := checkToken("scene", "log_token", logToken); err != nil {
		return Scene{}, err
	}
	if nbrSamples <= 0 {
		return Scene{}, fmt.Errorf("scene: nbr_samples must be positive, got %d", nbrSamples)
	}
	if err := checkToken("scene", "first_sample_token", firstSample); err != nil {
		return Scene{}, err
	}
	if err := checkToken("scene", "last_sample_token", lastSample); err != nil {
		return Scene{}, err
	}
	return Scene{
		Token:            token,
		Name:             name,
		Description:      description,
		LogToken:         logToken,
		NbrSamples:       nbrSamples,
		FirstSampleToken: firstSample,
		LastSampleToken:  lastSample,
	}, nil
}

// Sample is one keyframe of a scene. Prev and Next are filled in after the
// frame loop, once it is known which neighbours were actually emitted.
type Sample struct {
	Token      string `json:"token"`
	Timestamp  int64  `json:"timestamp"`
	Prev       string `json:"prev"`
	Next       string `json:"next"`
	SceneToken string `json:"scene_token"`
}

func NewSample(token string, timestampUs int64, sceneToken string) (Sample, error) {
	if err := checkToken("sample", "token", token); err != nil {
		return Sample{}, err
	}
	if err := checkToken("sample", "scene_token", sceneToken); err != nil {
		return Sample{}, err
	}
	return Sample{Token: token, Timestamp: timestampUs, SceneToken: sceneToken}, nil
}

// SampleData is one sensor payload of a sample. Prev and Next are linked
// per channel after packaging.
type SampleData struct {
	Token                 string `json:"token"`
	SampleToken           string `json:"sample_token"`
	EgoPoseToken          string `json:"ego_pose_token"`
	CalibratedSensorToken string `json:"calibrated_sensor_token"`
	Timestamp             int64  `json:"timestamp"`
	Fileformat            string `json:"fileformat"`
	IsKeyFrame            bool   `json:"is_key_frame"`
	Filename              string `json:"filename"`
	Prev                  string `json:"prev"`
	Next                  string `json:"next"`
	Height                int    `json:"height,omitempty"`
	Width                 int    `json:"width,omitempty"`
}

func NewSampleData(token, sampleToken, egoPoseToken, calibratedSensorToken string, timestampUs int64, fileformat string, isKeyFrame bool, filename string) (SampleData, error) {
	if err := checkToken("sample_data", "token", token); err != nil {
		return SampleData{}, err
	}
	if err := checkToken("sample_data", "sample_token", sampleToken); err != nil {
		return SampleData{}, err
	}
	if err := checkToken("sample_data", "ego_pose_token", egoPoseToken); err != nil {
		return SampleData{}, err
	}
	if err := checkToken("sample_data", "calibrated_sensor_token", calibratedSensorToken); err != nil {
		return SampleData{}, err
	}
	if filename == "" {
		return SampleData{}, fmt.Errorf("sample_data: filename must not be empty")
	}
	return SampleData{
		Token:                 token,
		SampleToken:           sampleToken,
		EgoPoseToken:          egoPoseToken,
		CalibratedSensorToken: calibratedSensorToken,
		Timestamp:             timestampUs,
		Fileformat:            fileformat,
		IsKeyFrame:            isKeyFrame,
		Filename:              filename,
	}, nil
}

// EgoPose is the platform pose at one timestamp in the global frame.
type EgoPose struct {
	Token       string    `json:"token"`
	Timestamp   int64     `json:"timestamp"`
	Rotation    []float64 `json:"rotation"`
	Translation []float64 `json:"translation"`
}

func NewEgoPose(token string, timestampUs int64, rotation, translation []float64) (EgoPose, error) {
	if err := checkToken("ego_pose", "token", token); err != nil {
		return EgoPose{}, err
	}
	if err := checkRotation("ego_pose", rotation); err != nil {
		return EgoPose{}, err
	}
	if err := checkTranslation("ego_pose", translation); err != nil {
		return EgoPose{}, err
	}
	return EgoPose{Token: token, Timestamp: timestampUs, Rotation: rotation, Translation: translation}, nil
}

// Sensor is one physical sensor channel.
type Sensor struct {
	Token    string `json:"token"`
	Channel  string `json:"channel"`
	Modality string `json:"modality"`
}

func NewSensor(token, channel, modality string) (Sensor, error) {
	if err := checkToken("sensor", "token", token); err != nil {
		return Sensor{}, err
	}
	if channel == "" {
		return Sensor{}, fmt.Errorf("sensor: channel must not be empty")
	}
	if modality != "lidar" && modality != "camera" {
		return Sensor{}, fmt.Errorf("sensor: unsupported modality %q", modality)
	}
	return Sensor{Token: token, Channel: channel, Modality: modality}, nil
}

// CalibratedSensor is a sensor's mounting transform, plus intrinsics for
// cameras.
type CalibratedSensor struct {
	Token           string      `json:"token"`
	SensorToken     string      `json:"sensor_token"`
	Translation     []float64   `json:"translation"`
	Rotation        []float64   `json:"rotation"`
	CameraIntrinsic [][]float64 `json:"camera_intrinsic"`
}

func NewCalibratedSensor(token, sensorToken string, translation, rotation []float64, cameraIntrinsic [][]float64) (CalibratedSensor, error) {
	if err := checkToken("calibrated_sensor", "token", token); err != nil {
		return CalibratedSensor{}, err
	}
	if err := checkToken("calibrated_sensor", "sensor_token", sensorToken); err != nil {
		return CalibratedSensor{}, err
	}
	if err := checkTranslation("calibrated_sensor", translation); err != nil {
		return CalibratedSensor{}, err
	}
	if err := checkRotation("calibrated_sensor", rotation); err != nil {
		return CalibratedSensor{}, err
	}
	if cameraIntrinsic != nil {
		if len(cameraIntrinsic) != 3 {
			return CalibratedSensor{}, fmt.Errorf("calibrated_sensor: camera_intrinsic must have 3 rows, got %d", len(cameraIntrinsic))
		}
		for i, row := range cameraIntrinsic {
			if len(row) != 3 {
				return CalibratedSensor{}, fmt.Errorf("calibrated_sensor: camera_intrinsic row %d must have 3 columns, got %d", i, len(row))
			}
		}
	}
	return CalibratedSensor{
		Token:           token,
		SensorToken:     sensorToken,
		Translation:     translation,
		Rotation:        rotation,
		CameraIntrinsic: cameraIntrinsic,
	}, nil
}

// Log describes the recording session a scene came from.
type Log struct {
	Token        string `json:"token"`
	Logfile      string `json:"logfile"`
	Vehicle      string `json:"vehicle"`
	DateCaptured string `json:"date_captured"`
	Location     string `json:"location"`
}

func NewLog(token, logfile, vehicle, dateCaptured, location string) (Log, error) {
	if err := checkToken("log", "token", token); err != nil {
		return Log{}, err
	}
	return Log{Token: token, Logfile: logfile, Vehicle: vehicle, DateCaptured: dateCaptured, Location: location}, nil
}

// Category is one entry of the static object taxonomy.
type Category struct {
	Token       string `json:"token"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func NewCategory(token, name, description string) (Category, error) {
	if err := checkToken("category", "token", token); err != nil {
		return Category{}, err
	}
	if name == "" {
		return Category{}, fmt.Errorf("category: name must not be empty")
	}
	return Category{Token: token, Name: name, Description: description}, nil
}

// Attribute is a state an annotated object can carry (parked, standing, ...).
type Attribute struct {
	Token       string `json:"token"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func NewAttribute(token, name, description string) (Attribute, error) {
	if err := checkToken("attribute", "token", token); err != nil {
		return Attribute{}, err
	}
	if name == "" {
		return Attribute{}, fmt.Errorf("attribute: name must not be empty")
	}
	return Attribute{Token: token, Name: name, Description: description}, nil
}

// Visibility is one of the fixed occlusion buckets.
type Visibility struct {
	Token       string `json:"token"`
	Level       string `json:"level"`
	Description string `json:"description"`
}

func NewVisibility(token, level, description string) (Visibility, error) {
	if err := checkToken("visibility", "token", token); err != nil {
		return Visibility{}, err
	}
	if level == "" {
		return Visibility{}, fmt.Errorf("visibility: level must not be empty")
	}
	return Visibility{Token: token, Level: level, Description: description}, nil
}

// Map ties a semantic map file to the logs recorded on it.
type Map struct {
	Token     string   `json:"token"`
	LogTokens []string `json:"log_tokens"`
	Category  string   `json:"category"`
	Filename  string   `json:"filename"`
}

func NewMap(token string, logTokens []string, category, filename string) (Map, error) {
	if err := checkToken("map", "token", token); err != nil {
		return Map{}, err
	}
	for i, lt := range logTokens {
		if err := checkToken("map", fmt.Sprintf("log_tokens[%d]", i), lt); err != nil {
			return Map{}, err
		}
	}
	return Map{Token: token, LogTokens: logTokens, Category: category, Filename: filename}, nil
}

// Instance groups every annotation of one physical object across a scene.
type Instance struct {
	Token                string `json:"token"`
	CategoryToken        string `json:"category_token"`
	NbrAnnotations       int    `json:"nbr_annotations"`
	FirstAnnotationToken string `json:"first_annotation_token"`
	LastAnnotationToken  string `json:"last_annotation_token"`
}

func NewInstance(token, categoryToken string, nbrAnnotations int, firstAnnotation, lastAnnotation string) (Instance, error) {
	if err := checkToken("instance", "token", token); err != nil {
		return Instance{}, err
	}
	if err := checkToken("instance", "category_token", categoryToken); err != nil {
		return Instance{}, err
	}
	if nbrAnnotations < 0 {
		return Instance{}, fmt.Errorf("instance: nbr_annotations must not be negative, got %d", nbrAnnotations)
	}
	if nbrAnnotations > 0 {
		if err := checkToken("instance", "first_annotation_token", firstAnnotation); err != nil {
			return Instance{}, err
		}
		if err := checkToken("instance", "last_annotation_token", lastAnnotation); err != nil {
			return Instance{}, err
		}
	}
	return Instance{
		Token:                token,
		CategoryToken:        categoryToken,
		NbrAnnotations:       nbrAnnotations,
		FirstAnnotationToken: firstAnnotation,
		LastAnnotationToken:  lastAnnotation,
	}, nil
}

// SampleAnnotation is one object box in one sample, in global coordinates.
// Size is (width, length, height), the emitted schema order. InstanceToken,
// Prev and Next are owned by the instance tracker and set before finalize.
type SampleAnnotation struct {
	Token           string    `json:"token"`
	SampleToken     string    `json:"sample_token"`
	InstanceToken   string    `json:"instance_token"`
	VisibilityToken string    `json:"visibility_token"`
	AttributeTokens []string  `json:"attribute_tokens"`
	Translation     []float64 `json:"translation"`
	Size            []float64 `json:"size"`
	Rotation        []float64 `json:"rotation"`
	Prev            string    `json:"prev"`
	Next            string    `json:"next"`
	NumLidarPts     int       `json:"num_lidar_pts"`
	NumRadarPts     int       `json:"num_radar_pts"`
}

func NewSampleAnnotation(token, sampleToken, visibilityToken string, attributeTokens []string, translation, size, rotation []float64, numLidarPts, numRadarPts int) (SampleAnnotation, error) {
	if err := checkToken("sample_annotation", "token", token); err != nil {
		return SampleAnnotation{}, err
	}
	if err := checkToken("sample_annotation", "sample_token", sampleToken); err != nil {
		return SampleAnnotation{}, err
	}
	if err := checkToken("sample_annotation", "visibility_token", visibilityToken); err != nil {
		return SampleAnnotation{}, err
	}
	for i, at := range attributeTokens {
		if err := checkToken("sample_annotation", fmt.Sprintf("attribute_tokens[%d]", i), at); err != nil {
			return SampleAnnotation{}, err
		}
	}
	if err := checkTranslation("sample_annotation", translation); err != nil {
		return SampleAnnotation{}, err
	}
	if len(size) != 3 {
		return SampleAnnotation{}, fmt.Errorf("sample_annotation: size must have 3 elements, got %d", len(size))
	}
	for i, s := range size {
		if s <= 0 {
			return SampleAnnotation{}, fmt.Errorf("sample_annotation: size[%d] must be positive, got %v", i, s)
		}
	}
	if err := checkRotation("sample_annotation", rotation); err != nil {
		return SampleAnnotation{}, err
	}
	if numLidarPts < 0 || numRadarPts < 0 {
		return SampleAnnotation{}, fmt.Errorf("sample_annotation: point counts must not be negative")
	}
	return SampleAnnotation{
		Token:           token,
		SampleToken:     sampleToken,
		VisibilityToken: visibilityToken,
		AttributeTokens: attributeTokens,
		Translation:     translation,
		Size:            size,
		Rotation:        rotation,
		NumLidarPts:     numLidarPts,
		NumRadarPts:     numRadarPts,
	}, nil
}
