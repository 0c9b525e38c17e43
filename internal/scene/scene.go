// Package scene models the annotated multi-sensor scene document the
// exporter consumes: ordered frames, per-channel payload locators, ego
// poses, cuboid annotations, and sensor calibration.
package scene

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/banshee-data/dataset.export/internal/fsutil"
	"github.com/banshee-data/dataset.export/internal/geom"
	"github.com/banshee-data/dataset.export/internal/security"
)

// Sensor modalities recognized in calibration entries.
const (
	ModalityLidar  = "lidar"
	ModalityCamera = "camera"
)

// Scene is one capture session: a named, timestamp-ordered frame sequence
// plus the calibration of every sensor channel that appears in it.
type Scene struct {
	Name        string                 `json:"name"`
	MainChannel string                 `json:"main_channel"`
	Calibration map[string]Calibration `json:"calibration"`
	Frames      []Frame                `json:"frames"`
}

// Frame is a single synchronized capture across channels. Payload locators
// are opaque to this package; the storage fetcher resolves them (local path,
// http(s) URL, or cos:// reference).
type Frame struct {
	TimestampNs int64             `json:"timestamp_ns"`
	Lidar       map[string]string `json:"lidar"`
	Cameras     map[string]string `json:"cameras,omitempty"`
	EgoPose     *EgoPose          `json:"ego_pose,omitempty"`
	Annotations []Annotation      `json:"annotations,omitempty"`
}

// EgoPose is the vehicle pose in the global frame at capture time.
// Rotation is a unit quaternion in scalar-first order [w,x,y,z].
type EgoPose struct {
	Translation   [3]float64 `json:"translation"`
	Rotation      [4]float64 `json:"rotation"`
	ParentFrameID string     `json:"parent_frame_id,omitempty"`
	ChildFrameID  string     `json:"child_frame_id,omitempty"`
}

// Annotation is one labeled cuboid in a frame. ObjID is the track id that
// is stable for the same physical object across frames.
type Annotation struct {
	ObjID   string `json:"obj_id"`
	ObjType string `json:"obj_type"`
	NumPts  int    `json:"num_pts,omitempty"`
	PSR     PSR    `json:"psr"`
}

// PSR is the position/scale/rotation form annotation tools emit. Position
// is in the ego/sensor frame; scale is x=length, y=width, z=height.
type PSR struct {
	Position Vector   `json:"position"`
	Scale    Vector   `json:"scale"`
	Rotation Rotation `json:"rotation"`
}

// Vector is a 3d value with named components.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotation is a quaternion with named components, vector-first as the
// annotation tools serialize it.
type Rotation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Calibration locates one sensor channel on the vehicle. Rotation is
// scalar-first [w,x,y,z]. Camera entries carry a 3x3 intrinsic matrix and
// optional distortion/ignore-area metadata.
type Calibration struct {
	Modality    string       `json:"modality"`
	Translation [3]float64   `json:"translation"`
	Rotation    [4]float64   `json:"rotation"`
	Intrinsic   [][]float64  `json:"intrinsic,omitempty"`
	Distortion  []float64    `json:"distortion,omitempty"`
	IgnoreAreas []IgnoreArea `json:"ignore_areas,omitempty"`
}

// IgnoreArea is an image region excluded from labeling, in pixels.
type IgnoreArea struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Options selects and filters what a conversion run exports.
type Options struct {
	// ObjectTypes is an allow-list of annotation types; empty means all.
	ObjectTypes []string

	// MinPoints excludes annotations whose lidar point count is zero or
	// below the threshold; zero disables the filter.
	MinPoints int

	// FrameStep exports every Nth frame; values below 1 mean every frame.
	FrameStep int

	// MaxFrames truncates the selection after N frames; zero means all.
	MaxFrames int

	// ParallelFetch bounds the payload fetch worker pool.
	ParallelFetch int

	// Archive zips the output root after a successful run.
	Archive bool

	// Report writes report.html beside the dataset.
	Report bool
}

// Load reads and validates a scene document.
func Load(fsys fsutil.FileSystem, path string) (*Scene, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene document: %w", err)
	}

	var s Scene
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scene document: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scene document: %w", err)
	}

	return &s, nil
}

// Validate checks the structural requirements a conversion run depends on.
// Scene and channel names end up in payload filenames, so they must pass the
// filename sanitizer unchanged.
func (s *Scene) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scene name is empty")
	}
	if security.SanitizeFilename(s.Name) != s.Name {
		return fmt.Errorf("scene name %q contains characters unsafe for filenames", s.Name)
	}
	if s.MainChannel == "" {
		return fmt.Errorf("main channel is empty")
	}
	for name := range s.Calibration {
		if security.SanitizeFilename(name) != name {
			return fmt.Errorf("channel name %q contains characters unsafe for filenames", name)
		}
	}
	if len(s.Frames) == 0 {
		return fmt.Errorf("scene has no frames")
	}
	for i := 1; i < len(s.Frames); i++ {
		if s.Frames[i].TimestampNs <= s.Frames[i-1].TimestampNs {
			return fmt.Errorf("frame timestamps not strictly increasing at index %d (%d after %d)",
				i, s.Frames[i].TimestampNs, s.Frames[i-1].TimestampNs)
		}
	}
	return nil
}

// SortedChannels returns the calibrated channel names in a stable order.
func (s *Scene) SortedChannels() []string {
	channels := make([]string, 0, len(s.Calibration))
	for name := range s.Calibration {
		channels = append(channels, name)
	}
	sort.Strings(channels)
	return channels
}

// SelectFrames applies the stride and then the max-frame truncation.
func (o Options) SelectFrames(frames []Frame) []Frame {
	step := o.FrameStep
	if step < 1 {
		step = 1
	}

	selected := make([]Frame, 0, (len(frames)+step-1)/step)
	for i := 0; i < len(frames); i += step {
		selected = append(selected, frames[i])
	}

	if o.MaxFrames > 0 && len(selected) > o.MaxFrames {
		selected = selected[:o.MaxFrames]
	}
	return selected
}

// AllowsType reports whether the annotation type passes the allow-list.
func (o Options) AllowsType(objType string) bool {
	if len(o.ObjectTypes) == 0 {
		return true
	}
	for _, t := range o.ObjectTypes {
		if t == objType {
			return true
		}
	}
	return false
}

// EnoughPoints reports whether a point count passes the min-points filter.
// With the filter enabled, unset counts (zero) are excluded.
func (o Options) EnoughPoints(numPts int) bool {
	if o.MinPoints <= 0 {
		return true
	}
	return numPts > 0 && numPts >= o.MinPoints
}

// Pose converts the ego pose to a geom.Pose. A nil pose is the identity:
// frames without odometry stay in the local frame.
func (e *EgoPose) Pose() geom.Pose {
	if e == nil {
		return geom.IdentityPose()
	}
	return geom.Pose{
		Translation: e.Translation,
		Rotation:    geom.Quat{W: e.Rotation[0], X: e.Rotation[1], Y: e.Rotation[2], Z: e.Rotation[3]},
	}
}

// Geom converts the annotation cuboid to the composer's form.
func (p PSR) Geom() geom.PSR {
	return geom.PSR{
		Position: [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		Size:     [3]float64{p.Scale.X, p.Scale.Y, p.Scale.Z},
		Rotation: geom.Quat{W: p.Rotation.W, X: p.Rotation.X, Y: p.Rotation.Y, Z: p.Rotation.Z},
	}
}
