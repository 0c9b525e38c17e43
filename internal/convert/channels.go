package convert

import (
	"strings"

	"github.com/banshee-data/dataset.export/internal/scene"
)

// cameraChannels maps the channel names annotation tools commonly emit to
// the canonical camera channel set of the target schema.
var cameraChannels = map[string]string{
	"front":       "CAM_FRONT",
	"back":        "CAM_BACK",
	"front_left":  "CAM_FRONT_LEFT",
	"front_right": "CAM_FRONT_RIGHT",
	"back_left":   "CAM_BACK_LEFT",
	"back_right":  "CAM_BACK_RIGHT",
}

// CanonicalChannel resolves a calibrated channel name to the channel string
// recorded in the sensor table and used in payload filenames. Camera names
// are normalized onto the CAM_* set (case-insensitive); unrecognized cameras
// are upper-cased under a CAM_ prefix. Lidar names pass through unchanged.
func CanonicalChannel(name, modality string) string {
	if modality != scene.ModalityCamera {
		return name
	}
	if canonical, ok := cameraChannels[strings.ToLower(name)]; ok {
		return canonical
	}
	upper := strings.ToUpper(name)
	if strings.HasPrefix(upper, "CAM_") {
		return upper
	}
	return "CAM_" + upper
}
