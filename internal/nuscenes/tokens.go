package nuscenes

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// TokenLen is the length of every generated identifier.
const TokenLen = 36

// Token derives the stable identifier for a semantic key: the first 16
// bytes of the key's SHA-256 digest rendered as a UUID string. The same key
// always yields the same token across processes and runs, which is what
// makes re-exporting an unchanged scene idempotent at the identifier level.
func Token(semanticKey string) string {
	sum := sha256.Sum256([]byte(semanticKey))
	u, _ := uuid.FromBytes(sum[:16])
	return u.String()
}

// Semantic keys follow a fixed relation-discriminator + natural-key scheme.
// Scene names scope every per-scene key, so two scenes with identical frame
// content still produce disjoint token sets.

func SceneToken(scene string) string { return Token("scene-" + scene) }

func LogToken(scene string) string { return Token("log-" + scene) }

func MapToken(scene string) string { return Token("map-" + scene) }

func SampleToken(scene string, timestampNs int64) string {
	return Token(fmt.Sprintf("sample-%s-%d", scene, timestampNs))
}

func EgoPoseToken(scene string, timestampNs int64) string {
	return Token(fmt.Sprintf("ego_pose-%s-%d", scene, timestampNs))
}

func SampleDataToken(scene string, timestampNs int64, channel string) string {
	return Token(fmt.Sprintf("sample_data-%s-%d-%s", scene, timestampNs, channel))
}

func AnnotationToken(scene string, timestampNs int64, objID string) string {
	return Token(fmt.Sprintf("annotation-%s-%d-%s", scene, timestampNs, objID))
}

func InstanceToken(scene, trackID string) string {
	return Token(fmt.Sprintf("instance-%s-%s", scene, trackID))
}

func SensorToken(channel string) string { return Token("sensor-" + channel) }

func CalibratedSensorToken(scene, channel string) string {
	return Token(fmt.Sprintf("calibrated_sensor-%s-%s", scene, channel))
}

func CategoryToken(name string) string { return Token("category-" + name) }

func AttributeToken(name string) string { return Token("attribute-" + name) }

func VisibilityToken(level string) string { return Token("visibility-" + level) }
