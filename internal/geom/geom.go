// Package geom provides the rigid-body math used to project object poses
// from an ego or sensor-local frame into the scene-global frame.
package geom

import (
	"fmt"

	"gonum.org/v1/gonum/num/quat"
)

// Quat is a rotation quaternion in scalar-first (w, x, y, z) order, the
// order used throughout the exported tables.
type Quat struct {
	W, X, Y, Z float64
}

// Identity returns the identity rotation.
func Identity() Quat { return Quat{W: 1} }

// QuatFromSlice builds a quaternion from a scalar-first 4-element slice.
func QuatFromSlice(s []float64) (Quat, error) {
	if len(s) != 4 {
		return Quat{}, fmt.Errorf("quaternion needs 4 elements, got %d", len(s))
	}
	return Quat{W: s[0], X: s[1], Y: s[2], Z: s[3]}, nil
}

// Slice returns the quaternion as a scalar-first 4-element slice.
func (q Quat) Slice() []float64 { return []float64{q.W, q.X, q.Y, q.Z} }

// Norm returns the Euclidean norm of the quaternion. A well-formed
// rotation has norm 1 within tolerance.
func (q Quat) Norm() float64 { return quat.Abs(q.number()) }

func (q Quat) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n quat.Number) Quat {
	return Quat{W: n.Real, X: n.Imag, Y: n.Jmag, Z: n.Kmag}
}

// Mul returns the Hamilton product a*b, the rotation that applies b first
// and then a.
func Mul(a, b Quat) Quat {
	return fromNumber(quat.Mul(a.number(), b.number()))
}

// Rotate rotates v by the unit quaternion q.
func Rotate(q Quat, v [3]float64) [3]float64 {
	p := quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2]}
	n := q.number()
	r := quat.Mul(quat.Mul(n, p), quat.Conj(n))
	return [3]float64{r.Imag, r.Jmag, r.Kmag}
}

// Pose is a rigid transform: a rotation followed by a translation.
type Pose struct {
	Translation [3]float64
	Rotation    Quat
}

// IdentityPose returns the identity transform. Frames that carry no ego
// pose are treated as identity so their annotations stay in the local frame.
func IdentityPose() Pose { return Pose{Rotation: Identity()} }

// TransformPoint maps a point in the pose's local frame into its parent
// frame: rotate, then translate.
func (p Pose) TransformPoint(v [3]float64) [3]float64 {
	r := Rotate(p.Rotation, v)
	return [3]float64{
		r[0] + p.Translation[0],
		r[1] + p.Translation[1],
		r[2] + p.Translation[2],
	}
}

// PSR is an object's position-scale-rotation box in a local frame. Size is
// (length, width, height).
type PSR struct {
	Position [3]float64
	Size     [3]float64
	Rotation Quat
}

// Compose projects a local PSR into the global frame described by ego. The
// position is rotated by the ego rotation and then translated, the rotation
// composes as ego*local, and the size passes through unchanged in (length,
// width, height) order. Non-unit input quaternions are not corrected here;
// they surface as record validation failures downstream.
func Compose(local PSR, ego Pose) (position, size [3]float64, rotation Quat) {
	position = ego.TransformPoint(local.Position)
	size = local.Size
	rotation = Mul(ego.Rotation, local.Rotation)
	return position, size, rotation
}
