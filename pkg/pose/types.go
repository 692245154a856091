// Package pose estimates head orientation and iris gaze from face mesh landmarks.
package pose

import "fmt"

// Landmark is a single face mesh point.
// X and Y are normalized to the frame (0-1), Z is in model units.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Face mesh indices used for head pose and gaze.
const (
	NoseTip       = 1
	Chin          = 152
	LeftEyeOuter  = 33
	LeftEyeInner  = 133
	RightEyeInner = 362
	RightEyeOuter = 263
	LeftMouth     = 61
	RightMouth    = 291
	LeftIris      = 468
	RightIris     = 473
)

// poseIndices are the image correspondences for the face template, in order.
var poseIndices = [6]int{NoseTip, Chin, LeftEyeOuter, RightEyeOuter, LeftMouth, RightMouth}

// FaceTemplate is a generic 3D face (OpenCV axes: +Y down, -Z toward camera).
var FaceTemplate = []Point3{
	{0, 0, 0},          // nose tip
	{0, 330, -65},      // chin
	{-225, -170, -135}, // left eye outer corner
	{225, -170, -135},  // right eye outer corner
	{-150, 150, -125},  // left mouth corner
	{150, 150, -125},   // right mouth corner
}

// Point2 is an image plane point in pixels.
type Point2 struct {
	X, Y float64
}

// Point3 is a model space point.
type Point3 struct {
	X, Y, Z float64
}

// Matrix3 is a row-major 3x3 rotation matrix.
type Matrix3 [3][3]float64

// Identity returns the identity rotation.
func Identity() Matrix3 {
	return Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Camera is a pinhole camera with no lens distortion.
type Camera struct {
	Focal  float64
	CX, CY float64
}

// CameraForFrame builds the camera used for every frame:
// focal length equal to the frame width and principal point at the center.
func CameraForFrame(width, height int) Camera {
	return Camera{
		Focal: float64(width),
		CX:    float64(width) / 2,
		CY:    float64(height) / 2,
	}
}

// Solver recovers the rotation that maps object points onto image points.
type Solver interface {
	Solve(object []Point3, image []Point2, cam Camera) (Matrix3, error)
}

// Pose is a head orientation in degrees.
type Pose struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Sub returns p minus offset, component-wise.
func (p Pose) Sub(offset Pose) Pose {
	return Pose{
		Pitch: p.Pitch - offset.Pitch,
		Yaw:   p.Yaw - offset.Yaw,
		Roll:  p.Roll - offset.Roll,
	}
}

// Triple returns the pose as (pitch, yaw, roll).
func (p Pose) Triple() [3]float64 {
	return [3]float64{p.Pitch, p.Yaw, p.Roll}
}

func (p Pose) String() string {
	return fmt.Sprintf("P %.0f Y %.0f R %.0f", p.Pitch, p.Yaw, p.Roll)
}

// Gaze is an absolute gaze direction derived from iris position.
type Gaze int

const (
	GazeNone Gaze = iota
	GazeLeft
	GazeRight
)

func (g Gaze) String() string {
	switch g {
	case GazeLeft:
		return "left"
	case GazeRight:
		return "right"
	default:
		return "none"
	}
}
