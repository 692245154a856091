package pose

import "math"

// EulerAngles decomposes a rotation matrix into pitch, yaw and roll in degrees.
// Near gimbal lock (sy < eps) the degenerate formula is used and roll is zero.
func EulerAngles(r Matrix3, eps float64) Pose {
	sy := math.Sqrt(r[0][0]*r[0][0] + r[1][0]*r[1][0])

	var pitch, yaw, roll float64
	if sy < eps {
		pitch = math.Atan2(-r[1][2], r[1][1])
		yaw = math.Atan2(-r[2][0], sy)
		roll = 0
	} else {
		pitch = math.Atan2(r[2][1], r[2][2])
		yaw = math.Atan2(-r[2][0], sy)
		roll = math.Atan2(r[1][0], r[0][0])
	}

	return Pose{
		Pitch: degrees(pitch),
		Yaw:   degrees(yaw),
		Roll:  degrees(roll),
	}
}

// EyeLineRoll returns the image-plane angle of the line between the outer eye
// corners in degrees. Positive when the right eye sits lower (clockwise tilt).
func EyeLineRoll(left, right Landmark) float64 {
	return degrees(math.Atan2(right.Y-left.Y, right.X-left.X))
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
