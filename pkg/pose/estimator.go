package pose

import (
	"github.com/Cavumnigrum/cheating-detector/internal/log"
)

// Result is the estimator output for one frame.
type Result struct {
	Pose      Pose    // Smoothed head pose, zero when Valid is false
	Valid     bool    // A pose was solved on this frame
	Gaze      Gaze    // Iris based override, GazeNone if not triggered
	IrisRatio float64 // Smoothed iris ratio, 0 when HasIris is false
	HasIris   bool    // Iris landmarks were present
}

// Estimator turns face mesh landmarks into a smoothed head pose and
// an optional gaze override. It is not safe for concurrent use; each
// session owns its own estimator.
type Estimator struct {
	config Config
	solver Solver

	pitch *window
	yaw   *window
	roll  *window
	iris  *window
}

// NewEstimator creates an estimator backed by the given PnP solver.
func NewEstimator(config Config, solver Solver) *Estimator {
	return &Estimator{
		config: config,
		solver: solver,
		pitch:  newWindow(config.Window),
		yaw:    newWindow(config.Window),
		roll:   newWindow(config.Window),
		iris:   newWindow(config.IrisHistory),
	}
}

// Estimate processes the landmarks of one face in a width x height frame.
// A nil or truncated landmark set, or a solver failure, yields an invalid result.
func (e *Estimator) Estimate(landmarks []Landmark, width, height int) Result {
	if len(landmarks) <= RightMouth || width <= 0 || height <= 0 || e.solver == nil {
		return Result{}
	}

	image := make([]Point2, len(poseIndices))
	for i, idx := range poseIndices {
		lm := landmarks[idx]
		image[i] = Point2{X: lm.X * float64(width), Y: lm.Y * float64(height)}
	}

	rot, err := e.solver.Solve(FaceTemplate, image, CameraForFrame(width, height))
	if err != nil {
		log.Debug("pose solve failed", "error", err)
		return Result{}
	}

	raw := EulerAngles(rot, e.config.GimbalEpsilon)
	// Solver roll is unstable; the eye line is not.
	geoRoll := EyeLineRoll(landmarks[LeftEyeOuter], landmarks[RightEyeOuter])

	e.pitch.push(raw.Pitch)
	e.yaw.push(raw.Yaw)
	e.roll.push(geoRoll)

	res := Result{
		Pose: Pose{
			Pitch: e.pitch.mean(),
			Yaw:   e.yaw.mean(),
			Roll:  e.roll.mean(),
		},
		Valid: true,
	}

	if len(landmarks) > RightIris {
		res.HasIris = true
		res.IrisRatio, res.Gaze = e.gaze(landmarks)
	}

	return res
}

// gaze computes the smoothed horizontal iris ratio and its override.
func (e *Estimator) gaze(landmarks []Landmark) (float64, Gaze) {
	left := irisRatio(landmarks[LeftEyeOuter].X, landmarks[LeftEyeInner].X, landmarks[LeftIris].X)
	right := irisRatio(landmarks[RightEyeInner].X, landmarks[RightEyeOuter].X, landmarks[RightIris].X)

	e.iris.push((left + right) / 2)
	avg := e.iris.meanLast(e.config.IrisSmoothed)

	g := GazeNone
	switch {
	case avg < e.config.IrisLow:
		g = GazeRight
	case avg > e.config.IrisHigh:
		g = GazeLeft
	}

	log.Debug("eye ratio", "avg", avg, "left", left, "right", right, "override", g)
	return avg, g
}

// irisRatio places center between the image-left and image-right eye corners.
// A zero or negative eye width is treated as centered.
func irisRatio(leftX, rightX, centerX float64) float64 {
	width := rightX - leftX
	if width <= 0 {
		return 0.5
	}
	return (centerX - leftX) / width
}

// Reset clears all smoothing history.
func (e *Estimator) Reset() {
	e.pitch.reset()
	e.yaw.reset()
	e.roll.reset()
	e.iris.reset()
}

// Samples returns how many pose samples are currently smoothed.
func (e *Estimator) Samples() int {
	return e.pitch.len()
}
