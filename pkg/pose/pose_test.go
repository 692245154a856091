package pose

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func rotX(deg float64) Matrix3 {
	s, c := math.Sincos(deg * math.Pi / 180)
	return Matrix3{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

func rotY(deg float64) Matrix3 {
	s, c := math.Sincos(deg * math.Pi / 180)
	return Matrix3{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
}

func rotZ(deg float64) Matrix3 {
	s, c := math.Sincos(deg * math.Pi / 180)
	return Matrix3{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

// scriptedSolver returns queued rotations in order, then repeats the last one.
type scriptedSolver struct {
	rotations []Matrix3
	errs      []error
	calls     int
	lastCam   Camera
	lastImage []Point2
}

func (s *scriptedSolver) Solve(object []Point3, image []Point2, cam Camera) (Matrix3, error) {
	i := s.calls
	s.calls++
	s.lastCam = cam
	s.lastImage = image
	if i < len(s.errs) && s.errs[i] != nil {
		return Matrix3{}, s.errs[i]
	}
	if len(s.rotations) == 0 {
		return Identity(), nil
	}
	if i >= len(s.rotations) {
		i = len(s.rotations) - 1
	}
	return s.rotations[i], nil
}

// faceMesh builds a full 478 point mesh with level eyes and the given iris
// ratios. withIris=false truncates the mesh before the iris points.
func faceMesh(leftRatio, rightRatio float64, withIris bool) []Landmark {
	n := 478
	if !withIris {
		n = 468
	}
	lms := make([]Landmark, n)
	for i := range lms {
		lms[i] = Landmark{X: 0.5, Y: 0.5}
	}
	lms[LeftEyeOuter] = Landmark{X: 0.40, Y: 0.40}
	lms[LeftEyeInner] = Landmark{X: 0.46, Y: 0.40}
	lms[RightEyeInner] = Landmark{X: 0.54, Y: 0.40}
	lms[RightEyeOuter] = Landmark{X: 0.60, Y: 0.40}
	lms[NoseTip] = Landmark{X: 0.50, Y: 0.50}
	lms[Chin] = Landmark{X: 0.50, Y: 0.75}
	lms[LeftMouth] = Landmark{X: 0.44, Y: 0.62}
	lms[RightMouth] = Landmark{X: 0.56, Y: 0.62}
	if withIris {
		lms[LeftIris] = Landmark{X: 0.40 + leftRatio*0.06, Y: 0.40}
		lms[RightIris] = Landmark{X: 0.54 + rightRatio*0.06, Y: 0.40}
	}
	return lms
}

func TestEulerAngles(t *testing.T) {
	tests := []struct {
		name string
		rot  Matrix3
		want Pose
	}{
		{"identity", Identity(), Pose{}},
		{"pitch 15", rotX(15), Pose{Pitch: 15}},
		{"yaw -25", rotY(-25), Pose{Yaw: -25}},
		{"roll 10", rotZ(10), Pose{Roll: 10}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := EulerAngles(tc.rot, 1e-6)
			if !near(got.Pitch, tc.want.Pitch, 1e-6) || !near(got.Yaw, tc.want.Yaw, 1e-6) || !near(got.Roll, tc.want.Roll, 1e-6) {
				t.Errorf("EulerAngles = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestEulerAngles_GimbalLock(t *testing.T) {
	// Yaw of exactly 90 degrees collapses R00 and R10 to zero.
	rot := Matrix3{{0, 0, 1}, {0, 1, 0}, {-1, 0, 0}}

	got := EulerAngles(rot, 1e-6)
	if got.Roll != 0 {
		t.Errorf("Roll = %v, want 0 in gimbal lock", got.Roll)
	}
	if !near(got.Yaw, 90, 1e-9) {
		t.Errorf("Yaw = %v, want 90", got.Yaw)
	}
	if !near(got.Pitch, 0, 1e-9) {
		t.Errorf("Pitch = %v, want 0", got.Pitch)
	}
}

func TestEyeLineRoll(t *testing.T) {
	level := EyeLineRoll(Landmark{X: 0.4, Y: 0.4}, Landmark{X: 0.6, Y: 0.4})
	if !near(level, 0, tolerance) {
		t.Errorf("level eyes: got %v, want 0", level)
	}

	tilted := EyeLineRoll(Landmark{X: 0.4, Y: 0.4}, Landmark{X: 0.6, Y: 0.6})
	if !near(tilted, 45, 1e-9) {
		t.Errorf("right eye lower: got %v, want 45", tilted)
	}

	counter := EyeLineRoll(Landmark{X: 0.4, Y: 0.6}, Landmark{X: 0.6, Y: 0.4})
	if !near(counter, -45, 1e-9) {
		t.Errorf("right eye higher: got %v, want -45", counter)
	}
}

func TestCameraForFrame(t *testing.T) {
	cam := CameraForFrame(640, 480)
	if cam.Focal != 640 || cam.CX != 320 || cam.CY != 240 {
		t.Errorf("CameraForFrame(640, 480) = %+v", cam)
	}
}

func TestEstimator_NoFace(t *testing.T) {
	solver := &scriptedSolver{}
	est := NewEstimator(DefaultConfig(), solver)

	res := est.Estimate(nil, 640, 480)
	if res.Valid {
		t.Error("expected invalid result without landmarks")
	}
	if solver.calls != 0 {
		t.Errorf("solver called %d times, want 0", solver.calls)
	}

	res = est.Estimate(make([]Landmark, 100), 640, 480)
	if res.Valid {
		t.Error("expected invalid result for truncated mesh")
	}
}

func TestEstimator_ImagePointsInPixels(t *testing.T) {
	solver := &scriptedSolver{}
	est := NewEstimator(DefaultConfig(), solver)

	est.Estimate(faceMesh(0.5, 0.5, true), 640, 480)

	if len(solver.lastImage) != 6 {
		t.Fatalf("got %d image points, want 6", len(solver.lastImage))
	}
	nose := solver.lastImage[0]
	if !near(nose.X, 320, tolerance) || !near(nose.Y, 240, tolerance) {
		t.Errorf("nose = %+v, want (320, 240)", nose)
	}
	chin := solver.lastImage[1]
	if !near(chin.Y, 360, tolerance) {
		t.Errorf("chin.Y = %v, want 360", chin.Y)
	}
	if solver.lastCam.Focal != 640 {
		t.Errorf("focal = %v, want frame width", solver.lastCam.Focal)
	}
}

func TestEstimator_SmoothsOverWindow(t *testing.T) {
	var rots []Matrix3
	for i := 0; i < 12; i++ {
		rots = append(rots, rotY(float64(i)))
	}
	solver := &scriptedSolver{rotations: rots}
	est := NewEstimator(DefaultConfig(), solver)

	var res Result
	for i := 0; i < 12; i++ {
		res = est.Estimate(faceMesh(0.5, 0.5, true), 640, 480)
	}

	// Mean of yaw 2..11
	if !near(res.Pose.Yaw, 6.5, 1e-6) {
		t.Errorf("smoothed yaw = %v, want 6.5", res.Pose.Yaw)
	}
	if est.Samples() != 10 {
		t.Errorf("samples = %d, want 10", est.Samples())
	}
}

func TestEstimator_UsesGeometricRoll(t *testing.T) {
	solver := &scriptedSolver{rotations: []Matrix3{rotZ(30)}}
	est := NewEstimator(DefaultConfig(), solver)

	res := est.Estimate(faceMesh(0.5, 0.5, true), 640, 480)
	if !res.Valid {
		t.Fatal("expected valid pose")
	}
	if !near(res.Pose.Roll, 0, 1e-9) {
		t.Errorf("roll = %v, want eye-line roll 0 instead of solver roll", res.Pose.Roll)
	}
}

func TestEstimator_SolverFailure(t *testing.T) {
	solver := &scriptedSolver{
		rotations: []Matrix3{rotY(10), rotY(10), rotY(50)},
		errs:      []error{nil, errors.New("no convergence"), nil},
	}
	est := NewEstimator(DefaultConfig(), solver)

	est.Estimate(faceMesh(0.5, 0.5, true), 640, 480)
	res := est.Estimate(faceMesh(0.2, 0.2, true), 640, 480)
	if res.Valid {
		t.Error("expected invalid result on solver failure")
	}
	if res.Gaze != GazeNone {
		t.Errorf("gaze = %v, want none on solver failure", res.Gaze)
	}
	if est.Samples() != 1 {
		t.Errorf("samples = %d, want failure not to be recorded", est.Samples())
	}

	res = est.Estimate(faceMesh(0.5, 0.5, true), 640, 480)
	if !near(res.Pose.Yaw, 30, 1e-6) {
		t.Errorf("yaw = %v, want mean of 10 and 50", res.Pose.Yaw)
	}
}

func TestEstimator_GazeOverride(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  Gaze
	}{
		{"looking right", 0.30, GazeRight},
		{"centered", 0.50, GazeNone},
		{"looking left", 0.70, GazeLeft},
		{"just inside low edge", 0.38, GazeNone},
		{"just inside high edge", 0.62, GazeNone},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			est := NewEstimator(DefaultConfig(), &scriptedSolver{})
			var res Result
			for i := 0; i < 5; i++ {
				res = est.Estimate(faceMesh(tc.ratio, tc.ratio, true), 640, 480)
			}
			if !res.HasIris {
				t.Fatal("expected iris landmarks to be used")
			}
			if !near(res.IrisRatio, tc.ratio, 1e-9) {
				t.Errorf("ratio = %v, want %v", res.IrisRatio, tc.ratio)
			}
			if res.Gaze != tc.want {
				t.Errorf("gaze = %v, want %v", res.Gaze, tc.want)
			}
		})
	}
}

func TestEstimator_IrisSmoothsLastFive(t *testing.T) {
	est := NewEstimator(DefaultConfig(), &scriptedSolver{})

	for i := 0; i < 5; i++ {
		est.Estimate(faceMesh(0.1, 0.1, true), 640, 480)
	}
	// Five centered samples push the outliers out of the smoothing window.
	var res Result
	for i := 0; i < 5; i++ {
		res = est.Estimate(faceMesh(0.5, 0.5, true), 640, 480)
	}
	if !near(res.IrisRatio, 0.5, 1e-9) {
		t.Errorf("ratio = %v, want 0.5", res.IrisRatio)
	}
	if res.Gaze != GazeNone {
		t.Errorf("gaze = %v, want none", res.Gaze)
	}
}

func TestEstimator_NoIrisLandmarks(t *testing.T) {
	est := NewEstimator(DefaultConfig(), &scriptedSolver{})

	res := est.Estimate(faceMesh(0, 0, false), 640, 480)
	if !res.Valid {
		t.Fatal("expected a pose without iris points")
	}
	if res.HasIris || res.Gaze != GazeNone {
		t.Errorf("got HasIris=%v Gaze=%v, want no iris evaluation", res.HasIris, res.Gaze)
	}
}

func TestIrisRatio_ZeroWidth(t *testing.T) {
	if got := irisRatio(0.5, 0.5, 0.9); got != 0.5 {
		t.Errorf("zero width: got %v, want 0.5", got)
	}
	if got := irisRatio(0.6, 0.4, 0.9); got != 0.5 {
		t.Errorf("negative width: got %v, want 0.5", got)
	}
	if got := irisRatio(0.4, 0.6, 0.45); !near(got, 0.25, 1e-9) {
		t.Errorf("quarter: got %v, want 0.25", got)
	}
}

func TestWindow(t *testing.T) {
	w := newWindow(3)
	for _, v := range []float64{1, 2, 3, 4} {
		w.push(v)
	}
	if w.len() != 3 {
		t.Fatalf("len = %d, want 3", w.len())
	}
	if got := w.mean(); !near(got, 3, tolerance) {
		t.Errorf("mean = %v, want 3", got)
	}
	if got := w.meanLast(2); !near(got, 3.5, tolerance) {
		t.Errorf("meanLast(2) = %v, want 3.5", got)
	}
	if got := w.meanLast(10); !near(got, 3, tolerance) {
		t.Errorf("meanLast(10) = %v, want 3", got)
	}
	w.reset()
	if w.mean() != 0 {
		t.Errorf("mean after reset = %v, want 0", w.mean())
	}
}
