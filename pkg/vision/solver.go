// Package vision provides the OpenCV backed adapters of the detector:
// PnP solving, JPEG decoding, phone detection, clip writing and video
// sources.
package vision

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/Cavumnigrum/cheating-detector/pkg/pose"
)

// ErrNoConvergence is returned when solvePnP reports no solution.
var ErrNoConvergence = errors.New("vision: solvePnP did not converge")

// SOLVEPNP_ITERATIVE
const solvePnPIterative = 0

// CVSolver solves head rotation with OpenCV's solvePnP and Rodrigues.
type CVSolver struct{}

// Solve implements pose.Solver. Lens distortion is assumed to be zero.
func (CVSolver) Solve(object []pose.Point3, image []pose.Point2, cam pose.Camera) (pose.Matrix3, error) {
	if len(object) != len(image) || len(object) < 4 {
		return pose.Matrix3{}, fmt.Errorf("solve pnp: need matching point sets, got %d/%d", len(object), len(image))
	}

	obj := make([]gocv.Point3f, len(object))
	for i, p := range object {
		obj[i] = gocv.Point3f{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)}
	}
	img := make([]gocv.Point2f, len(image))
	for i, p := range image {
		img[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}

	objVec := gocv.NewPoint3fVectorFromPoints(obj)
	defer objVec.Close()
	imgVec := gocv.NewPoint2fVectorFromPoints(img)
	defer imgVec.Close()

	camMat := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer camMat.Close()
	camMat.SetDoubleAt(0, 0, cam.Focal)
	camMat.SetDoubleAt(0, 1, 0)
	camMat.SetDoubleAt(0, 2, cam.CX)
	camMat.SetDoubleAt(1, 0, 0)
	camMat.SetDoubleAt(1, 1, cam.Focal)
	camMat.SetDoubleAt(1, 2, cam.CY)
	camMat.SetDoubleAt(2, 0, 0)
	camMat.SetDoubleAt(2, 1, 0)
	camMat.SetDoubleAt(2, 2, 1)

	dist := gocv.NewMatWithSize(4, 1, gocv.MatTypeCV64F)
	defer dist.Close()
	for i := 0; i < 4; i++ {
		dist.SetDoubleAt(i, 0, 0)
	}

	rvec := gocv.NewMat()
	defer rvec.Close()
	tvec := gocv.NewMat()
	defer tvec.Close()

	if !gocv.SolvePnP(objVec, imgVec, camMat, dist, &rvec, &tvec, false, solvePnPIterative) {
		return pose.Matrix3{}, ErrNoConvergence
	}

	rmat := gocv.NewMat()
	defer rmat.Close()
	gocv.Rodrigues(rvec, &rmat)
	if rmat.Rows() != 3 || rmat.Cols() != 3 {
		return pose.Matrix3{}, fmt.Errorf("rodrigues: unexpected %dx%d matrix", rmat.Rows(), rmat.Cols())
	}

	var r pose.Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = rmat.GetDoubleAt(i, j)
		}
	}
	return r, nil
}
