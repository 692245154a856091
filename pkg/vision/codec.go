package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/Cavumnigrum/cheating-detector/pkg/evidence"
)

// Decoder decodes JPEG frames into BGR pixels.
type Decoder struct{}

// Decode implements proctor.Decoder.
func (Decoder) Decode(jpeg []byte) (evidence.Frame, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return evidence.Frame{}, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return evidence.Frame{}, fmt.Errorf("empty image")
	}
	return FrameFromMat(img)
}

// FrameFromMat copies a BGR Mat into a frame.
func FrameFromMat(img gocv.Mat) (evidence.Frame, error) {
	if img.Type() != gocv.MatTypeCV8UC3 {
		return evidence.Frame{}, fmt.Errorf("unsupported mat type %v", img.Type())
	}
	return evidence.Frame{
		Width:  img.Cols(),
		Height: img.Rows(),
		Data:   img.ToBytes(),
	}, nil
}

// MatFromFrame wraps a frame's pixels in a new Mat. The caller closes it.
func MatFromFrame(f evidence.Frame) (gocv.Mat, error) {
	if f.Empty() || len(f.Data) != f.Width*f.Height*3 {
		return gocv.Mat{}, fmt.Errorf("bad frame %dx%d with %d bytes", f.Width, f.Height, len(f.Data))
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
}

// EncodeJPEG encodes a Mat as JPEG.
func EncodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
