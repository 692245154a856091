package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/Cavumnigrum/cheating-detector/internal/log"
	"github.com/Cavumnigrum/cheating-detector/pkg/evidence"
)

// ClipCodec is the FourCC used for evidence clips.
const ClipCodec = "MJPG"

// AVIWriter writes evidence clips as Motion-JPEG AVI files.
type AVIWriter struct{}

// WriteClip implements evidence.ClipWriter. The clip takes the size of the
// first frame; frames of another size are resized to it.
func (AVIWriter) WriteClip(path string, frames []evidence.Frame, fps float64) error {
	if len(frames) == 0 {
		return evidence.ErrEmptyClip
	}
	w, h := frames[0].Width, frames[0].Height

	vw, err := gocv.VideoWriterFile(path, ClipCodec, fps, w, h, true)
	if err != nil {
		return fmt.Errorf("open video writer: %w", err)
	}
	defer vw.Close()

	if !vw.IsOpened() {
		return fmt.Errorf("video writer not opened for %s", path)
	}

	skipped := 0
	for _, f := range frames {
		img, err := MatFromFrame(f)
		if err != nil {
			skipped++
			continue
		}

		if f.Width != w || f.Height != h {
			resized := gocv.NewMat()
			gocv.Resize(img, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
			img.Close()
			img = resized
		}

		err = vw.Write(img)
		img.Close()
		if err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}

	if skipped > 0 {
		log.Warn("clip frames skipped", "path", path, "skipped", skipped, "total", len(frames))
	}
	return nil
}
