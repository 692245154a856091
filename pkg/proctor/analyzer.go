package proctor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Cavumnigrum/cheating-detector/internal/log"
	"github.com/Cavumnigrum/cheating-detector/pkg/evidence"
	"github.com/Cavumnigrum/cheating-detector/pkg/pose"
)

// PhoneLabel is the label reported for phone detections.
const PhoneLabel = "Phone (Cheating)"

// Detection is a phone bounding box in pixel coordinates.
type Detection struct {
	BBox       [4]float64 `json:"bbox"` // x1, y1, x2, y2
	Confidence float64    `json:"conf"`
	Class      int        `json:"cls"`
	Label      string     `json:"label"`
}

// Decoder turns a JPEG into raw BGR pixels.
type Decoder interface {
	Decode(jpeg []byte) (evidence.Frame, error)
}

// PhoneDetector finds phones in a JPEG image.
type PhoneDetector interface {
	DetectPhones(jpeg []byte) ([]Detection, error)
}

// Landmarker returns the normalized face mesh of the most prominent face,
// or nil when no face is visible.
type Landmarker interface {
	Landmarks(ctx context.Context, jpeg []byte) ([]pose.Landmark, error)
}

// Analyzer runs the perception models on an encoded frame and assembles
// the pipeline input. Detectors are optional; a nil detector never fires.
// Safe for concurrent use if the injected models are.
type Analyzer struct {
	decoder    Decoder
	phones     PhoneDetector
	landmarker Landmarker
	logger     *slog.Logger
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(decoder Decoder, phones PhoneDetector, landmarker Landmarker) *Analyzer {
	return &Analyzer{
		decoder:    decoder,
		phones:     phones,
		landmarker: landmarker,
		logger:     log.With("component", "analyzer"),
	}
}

// Analyze decodes jpeg and runs the detectors on it. Only a decode failure
// is returned as an error; model failures degrade to "nothing detected".
func (a *Analyzer) Analyze(ctx context.Context, jpeg []byte, ts time.Time) (Frame, []Detection, error) {
	img, err := a.decoder.Decode(jpeg)
	if err != nil {
		return Frame{}, nil, fmt.Errorf("decode frame: %w", err)
	}

	f := Frame{Image: img, Timestamp: ts}
	detections := []Detection{}

	if a.phones != nil {
		found, err := a.phones.DetectPhones(jpeg)
		if err != nil {
			a.logger.Warn("phone detection failed", "error", err)
		} else if len(found) > 0 {
			detections = found
			f.PhoneDetected = true
			f.PhoneCount = len(found)
			for _, d := range found {
				f.PhoneConfidence = max(f.PhoneConfidence, d.Confidence)
			}
			a.logger.Debug("phone detected", "count", f.PhoneCount, "confidence", f.PhoneConfidence)
		}
	}

	if a.landmarker != nil {
		lms, err := a.landmarker.Landmarks(ctx, jpeg)
		if err != nil {
			a.logger.Warn("landmark detection failed", "error", err)
		} else if len(lms) > 0 {
			f.Landmarks = lms
		}
	}

	return f, detections, nil
}
