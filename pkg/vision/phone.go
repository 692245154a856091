package vision

import (
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/Cavumnigrum/cheating-detector/internal/log"
	"github.com/Cavumnigrum/cheating-detector/pkg/proctor"
)

// CellPhoneClass is the COCO class ID of "cell phone".
const CellPhoneClass = 67

// PhoneConfig holds phone detector configuration.
type PhoneConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	// LabelThresh applies to phone-like classes of custom models other
	// than the COCO cell phone class.
	LabelThresh float32
	NMSThresh   float32
	InputWidth  int
	InputHeight int
	// Classes names the model outputs. Empty means the 80 COCO classes.
	Classes []string
}

// DefaultPhoneConfig returns production defaults for a YOLOv8 ONNX export.
func DefaultPhoneConfig() PhoneConfig {
	return PhoneConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.3,
		LabelThresh:      0.75,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

var phoneLabels = map[string]bool{
	"cell phone":   true,
	"phone":        true,
	"mobile phone": true,
	"smartphone":   true,
}

// candidate is one raw box before non-maximum suppression.
type candidate struct {
	box     image.Rectangle
	score   float32
	classID int
}

// PhoneDetector runs a YOLOv8 model and keeps phone detections.
type PhoneDetector struct {
	net       gocv.Net
	config    PhoneConfig
	classes   []string
	coco      bool
	mu        sync.Mutex
	inputSize image.Point
}

// NewPhoneDetector loads the ONNX model at cfg.ModelPath.
func NewPhoneDetector(cfg PhoneConfig) (*PhoneDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	classes := cfg.Classes
	if len(classes) == 0 {
		classes = COCOClasses
	}

	return &PhoneDetector{
		net:       net,
		config:    cfg,
		classes:   classes,
		coco:      len(cfg.Classes) == 0,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// DetectPhones implements proctor.PhoneDetector.
func (d *PhoneDetector) DetectPhones(jpeg []byte) ([]proctor.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	// Output shape [1, 4+classes, anchors], stored class-major.
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", sizes)
	}
	rows, cols := sizes[2], sizes[1]

	cands := d.decode(data, rows, cols, float32(img.Cols()), float32(img.Rows()))
	if len(cands) == 0 {
		return []proctor.Detection{}, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.box
		scores[i] = c.score
	}
	indices := gocv.NMSBoxes(boxes, scores, d.config.ConfidenceThresh, d.config.NMSThresh)

	out := make([]proctor.Detection, 0, len(indices))
	for _, idx := range indices {
		c := cands[idx]
		out = append(out, proctor.Detection{
			BBox: [4]float64{
				float64(c.box.Min.X), float64(c.box.Min.Y),
				float64(c.box.Max.X), float64(c.box.Max.Y),
			},
			Confidence: float64(c.score),
			Class:      c.classID,
			Label:      proctor.PhoneLabel,
		})
	}

	if len(out) > 0 {
		log.Debug("phones found", "count", len(out))
	}
	return out, nil
}

// decode turns the raw YOLOv8 tensor into phone candidates scaled to an
// imgW x imgH image. rows is the anchor count, cols is 4 plus the class count.
func (d *PhoneDetector) decode(data []float32, rows, cols int, imgW, imgH float32) []candidate {
	var out []candidate

	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < cols; c++ {
			score := data[c*rows+i]
			if score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}

		if !d.isPhone(maxClassID, maxScore) {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		x1 := int((cx - w/2) * imgW / float32(d.config.InputWidth))
		y1 := int((cy - h/2) * imgH / float32(d.config.InputHeight))
		x2 := int((cx + w/2) * imgW / float32(d.config.InputWidth))
		y2 := int((cy + h/2) * imgH / float32(d.config.InputHeight))

		out = append(out, candidate{
			box:     image.Rect(x1, y1, x2, y2),
			score:   maxScore,
			classID: maxClassID,
		})
	}
	return out
}

// isPhone accepts the COCO cell phone class at the detector threshold and
// other phone-named classes only at LabelThresh.
func (d *PhoneDetector) isPhone(classID int, score float32) bool {
	if score < d.config.ConfidenceThresh {
		return false
	}
	if d.coco && classID == CellPhoneClass {
		return true
	}
	if classID < 0 || classID >= len(d.classes) {
		return false
	}
	return phoneLabels[strings.ToLower(d.classes[classID])] && score >= d.config.LabelThresh
}

// Close releases the detector resources.
func (d *PhoneDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.Close()
	return nil
}

// COCOClasses contains the 80 COCO class names.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
