package vision

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// ErrEndOfStream is returned by a Provider that has no more frames.
var ErrEndOfStream = errors.New("vision: end of stream")

// Provider interface for camera access.
type Provider interface {
	CaptureFrame() ([]byte, error) // Returns JPEG image data
	Close() error
}

// CaptureProvider reads frames from a video file or a local camera.
type CaptureProvider struct {
	mu  sync.Mutex
	cap *gocv.VideoCapture
	img gocv.Mat
}

// OpenFile opens a video file for frame-by-frame reading.
func OpenFile(path string) (*CaptureProvider, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	return &CaptureProvider{cap: vc, img: gocv.NewMat()}, nil
}

// OpenDevice opens a local camera.
func OpenDevice(id int) (*CaptureProvider, error) {
	vc, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", id, err)
	}
	return &CaptureProvider{cap: vc, img: gocv.NewMat()}, nil
}

// FPS returns the source frame rate, or 0 when unknown.
func (p *CaptureProvider) FPS() float64 {
	return p.cap.Get(gocv.VideoCaptureFPS)
}

// CaptureFrame reads the next frame and encodes it as JPEG.
func (p *CaptureProvider) CaptureFrame() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ok := p.cap.Read(&p.img); !ok || p.img.Empty() {
		return nil, ErrEndOfStream
	}
	return EncodeJPEG(p.img)
}

// Close releases the capture.
func (p *CaptureProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.img.Close()
	return p.cap.Close()
}
