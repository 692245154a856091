package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Cavumnigrum/cheating-detector/internal/httpc"
	"github.com/Cavumnigrum/cheating-detector/pkg/pose"
)

// RemoteLandmarker asks a face mesh sidecar for landmarks. The sidecar
// accepts a JPEG body and answers {"landmarks":[{"x":..,"y":..,"z":..}]}
// with an empty list when no face is visible.
type RemoteLandmarker struct {
	url    string
	client *http.Client
}

// NewRemoteLandmarker creates a client for the sidecar at url.
func NewRemoteLandmarker(url string, timeout time.Duration) *RemoteLandmarker {
	return &RemoteLandmarker{url: url, client: httpc.NewClient(timeout)}
}

type landmarkResponse struct {
	Landmarks []pose.Landmark `json:"landmarks"`
}

// Landmarks implements proctor.Landmarker.
func (l *RemoteLandmarker) Landmarks(ctx context.Context, jpeg []byte) ([]pose.Landmark, error) {
	body, err := httpc.Post(ctx, l.client, l.url, "image/jpeg", jpeg)
	if err != nil {
		return nil, fmt.Errorf("landmark request: %w", err)
	}

	var resp landmarkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode landmarks: %w", err)
	}
	if len(resp.Landmarks) == 0 {
		return nil, nil
	}
	return resp.Landmarks, nil
}
