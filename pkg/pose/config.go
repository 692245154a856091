package pose

// Config holds the smoothing and gaze parameters of the estimator.
type Config struct {
	// Smoothing
	Window       int // Samples kept for each pose angle mean
	IrisHistory  int // Iris ratios kept
	IrisSmoothed int // Most recent iris ratios averaged per frame

	// Gaze thresholds on the averaged iris ratio (0 = outer edge, 1 = inner edge)
	IrisLow  float64 // Below this the subject looks right
	IrisHigh float64 // Above this the subject looks left

	// Decomposition
	GimbalEpsilon float64 // sy below this is treated as gimbal lock
}

// DefaultConfig returns the estimator parameters used in production.
func DefaultConfig() Config {
	return Config{
		Window:        10,
		IrisHistory:   10,
		IrisSmoothed:  5,
		IrisLow:       0.375,
		IrisHigh:      0.625,
		GimbalEpsilon: 1e-6,
	}
}
