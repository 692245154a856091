package pose

// window is a fixed-size FIFO of samples with a running mean.
type window struct {
	samples []float64
	size    int
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{samples: make([]float64, 0, size), size: size}
}

func (w *window) push(v float64) {
	if len(w.samples) == w.size {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.size-1]
	}
	w.samples = append(w.samples, v)
}

// mean averages every sample held.
func (w *window) mean() float64 {
	return w.meanLast(len(w.samples))
}

// meanLast averages the n most recent samples.
func (w *window) meanLast(n int) float64 {
	if n > len(w.samples) {
		n = len(w.samples)
	}
	if n <= 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.samples[len(w.samples)-n:] {
		sum += v
	}
	return sum / float64(n)
}

func (w *window) len() int {
	return len(w.samples)
}

func (w *window) reset() {
	w.samples = w.samples[:0]
}
