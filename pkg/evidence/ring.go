package evidence

// Frame is a raw BGR24 image, row-major, 3 bytes per pixel.
type Frame struct {
	Width  int
	Height int
	Data   []byte
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Data) == 0
}

// Ring is a fixed-capacity FIFO of the most recent frames.
// Pushing into a full ring evicts the oldest frame.
type Ring struct {
	buf   []Frame
	start int
	size  int
}

// NewRing creates a ring holding at most capacity frames.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Frame, capacity)}
}

// Push appends f, evicting the oldest frame when full.
func (r *Ring) Push(f Frame) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = f
		r.size++
		return
	}
	r.buf[r.start] = f
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of frames held.
func (r *Ring) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Snapshot copies the held frames, oldest first.
func (r *Ring) Snapshot() []Frame {
	out := make([]Frame, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Clear drops every frame.
func (r *Ring) Clear() {
	clear(r.buf)
	r.start = 0
	r.size = 0
}
