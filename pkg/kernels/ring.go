// Package kernels implements the builtin stateful rolling-window signal
// kernels. Every kernel appends a new float64 (or, for threshold, boolean)
// column to the batch it receives and is order-preserving and
// row-count-preserving. Each kernel's private ring spans batch boundaries:
// if a window straddles a batch edge, the tail of one batch and the head
// of the next share the same ring state.
package kernels

// floatRing is the shared ring buffer behind rolling_mean, rolling_std and
// zscore: a fixed-size window of (value, validity) pairs with a running sum
// and sum-of-squares. A null entering or leaving the window forces an exact
// recompute from the ring's live contents rather than an incremental
// subtract, to avoid drift.
type floatRing struct {
	values []float64
	valid  []bool
	window int
	size   int
	pos    int

	sum        float64
	sumSq      float64
	validCount int
}

func newFloatRing(window int) *floatRing {
	return &floatRing{
		values: make([]float64, window),
		valid:  make([]bool, window),
		window: window,
	}
}

// push records one new stream value, evicting the oldest entry once the
// ring is full.
func (r *floatRing) push(v float64, ok bool) {
	full := r.size == r.window

	var evictedVal float64
	var evictedOk bool
	if full {
		evictedVal = r.values[r.pos]
		evictedOk = r.valid[r.pos]
	}

	r.values[r.pos] = v
	r.valid[r.pos] = ok
	r.pos = (r.pos + 1) % r.window
	if !full {
		r.size++
	}

	if !ok || (full && !evictedOk) {
		r.recompute()
		return
	}

	r.sum += v
	r.sumSq += v * v
	r.validCount++
	if full && evictedOk {
		r.sum -= evictedVal
		r.sumSq -= evictedVal * evictedVal
		r.validCount--
	}
}

func (r *floatRing) recompute() {
	r.sum, r.sumSq, r.validCount = 0, 0, 0
	for i := 0; i < r.size; i++ {
		if r.valid[i] {
			r.sum += r.values[i]
			r.sumSq += r.values[i] * r.values[i]
			r.validCount++
		}
	}
}

func (r *floatRing) full() bool      { return r.size == r.window }
func (r *floatRing) allValid() bool  { return r.validCount == r.size }
func (r *floatRing) mean() float64   { return r.sum / float64(r.window) }

// sampleVariance returns the sample variance (n-1 denominator) of the
// window, assuming full() && allValid() && window > 1.
func (r *floatRing) sampleVariance() float64 {
	n := float64(r.window)
	v := (r.sumSq - r.sum*r.sum/n) / (n - 1)
	if v < 0 {
		// floating-point cancellation can push a true-zero variance
		// slightly negative.
		return 0
	}
	return v
}

// pvRing is the vwap-specific ring: it tracks Σ(p·v) and Σ(v) directly.
// Unlike floatRing, a null price or volume does not invalidate the whole
// window — it contributes nothing to the running sums ("null in
// either input marks that row's contribution as absent"), and only that
// row's own output is forced null.
type pvRing struct {
	pv     []float64
	vol    []float64
	window int
	size   int
	pos    int

	sumPV float64
	sumV  float64
}

func newPVRing(window int) *pvRing {
	return &pvRing{
		pv:     make([]float64, window),
		vol:    make([]float64, window),
		window: window,
	}
}

// push records one row's (price*volume, volume) contribution, which is
// (0, 0) when the row itself is null, evicting the oldest contribution
// once the ring is full.
func (r *pvRing) push(pv, v float64) {
	full := r.size == r.window
	var evictedPV, evictedV float64
	if full {
		evictedPV = r.pv[r.pos]
		evictedV = r.vol[r.pos]
	}

	r.pv[r.pos] = pv
	r.vol[r.pos] = v
	r.pos = (r.pos + 1) % r.window
	if !full {
		r.size++
	}

	r.sumPV += pv
	r.sumV += v
	if full {
		r.sumPV -= evictedPV
		r.sumV -= evictedV
	}
}

func (r *pvRing) full() bool { return r.size == r.window }
