package geo

import "sync"

// Odometer accumulates distance travelled from successive position samples.
type Odometer struct {
	mu sync.Mutex
	// maxStepMeters discards samples that jump further than this, such as teleports. Zero disables the check.
	maxStepMeters float64
	last          *Point
	meters        float64
}

func NewOdometer(maxStepMeters float64) *Odometer {
	return &Odometer{maxStepMeters: maxStepMeters}
}

// Add records p and returns the distance in kilometers it added.
func (o *Odometer) Add(p Point) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev := o.last
	o.last = &p
	if prev == nil {
		return 0
	}
	step := DistanceMeters(*prev, p)
	if o.maxStepMeters > 0 && step > o.maxStepMeters {
		return 0
	}
	o.meters += step
	return step / 1000
}

func (o *Odometer) Kilometers() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.meters / 1000
}

// Set overrides the accumulated total, e.g. with the server's value after a rejoin.
func (o *Odometer) Set(km float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.meters = km * 1000
}

func (o *Odometer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = nil
	o.meters = 0
}
