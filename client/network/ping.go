package network

import (
	"sort"
	"sync"
	"time"
)

const maxRecentRTTs = 10

// rttTracker keeps a smoothed round trip time from invocation completions.
type rttTracker struct {
	mu         sync.Mutex
	recentRTTs []int64
	latency    float64
}

func (r *rttTracker) Add(rtt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recentRTTs = append(r.recentRTTs, rtt.Milliseconds())
	for len(r.recentRTTs) > maxRecentRTTs {
		r.recentRTTs = r.recentRTTs[1:]
	}

	samples := removeOutlierRTTs(r.recentRTTs)
	if len(samples) == 0 {
		return
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	r.latency = sum / float64(len(samples))
}

func (r *rttTracker) Latency() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.latency * float64(time.Millisecond))
}

func (r *rttTracker) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recentRTTs = nil
	r.latency = 0
}

// removeOutlierRTTs drops samples above twice the median, ignoring anything at or under 20ms.
func removeOutlierRTTs(rtts []int64) []int64 {
	median := medianRTT(rtts)
	result := make([]int64, 0, len(rtts))
	for _, rtt := range rtts {
		if rtt > 2*median && rtt > 20 {
			continue
		}
		result = append(result, rtt)
	}
	return result
}

func medianRTT(rtts []int64) int64 {
	if len(rtts) == 0 {
		return 0
	}
	sorted := make([]int64, len(rtts))
	copy(sorted, rtts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
