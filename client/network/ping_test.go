package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMedianRTT(t *testing.T) {
	tests := []struct {
		name string
		rtts []int64
		want int64
	}{
		{name: "empty", rtts: nil, want: 0},
		{name: "odd", rtts: []int64{30, 10, 20}, want: 20},
		{name: "even", rtts: []int64{40, 10, 20, 30}, want: 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, medianRTT(tt.rtts))
		})
	}
}

func TestRemoveOutlierRTTs(t *testing.T) {
	assert.Equal(t, []int64{30, 32, 28}, removeOutlierRTTs([]int64{30, 32, 500, 28}))
	// small values are never outliers
	assert.Equal(t, []int64{1, 2, 15}, removeOutlierRTTs([]int64{1, 2, 15}))
}

func TestRTTTracker(t *testing.T) {
	r := &rttTracker{}
	assert.Zero(t, r.Latency())

	r.Add(40 * time.Millisecond)
	r.Add(60 * time.Millisecond)
	r.Add(900 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, r.Latency())

	for i := 0; i < maxRecentRTTs+5; i++ {
		r.Add(10 * time.Millisecond)
	}
	assert.Equal(t, 10*time.Millisecond, r.Latency())
	assert.Len(t, r.recentRTTs, maxRecentRTTs)

	r.Reset()
	assert.Zero(t, r.Latency())
}
