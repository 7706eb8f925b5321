package ratelimiter

import (
	"sync"
	"time"
)

// SlidingWindowCounter splits the window into buckets and sums the buckets
// still inside it. Cheaper than a timestamp log and smoother than a fixed
// window at its edges.
type SlidingWindowCounter struct {
	limit      int
	numBuckets int
	bucketSize time.Duration
	buckets    []int
	current    int
	last       time.Time
	now        func() time.Time
	mutex      sync.Mutex
}

// NewSlidingWindowCounter creates a SlidingWindowCounter. numBuckets <= 0 means 10.
func NewSlidingWindowCounter(limit int, window time.Duration, numBuckets int) *SlidingWindowCounter {
	return newSlidingWindowCounter(limit, window, numBuckets, time.Now)
}

func newSlidingWindowCounter(limit int, window time.Duration, numBuckets int, now func() time.Time) *SlidingWindowCounter {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	return &SlidingWindowCounter{
		limit:      limit,
		numBuckets: numBuckets,
		bucketSize: window / time.Duration(numBuckets),
		buckets:    make([]int, numBuckets),
		last:       now(),
		now:        now,
	}
}

func (swc *SlidingWindowCounter) slide() {
	now := swc.now()
	steps := int(now.Sub(swc.last) / swc.bucketSize)
	if steps <= 0 {
		return
	}
	if steps >= swc.numBuckets {
		for i := range swc.buckets {
			swc.buckets[i] = 0
		}
	} else {
		for i := 1; i <= steps; i++ {
			swc.buckets[(swc.current+i)%swc.numBuckets] = 0
		}
	}
	swc.current = (swc.current + steps) % swc.numBuckets
	swc.last = swc.last.Add(time.Duration(steps) * swc.bucketSize)
}

// Allow counts the request if the window total is under the limit.
func (swc *SlidingWindowCounter) Allow() bool {
	swc.mutex.Lock()
	defer swc.mutex.Unlock()

	swc.slide()

	total := 0
	for _, n := range swc.buckets {
		total += n
	}
	if total < swc.limit {
		swc.buckets[swc.current]++
		return true
	}
	return false
}
