package md

import (
	"rsicross/internal/indicator"
)

// RingBuffer keeps the most recent bars of one symbol.
type RingBuffer struct {
	points []indicator.Point
	size   int
	index  int
	filled bool
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		points: make([]indicator.Point, size),
		size:   size,
	}
}

// Add appends a point. Points not newer than the last one are dropped so the
// buffer always yields a valid PriceSeries; it reports whether p was kept.
func (r *RingBuffer) Add(p indicator.Point) bool {
	if last, ok := r.last(); ok && !p.Time.After(last.Time) {
		return false
	}
	r.points[r.index] = p
	r.index = (r.index + 1) % r.size
	if r.index == 0 {
		r.filled = true
	}
	return true
}

func (r *RingBuffer) Len() int {
	if r.filled {
		return r.size
	}
	return r.index
}

// Series returns the buffered points oldest first.
func (r *RingBuffer) Series() indicator.PriceSeries {
	length := r.Len()
	result := make(indicator.PriceSeries, 0, length)
	if length == 0 {
		return result
	}
	if r.filled {
		result = append(result, r.points[r.index:]...)
	}
	result = append(result, r.points[:r.index]...)
	return result
}

func (r *RingBuffer) last() (indicator.Point, bool) {
	if r.Len() == 0 {
		return indicator.Point{}, false
	}
	return r.points[(r.index-1+r.size)%r.size], true
}
