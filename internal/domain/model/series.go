package model

// HistorySeries is a fixed-capacity FIFO of history points. Once full, each
// Append evicts the oldest point. It is not safe for concurrent use; the
// history store serialises access per driver.
//
// A nil *HistorySeries behaves as an empty series of zero capacity.
type HistorySeries struct {
	data  []HistoryPoint
	count int
	head  int // index of the oldest point
}

// NewHistorySeries creates a series holding at most capacity points.
// It panics if capacity is not positive.
func NewHistorySeries(capacity int) *HistorySeries {
	if capacity <= 0 {
		panic("history series capacity must be positive")
	}
	return &HistorySeries{data: make([]HistoryPoint, capacity)}
}

// Append adds p as the newest point, evicting the oldest when full.
func (s *HistorySeries) Append(p HistoryPoint) {
	size := len(s.data)
	tail := (s.head + s.count) % size
	s.data[tail] = p
	if s.count < size {
		s.count++
		return
	}
	s.head = (s.head + 1) % size
}

// Len returns the number of points held.
func (s *HistorySeries) Len() int {
	if s == nil {
		return 0
	}
	return s.count
}

// Cap returns the maximum number of points held.
func (s *HistorySeries) Cap() int {
	if s == nil {
		return 0
	}
	return len(s.data)
}

// At returns the i-th point, 0 being the oldest. It panics when out of range.
func (s *HistorySeries) At(i int) HistoryPoint {
	if i < 0 || i >= s.Len() {
		panic("history series index out of range")
	}
	return s.data[(s.head+i)%len(s.data)]
}

// Last returns the newest point and whether one exists.
func (s *HistorySeries) Last() (HistoryPoint, bool) {
	if s.Len() == 0 {
		return HistoryPoint{}, false
	}
	return s.At(s.count - 1), true
}

// Points returns a copy of the series, oldest first.
func (s *HistorySeries) Points() []HistoryPoint {
	out := make([]HistoryPoint, s.Len())
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}
