package queue

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks queue activity.
type Statistics struct {
	pushes    int64
	pulls     int64
	blocks    int64
	discarded int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Push records an accepted item.
func (s *Statistics) Push() {
	atomic.AddInt64(&s.pushes, 1)
}

// Pull records a removed item.
func (s *Statistics) Pull() {
	atomic.AddInt64(&s.pulls, 1)
}

// Block records a push that had to wait for space.
func (s *Statistics) Block() {
	atomic.AddInt64(&s.blocks, 1)
}

// Discard records items dropped by Close.
func (s *Statistics) Discard(n int64) {
	atomic.AddInt64(&s.discarded, n)
}

// UpdateSize updates the current queue size.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Pushes returns the number of accepted items.
func (s *Statistics) Pushes() int64 {
	return atomic.LoadInt64(&s.pushes)
}

// Pulls returns the number of removed items.
func (s *Statistics) Pulls() int64 {
	return atomic.LoadInt64(&s.pulls)
}

// Blocks returns how many pushes waited for space.
func (s *Statistics) Blocks() int64 {
	return atomic.LoadInt64(&s.blocks)
}

// Discarded returns how many items Close dropped.
func (s *Statistics) Discarded() int64 {
	return atomic.LoadInt64(&s.discarded)
}

// CurrentSize returns the current number of queued items.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the largest number of items the queue has held.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// Uptime returns how long the queue has existed.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// StatsSummary is a snapshot of all statistics.
type StatsSummary struct {
	Pushes      int64         `json:"pushes"`
	Pulls       int64         `json:"pulls"`
	Blocks      int64         `json:"blocks"`
	Discarded   int64         `json:"discarded"`
	CurrentSize int64         `json:"current_size"`
	MaxSize     int64         `json:"max_size"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Pushes:      s.Pushes(),
		Pulls:       s.Pulls(),
		Blocks:      s.Blocks(),
		Discarded:   s.Discarded(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		Uptime:      s.Uptime(),
	}
}
