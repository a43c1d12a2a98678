package notify

import "sync"

// Categories the backend aggregates unread counts by.
const (
	CategoryMessages    = "messages"
	CategoryCourses     = "courses"
	CategoryEvaluations = "evaluations"
	CategorySystem      = "system"
)

// Counters holds per-category unread counts for the current session.
// Nothing is persisted; a fresh login starts from the backend's
// fetch-all-counts response.
type Counters struct {
	mu     sync.RWMutex
	counts map[string]int
}

func NewCounters() *Counters {
	return &Counters{counts: make(map[string]int)}
}

// Replace overwrites every count, typically from a fetch-all
// response.
func (c *Counters) Replace(counts map[string]int) {
	c.mu.Lock()
	c.counts = make(map[string]int, len(counts))
	for tag, n := range counts {
		c.counts[tag] = n
	}
	c.mu.Unlock()
}

func (c *Counters) Count(tag string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[tag]
}

func (c *Counters) Increment(tag string) {
	c.mu.Lock()
	c.counts[tag]++
	c.mu.Unlock()
}

func (c *Counters) Reset(tag string) {
	c.mu.Lock()
	delete(c.counts, tag)
	c.mu.Unlock()
}

// ResetAll zeroes everything, mirroring mark-all-as-read.
func (c *Counters) ResetAll() {
	c.mu.Lock()
	c.counts = make(map[string]int)
	c.mu.Unlock()
}

func (c *Counters) Total() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}
