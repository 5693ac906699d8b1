package sampler

import (
	"context"
	"sync"
	"time"
)

// DefaultRefreshRate is the redraw rate of the wall clock scheduler.
const DefaultRefreshRate = 60

// ID identifies a pending redraw request.
type ID uint64

// Callback is invoked with the time elapsed since the scheduler started running.
type Callback func(now time.Duration)

// Scheduler hands out redraw opportunities, the way a display refresh does.
// Requested callbacks run once, on the next opportunity; a loop re-requests
// itself from within its callback.
type Scheduler interface {
	// Request schedules fn for the next redraw opportunity.
	Request(fn Callback) ID
	// Cancel removes a pending request. Unknown or already run IDs are ignored.
	Cancel(id ID)
	// Run delivers redraw opportunities until no request is pending or ctx is done.
	Run(ctx context.Context) error
}

// queue holds the pending callbacks shared by the scheduler implementations.
type queue struct {
	mu      sync.Mutex
	next    ID
	pending map[ID]Callback
	order   []ID
}

func (q *queue) Request(fn Callback) ID {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == nil {
		q.pending = make(map[ID]Callback)
	}
	q.next++
	q.pending[q.next] = fn
	q.order = append(q.order, q.next)
	return q.next
}

func (q *queue) Cancel(id ID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.pending, id)
}

// flush runs every callback requested before the call, in request order.
// Callbacks requested meanwhile wait for the next opportunity.
// It reports whether any request is still pending afterwards.
func (q *queue) flush(now time.Duration) bool {
	q.mu.Lock()
	order := q.order
	q.order = nil
	q.mu.Unlock()

	for _, id := range order {
		q.mu.Lock()
		fn, ok := q.pending[id]
		delete(q.pending, id)
		q.mu.Unlock()
		if ok {
			fn(now)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending) > 0
}

func (q *queue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending) == 0
}

// TickerScheduler delivers redraw opportunities on the wall clock.
type TickerScheduler struct {
	queue
	period time.Duration
}

// NewTickerScheduler returns a wall clock scheduler refreshing rate times per second.
func NewTickerScheduler(rate int) *TickerScheduler {
	if rate <= 0 {
		rate = DefaultRefreshRate
	}
	return &TickerScheduler{period: time.Second / time.Duration(rate)}
}

// Run implements Scheduler. The first opportunity is delivered immediately.
func (s *TickerScheduler) Run(ctx context.Context) error {
	if s.empty() {
		return nil
	}
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.flush(time.Since(start)) {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// VirtualScheduler advances a virtual clock by a fixed step on every
// opportunity, without waiting. Renders are deterministic for a given step.
type VirtualScheduler struct {
	queue
	step time.Duration
}

// NewVirtualScheduler returns a scheduler whose clock advances by step per opportunity.
func NewVirtualScheduler(step time.Duration) *VirtualScheduler {
	if step <= 0 {
		step = time.Second / DefaultRefreshRate
	}
	return &VirtualScheduler{step: step}
}

// Run implements Scheduler. The first opportunity happens at time zero.
func (s *VirtualScheduler) Run(ctx context.Context) error {
	for now := time.Duration(0); ; now += s.step {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.flush(now) {
			return nil
		}
	}
}
