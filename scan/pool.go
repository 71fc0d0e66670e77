package scan

import (
	"context"
	"sync/atomic"
)

// Pool bounds how many detections run at once. A slot is held for the whole
// detector call, including calls that outlive their scan.
type Pool struct {
	slots chan struct{}
	inUse atomic.Int64
}

// NewPool creates a pool with size slots. Sizes below one are raised to one.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Acquire waits for a free slot or until ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		p.inUse.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (p *Pool) Release() {
	p.inUse.Add(-1)
	<-p.slots
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return cap(p.slots)
}

// InUse returns the number of held slots.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// CollectMetrics reports pool occupancy to the profiler.
func (p *Pool) CollectMetrics() map[string]float64 {
	return map[string]float64{
		"pool.in_use": float64(p.InUse()),
		"pool.size":   float64(p.Size()),
	}
}
