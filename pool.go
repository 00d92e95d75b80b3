package palloc

import "sync"

// Pool hands out arenas to concurrent units of work and recycles them.
// The lock guards only the idle list; an arena obtained from Get belongs to
// a single caller until it is given back with Put.
type Pool struct {
	mu      sync.Mutex
	idle    []*Arena
	size    int
	maxIdle int
	opts    []Option
	closed  bool
}

// NewPool creates a pool of arenas with regions of size bytes, keeping at
// most maxIdle reset arenas around for reuse.
func NewPool(size, maxIdle int, opts ...Option) *Pool {
	return &Pool{size: size, maxIdle: maxIdle, opts: opts}
}

// Get returns an idle arena, or a new one if none is idle.
func (p *Pool) Get() (*Arena, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		a := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		poolIdleGauge.Dec()
		poolGetReused.Inc()
		return a, nil
	}
	p.mu.Unlock()

	a, err := NewArena(p.size, p.opts...)
	if err != nil {
		return nil, err
	}
	poolGetCreated.Inc()
	return a, nil
}

// Put ends the unit of work that used a. Arenas with registered cleanups are
// destroyed so the cleanups run; the rest are reset and kept if there is
// room.
func (p *Pool) Put(a *Arena) {
	if len(a.cleanups) > 0 {
		a.Destroy()
		return
	}
	a.Reset()

	p.mu.Lock()
	if p.closed || len(p.idle) >= p.maxIdle {
		p.mu.Unlock()
		a.Destroy()
		return
	}
	p.idle = append(p.idle, a)
	p.mu.Unlock()
	poolIdleGauge.Inc()
}

// Close destroys all idle arenas. Arenas put back afterwards are destroyed.
func (p *Pool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	for _, a := range idle {
		a.Destroy()
	}
	poolIdleGauge.Sub(float64(len(idle)))
}

// Idle returns the number of arenas waiting for reuse.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
