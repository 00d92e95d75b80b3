package palloc

import "go.uber.org/zap"

type options struct {
	raw           Allocator
	log           *zap.Logger
	maxSmall      int
	reuseDepth    int
	failThreshold int
}

// Option configures an Arena.
type Option func(*options)

func defaultOptions() options {
	return options{
		maxSmall:      MaxSmallAlloc,
		reuseDepth:    DefaultLargeReuseDepth,
		failThreshold: DefaultRegionFailThreshold,
	}
}

// WithAllocator sets the raw allocator regions and large allocations come
// from. The default is an ArrowAllocator over memory.DefaultAllocator.
func WithAllocator(raw Allocator) Option {
	return func(o *options) { o.raw = raw }
}

// WithLogger sets the logger used for debug tracing and cleanup failures.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMaxSmallAlloc lowers the small-allocation ceiling. Values above
// MaxSmallAlloc are clamped.
func WithMaxSmallAlloc(n int) Option {
	return func(o *options) { o.maxSmall = n }
}

// WithLargeReuseDepth sets how many slots past the newest one are searched
// for a free large-allocation slot.
func WithLargeReuseDepth(n int) Option {
	return func(o *options) { o.reuseDepth = n }
}

// WithRegionFailThreshold sets how many times a region may be skipped before
// allocations stop trying it first.
func WithRegionFailThreshold(n int) Option {
	return func(o *options) { o.failThreshold = n }
}
