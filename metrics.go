package palloc

import "github.com/prometheus/client_golang/prometheus"

// SizeInUse returns the number of region bytes handed out, including
// headers and alignment padding. Large allocations are not included.
func (a *Arena) SizeInUse() int {
	sum := 0
	for i := range a.regions {
		sum += a.regions[i].cursor
	}
	return sum
}

// NumRegions returns the number of regions in the chain.
func (a *Arena) NumRegions() int {
	return len(a.regions)
}

// Capacity returns the total size in bytes of all regions.
func (a *Arena) Capacity() int {
	sum := 0
	for i := range a.regions {
		sum += len(a.regions[i].buf)
	}
	return sum
}

// Utilization returns the ratio of bytes in use to capacity (0.0 to 1.0).
func (a *Arena) Utilization() float64 {
	capacity := a.Capacity()
	if capacity == 0 {
		return 0
	}
	return float64(a.SizeInUse()) / float64(capacity)
}

// RegionSize returns the size of every region of the arena.
func (a *Arena) RegionSize() int {
	if len(a.regions) == 0 {
		return 0
	}
	return len(a.regions[0].buf)
}

// Metrics returns a snapshot of arena statistics.
func (a *Arena) Metrics() ArenaMetrics {
	if a.regions == nil {
		return ArenaMetrics{}
	}
	m := ArenaMetrics{
		SizeInUse:     a.SizeInUse(),
		Capacity:      a.Capacity(),
		NumRegions:    a.NumRegions(),
		RegionSize:    a.RegionSize(),
		Current:       a.current,
		LargeSlots:    len(a.large),
		Cleanups:      len(a.cleanups),
		MaxSmallAlloc: a.max,
		Utilization:   a.Utilization(),
	}
	for i := range a.large {
		if b := a.large[i].buf; b != nil {
			m.LargeAllocs++
			m.LargeBytes += len(b)
		}
	}
	return m
}

// ArenaMetrics contains statistical information about an arena.
type ArenaMetrics struct {
	SizeInUse     int     // Region bytes handed out
	Capacity      int     // Total region bytes
	NumRegions    int     // Number of regions
	RegionSize    int     // Size of each region
	Current       int     // Index of the first region tried
	LargeAllocs   int     // Live large allocations
	LargeBytes    int     // Bytes held by live large allocations
	LargeSlots    int     // Large-allocation slots, free ones included
	Cleanups      int     // Registered cleanups
	MaxSmallAlloc int     // Small-allocation ceiling
	Utilization   float64 // SizeInUse / Capacity
}

var (
	regionsGrown = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "palloc",
			Subsystem: "arena",
			Name:      "regions_grown_total",
			Help:      "Total number of regions added to arenas after creation.",
		})
	largeAllocs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "palloc",
			Subsystem: "arena",
			Name:      "large_allocs_total",
			Help:      "Total number of allocations served by the raw allocator.",
		})

	poolGetCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "palloc",
			Subsystem: "pool",
			Name:      "get_total",
			Help:      "Total number of arenas handed out by pools.",
		}, []string{"source"})
	poolGetReused  = poolGetCounter.WithLabelValues("reused")
	poolGetCreated = poolGetCounter.WithLabelValues("created")

	poolIdleGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "palloc",
			Subsystem: "pool",
			Name:      "idle_arenas",
			Help:      "Number of reset arenas waiting in pools.",
		})
)

// RegisterMetrics registers the package collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{regionsGrown, largeAllocs, poolGetCounter, poolIdleGauge} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
