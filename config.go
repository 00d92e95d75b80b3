package palloc

import (
	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

// Config describes arenas and pools in TOML:
//
//	region_size = "16KiB"
//	max_small_alloc = "4095B"
//	memory_limit = "64MiB"
//	large_reuse_depth = 3
//	region_fail_threshold = 4
//	max_idle_arenas = 32
//
// Empty sizes and unset counts fall back to the package defaults; an empty
// memory_limit means no limit.
type Config struct {
	RegionSize          string `toml:"region_size"`
	MaxSmallAlloc       string `toml:"max_small_alloc"`
	MemoryLimit         string `toml:"memory_limit"`
	LargeReuseDepth     *int   `toml:"large_reuse_depth"`
	RegionFailThreshold *int   `toml:"region_fail_threshold"`
	MaxIdleArenas       int    `toml:"max_idle_arenas"`
}

// ParseConfig decodes a TOML document.
func ParseConfig(data string) (Config, error) {
	var c Config
	if _, err := toml.Decode(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "parse palloc config")
	}
	return c, nil
}

// LoadConfig decodes the TOML file at path.
func LoadConfig(path string) (Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, errors.Wrapf(err, "load palloc config %s", path)
	}
	return c, nil
}

func parseSize(name, s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", name)
	}
	return int(n), nil
}

// Region returns the configured region size, 0 meaning DefaultRegionSize.
func (c Config) Region() (int, error) {
	return parseSize("region_size", c.RegionSize)
}

// Options converts c into arena options. raw is the allocator to use; when
// memory_limit is set it is wrapped in a LimitAllocator shared by every
// arena built with the returned options.
func (c Config) Options(raw Allocator) ([]Option, error) {
	maxSmall, err := parseSize("max_small_alloc", c.MaxSmallAlloc)
	if err != nil {
		return nil, err
	}
	limit, err := parseSize("memory_limit", c.MemoryLimit)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = NewArrowAllocator(nil)
	}
	if limit > 0 {
		raw = NewLimitAllocator(raw, int64(limit))
	}

	opts := []Option{WithAllocator(raw)}
	if maxSmall > 0 {
		opts = append(opts, WithMaxSmallAlloc(maxSmall))
	}
	if c.LargeReuseDepth != nil {
		opts = append(opts, WithLargeReuseDepth(*c.LargeReuseDepth))
	}
	if c.RegionFailThreshold != nil {
		opts = append(opts, WithRegionFailThreshold(*c.RegionFailThreshold))
	}
	return opts, nil
}

// NewArena creates an arena as described by c.
func (c Config) NewArena(raw Allocator, extra ...Option) (*Arena, error) {
	size, err := c.Region()
	if err != nil {
		return nil, err
	}
	opts, err := c.Options(raw)
	if err != nil {
		return nil, err
	}
	return NewArena(size, append(opts, extra...)...)
}

// NewPool creates a pool as described by c.
func (c Config) NewPool(raw Allocator, extra ...Option) (*Pool, error) {
	size, err := c.Region()
	if err != nil {
		return nil, err
	}
	opts, err := c.Options(raw)
	if err != nil {
		return nil, err
	}
	return NewPool(size, c.MaxIdleArenas, append(opts, extra...)...), nil
}
