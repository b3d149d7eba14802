package hoard

// Config collects the allocator's compile-time tunables (spec §6) as
// overridable fields. The zero Config is the reference configuration:
// every zero field is replaced by its Default* constant in New.
type Config struct {
	// SuperblockSize is S, the size in bytes of a superblock's data area.
	SuperblockSize int

	// NumberOfHeaps is N, the number of per-goroutine heaps. Heap 0 (the
	// global heap) is always present in addition to these N.
	NumberOfHeaps int

	// HoardK and HoardEmptyFraction parameterize the under-utilization
	// test a per-goroutine heap must satisfy before a superblock is
	// transferred back to the global heap: u < a*(1-HoardEmptyFraction)
	// AND u < a-HoardK*SuperblockSize.
	HoardK             int
	HoardEmptyFraction float64

	// NumberOfSizeClasses bounds the small-allocation path: requests are
	// classified into classes 2^0 .. 2^(NumberOfSizeClasses-1); anything
	// larger than SuperblockSize/2 takes the large-block path regardless.
	NumberOfSizeClasses int
}

func (c Config) withDefaults() Config {
	if c.SuperblockSize == 0 {
		c.SuperblockSize = DefaultSuperblockSize
	}
	if c.NumberOfHeaps == 0 {
		c.NumberOfHeaps = DefaultNumberOfHeaps
	}
	if c.HoardEmptyFraction == 0 {
		c.HoardEmptyFraction = DefaultHoardEmptyFraction
	}
	if c.NumberOfSizeClasses == 0 {
		c.NumberOfSizeClasses = DefaultNumberOfSizeClasses
	}
	// HoardK's reference default is already 0, so there is nothing to
	// normalize for it: a caller-supplied 0 and an unset field are
	// indistinguishable, and indistinguishable from the spec's own
	// HOARD_K = 0.
	//
	// HoardEmptyFraction has no such luck: its reference default is 0.25,
	// so an unset field and an explicit request for HoardEmptyFraction =
	// 0 (transfer governed by HoardK alone) are indistinguishable here
	// and the latter silently becomes 0.25. This falls out of the zero-
	// Config-means-defaults contract New documents; a caller who needs
	// 0 exactly has no way to express it through Config today.
	return c
}
