package core

import "math"

// PageSize is the window used by infinite-scroll pagination.
const PageSize = 20

// RandomOffset computes the pseudo-random page offset used for shuffled
// pagination: floor((seed+pageIndex)*7919) mod max(1, totalCount-pageSize).
// Deterministic for a fixed seed so pages stay stable while scrolling.
// This is a weak shuffler, not a uniform sampler; small tables degrade
// to offset 0.
func RandomOffset(seed float64, pageIndex, totalCount, pageSize int) int {
	window := totalCount - pageSize
	if window < 1 {
		window = 1
	}
	return int(math.Floor((seed+float64(pageIndex))*7919)) % window
}
