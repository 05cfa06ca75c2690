package zoom

// Bits is the packed zoom-level availability bit-field stored in the
// tile_set.max_zoom column: bit n set means zoom level n has been generated
// and uploaded. Updates are commutative unions, so concurrent completions of
// different zoom-range jobs for the same tile set never clobber each other.
type Bits uint32

// maxLevel bounds the representable zoom levels (uint32 column).
const maxLevel = 31

// FromRange returns the bits for every level in [minZoom, maxZoom]. Levels
// outside [0, 31] are ignored.
func FromRange(minZoom, maxZoom int) Bits {
	var b Bits
	if minZoom < 0 {
		minZoom = 0
	}
	if maxZoom > maxLevel {
		maxZoom = maxLevel
	}
	for level := minZoom; level <= maxZoom; level++ {
		b |= 1 << uint(level)
	}
	return b
}

// Has reports whether the given zoom level's bit is set.
func (b Bits) Has(level int) bool {
	if level < 0 || level > maxLevel {
		return false
	}
	return b&(1<<uint(level)) != 0
}

// Union returns the combined bit-field. Associative and commutative: this is
// the only legal way to fold a completed range into the stored value.
func (b Bits) Union(other Bits) Bits {
	return b | other
}

// MaxContiguous returns the highest level m such that every level in
// [minZoom, m] is available. The viewer can only offer zoom levels with no
// gaps below them. Returns minZoom-1 when even minZoom is missing.
func (b Bits) MaxContiguous(minZoom int) int {
	level := minZoom
	for level <= maxLevel && b.Has(level) {
		level++
	}
	return level - 1
}

// Levels returns the set zoom levels in ascending order.
func (b Bits) Levels() []int {
	var levels []int
	for level := 0; level <= maxLevel; level++ {
		if b.Has(level) {
			levels = append(levels, level)
		}
	}
	return levels
}

// Value returns the raw column value.
func (b Bits) Value() uint32 {
	return uint32(b)
}
