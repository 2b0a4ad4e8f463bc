package locate

// RayPool holds the rays of one extraction run and marks which are consumed.
// Rays stay at their original index for the whole run.
type RayPool struct {
	rays     []Ray
	consumed []bool
	left     int
}

// NewRayPool wraps rays; none are consumed.
func NewRayPool(rays []Ray) *RayPool {
	return &RayPool{
		rays:     rays,
		consumed: make([]bool, len(rays)),
		left:     len(rays),
	}
}

// Len returns the number of rays not yet consumed.
func (p *RayPool) Len() int {
	return p.left
}

// Remaining returns the original indices of unconsumed rays in ascending order.
func (p *RayPool) Remaining() []int {
	idx := make([]int, 0, p.left)
	for i, used := range p.consumed {
		if !used {
			idx = append(idx, i)
		}
	}
	return idx
}

// Rays returns the rays at the given original indices.
func (p *RayPool) Rays(indices []int) []Ray {
	out := make([]Ray, len(indices))
	for i, idx := range indices {
		out[i] = p.rays[idx]
	}
	return out
}

// Consume marks the given original indices as used. Already-consumed indices are ignored.
func (p *RayPool) Consume(indices []int) {
	for _, idx := range indices {
		if !p.consumed[idx] {
			p.consumed[idx] = true
			p.left--
		}
	}
}

// IsConsumed reports whether ray idx has been attributed to a target.
func (p *RayPool) IsConsumed(idx int) bool {
	return p.consumed[idx]
}
