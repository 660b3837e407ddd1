package tpx3

// Connected-component labelling over the iToT grid. A cluster is a maximal
// 8-connected group of nonzero cells and approximates one particle
// interaction. Seed order is ascending linear index and growth is
// breadth-first in a fixed direction order, so the output is deterministic
// for a given grid.

// Neighbour direction order: {W, NW, N, NE, E, SE, S, SW}. Offsets are
// (dx, dy) pairs; indexes into a Pixel's neighbour table use this order.
var (
	dirX = [8]int8{-1, -1, 0, 1, 1, 1, 0, -1}
	dirY = [8]int8{0, 1, 1, 1, 0, -1, -1, -1}
)

// untested marks a ledger cell not yet assigned to any cluster.
const untested = -1

// Pixel is one cluster member. Neighbors[d] holds a cluster-local reference
// for the occupied neighbour in direction d, or -1; NeighborMask has bit d
// set when the entry is present.
//
// The stored reference reproduces the instrument software's historical
// bookkeeping: for a freshly discovered neighbour the ledger records the
// expanding pixel's own position (offset by one), not the neighbour's, so
// the reference is only guaranteed to identify the neighbour's true
// position when the expanding pixel was the most recently appended one.
// Cluster membership and counts are unaffected. Kept as observed; do not
// rely on these indices for graph traversal.
type Pixel struct {
	X, Y         uint8
	Value        uint16
	Value2       uint16
	NeighborMask uint8
	Neighbors    [8]int8
}

// NewPixel returns a Pixel with all neighbour entries absent.
func NewPixel(x, y uint8, value uint16) Pixel {
	return Pixel{
		X:         x,
		Y:         y,
		Value:     value,
		Neighbors: [8]int8{-1, -1, -1, -1, -1, -1, -1, -1},
	}
}

// AddNeighbor records a neighbour reference in direction dir and sets the
// occupancy bit.
func (p *Pixel) AddNeighbor(dir int, pixIdx int8) {
	p.Neighbors[dir] = pixIdx
	p.NeighborMask |= 1 << dir
}

// Cluster is an ordered pixel sequence; insertion order is discovery order
// (seed first, then breadth-first neighbours).
type Cluster struct {
	Pixels []Pixel
}

// AddPixel appends a pixel to the cluster.
func (c *Cluster) AddPixel(p Pixel) {
	c.Pixels = append(c.Pixels, p)
}

// SearchFrame partitions the nonzero cells of frame (a width*height grid in
// row-major order) into 8-connected clusters. Every nonzero cell lands in
// exactly one cluster; zero cells belong to none. The visitation ledger is
// allocated per call, so concurrent calls on different frames are safe.
func SearchFrame(frame []uint16, width, height int64) []Cluster {
	var clusters []Cluster

	mask := make([]int64, len(frame))
	for i := range mask {
		mask[i] = untested
	}

	for idx, value := range frame {
		if value == 0 || mask[idx] != untested {
			continue
		}

		x := uint8(idx % int(width))
		y := uint8(idx / int(width))

		var cluster Cluster
		cluster.AddPixel(NewPixel(x, y, value))
		mask[idx] = 0

		// Walk the cluster's own pixel sequence; pixels are appended as
		// they are found, so the loop bound grows during iteration.
		for pixIdx := 0; pixIdx < len(cluster.Pixels); pixIdx++ {
			px := int64(cluster.Pixels[pixIdx].X)
			py := int64(cluster.Pixels[pixIdx].Y)

			for dir := 0; dir < 8; dir++ {
				dx := px + int64(dirX[dir])
				dy := py + int64(dirY[dir])
				if dx < 0 || dy < 0 || dx >= width || dy >= height {
					continue
				}

				didx := dy*width + dx
				if frame[didx] == 0 {
					continue
				}

				if mask[didx] == untested {
					cluster.AddPixel(NewPixel(uint8(dx), uint8(dy), frame[didx]))
					mask[didx] = int64(pixIdx + 1)
				}

				cluster.Pixels[pixIdx].AddNeighbor(dir, int8(mask[didx]))
			}
		}

		clusters = append(clusters, cluster)
	}

	return clusters
}
