package tpx3

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gridWith(width, height int, cells map[[2]int]uint16) []uint16 {
	frame := make([]uint16, width*height)
	for xy, v := range cells {
		frame[xy[1]*width+xy[0]] = v
	}
	return frame
}

func TestSearchFrameEmpty(t *testing.T) {
	frame := make([]uint16, 8*8)
	assert.Empty(t, SearchFrame(frame, 8, 8))
}

func TestSearchFrameSinglePixel(t *testing.T) {
	frame := gridWith(8, 8, map[[2]int]uint16{{3, 5}: 42})

	clusters := SearchFrame(frame, 8, 8)
	require.Len(t, clusters, 1)
	require.Len(t, clusters[0].Pixels, 1)

	p := clusters[0].Pixels[0]
	assert.Equal(t, uint8(3), p.X)
	assert.Equal(t, uint8(5), p.Y)
	assert.Equal(t, uint16(42), p.Value)
	assert.Zero(t, p.NeighborMask)
	assert.Equal(t, [8]int8{-1, -1, -1, -1, -1, -1, -1, -1}, p.Neighbors)
}

func TestSearchFrameHorizontalPair(t *testing.T) {
	frame := gridWith(8, 8, map[[2]int]uint16{{1, 1}: 10, {2, 1}: 20})

	clusters := SearchFrame(frame, 8, 8)
	require.Len(t, clusters, 1)
	require.Len(t, clusters[0].Pixels, 2)

	// seed first (raster order), east neighbour second
	seed := clusters[0].Pixels[0]
	assert.Equal(t, uint8(1), seed.X)
	assert.Equal(t, uint8(1), seed.Y)
	assert.Equal(t, uint8(1<<4), seed.NeighborMask) // E only
	assert.Equal(t, int8(1), seed.Neighbors[4])

	east := clusters[0].Pixels[1]
	assert.Equal(t, uint8(2), east.X)
	assert.Equal(t, uint8(1), east.Y)
	assert.Equal(t, uint8(1<<0), east.NeighborMask) // W only
	assert.Equal(t, int8(0), east.Neighbors[0])
}

// A filled 2x2 square exercises the historical neighbour bookkeeping: the
// seed discovers N, NE and E in one sweep and every discovery is ledgered as
// seed position + 1, so all three references read 1 even though NE and E land
// at cluster positions 2 and 3.
func TestSearchFrameSquareNeighborLedger(t *testing.T) {
	frame := gridWith(8, 8, map[[2]int]uint16{
		{1, 1}: 5, {2, 1}: 5, {1, 2}: 5, {2, 2}: 5,
	})

	clusters := SearchFrame(frame, 8, 8)
	require.Len(t, clusters, 1)
	require.Len(t, clusters[0].Pixels, 4)

	// discovery order: seed, then N, NE, E of the seed
	order := [][2]uint8{{1, 1}, {1, 2}, {2, 2}, {2, 1}}
	for i, want := range order {
		p := clusters[0].Pixels[i]
		assert.Equal(t, want, [2]uint8{p.X, p.Y}, "pixel %d", i)
	}

	seed := clusters[0].Pixels[0]
	assert.Equal(t, uint8(1<<2|1<<3|1<<4), seed.NeighborMask)
	assert.Equal(t, int8(1), seed.Neighbors[2]) // N, true position 1
	assert.Equal(t, int8(1), seed.Neighbors[3]) // NE, true position 2
	assert.Equal(t, int8(1), seed.Neighbors[4]) // E, true position 3
}

func TestSearchFrameDiagonalConnectivity(t *testing.T) {
	frame := gridWith(8, 8, map[[2]int]uint16{{0, 0}: 1, {1, 1}: 1, {2, 2}: 1})

	clusters := SearchFrame(frame, 8, 8)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Pixels, 3)
}

func TestSearchFrameSeparateClusters(t *testing.T) {
	// two hits with a full empty ring between them
	frame := gridWith(8, 8, map[[2]int]uint16{{0, 0}: 1, {4, 4}: 1, {4, 5}: 1})

	clusters := SearchFrame(frame, 8, 8)
	require.Len(t, clusters, 2)
	assert.Len(t, clusters[0].Pixels, 1)
	assert.Len(t, clusters[1].Pixels, 2)
}

func TestSearchFrameDeterministic(t *testing.T) {
	frame := gridWith(16, 16, map[[2]int]uint16{
		{1, 1}: 9, {2, 1}: 8, {2, 2}: 7,
		{10, 3}: 6, {11, 4}: 5,
		{0, 15}: 4, {15, 15}: 3,
	})

	first := SearchFrame(frame, 16, 16)
	second := SearchFrame(frame, 16, 16)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated runs differ (-first +second):\n%s", diff)
	}
}

// Every nonzero cell must land in exactly one cluster with its grid value
// intact, and zero cells in none, whatever the occupancy pattern.
func TestSearchFramePartitionProperty(t *testing.T) {
	const width, height = 16, 16

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("clusters partition the nonzero cells", prop.ForAll(
		func(cells []uint16) bool {
			frame := make([]uint16, width*height)
			copy(frame, cells)

			seen := make(map[int]int)
			for _, cluster := range SearchFrame(frame, width, height) {
				if len(cluster.Pixels) == 0 {
					return false
				}
				for _, p := range cluster.Pixels {
					idx := int(p.Y)*width + int(p.X)
					seen[idx]++
					if frame[idx] != p.Value {
						return false
					}
				}
			}

			nonzero := 0
			for idx, v := range frame {
				if v == 0 {
					if seen[idx] != 0 {
						return false
					}
					continue
				}
				nonzero++
				if seen[idx] != 1 {
					return false
				}
			}
			return len(seen) == nonzero
		},
		gen.SliceOfN(width*height, gen.UInt16Range(0, 2)),
	))

	properties.TestingRun(t)
}
