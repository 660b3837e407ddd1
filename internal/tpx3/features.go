package tpx3

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ClusterFeatures summarises one cluster for persistence and the API.
// Centroid coordinates are value-weighted; the quantile uses the sorted
// per-pixel iToT values.
type ClusterFeatures struct {
	Size      int
	CentroidX float64
	CentroidY float64
	MeanITOT  float64
	MaxITOT   uint16
	TotalITOT uint64
	ITOTP95   float64
}

// Features computes summary statistics for the cluster. Sentinel-valued
// pixels (failed calibration) participate like any other hit; they are rare
// and excluding them would break the size/partition accounting.
func (c *Cluster) Features() ClusterFeatures {
	n := len(c.Pixels)
	if n == 0 {
		return ClusterFeatures{}
	}

	values := make([]float64, n)
	var weightedX, weightedY, totalWeight float64
	var total uint64
	var max uint16

	for i, p := range c.Pixels {
		v := float64(p.Value)
		values[i] = v
		weightedX += float64(p.X) * v
		weightedY += float64(p.Y) * v
		totalWeight += v
		total += uint64(p.Value)
		if p.Value > max {
			max = p.Value
		}
	}

	sort.Float64s(values)

	return ClusterFeatures{
		Size:      n,
		CentroidX: weightedX / totalWeight,
		CentroidY: weightedY / totalWeight,
		MeanITOT:  stat.Mean(values, nil),
		MaxITOT:   max,
		TotalITOT: total,
		ITOTP95:   stat.Quantile(0.95, stat.Empirical, values, nil),
	}
}
