package hdl32e

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DISTANCE_RESOLUTION converts raw range units to meters (2mm per LSB).
const DISTANCE_RESOLUTION = 0.002

// Summary describes the returns carried by one or more measurement blocks.
type Summary struct {
	Returns         int     // Non-zero range measurements
	Measurements    int     // Total beam measurements
	MeanRangeMeters float64 // Mean of non-zero ranges
	StdRangeMeters  float64 // Sample standard deviation of non-zero ranges
	MeanIntensity   float64 // Mean intensity of non-zero ranges
}

// ReturnFraction is the share of measurements that produced a return.
func (s Summary) ReturnFraction() float64 {
	if s.Measurements == 0 {
		return 0
	}
	return float64(s.Returns) / float64(s.Measurements)
}

// SummaryAccumulator pools per-block statistics so a whole mount can be
// summarised without holding every sample. The zero value is ready to use.
type SummaryAccumulator struct {
	counts         []float64
	rangeMeans     []float64
	rangeVars      []float64
	intensityMeans []float64
	measurements   int
}

// Add records every beam measurement in block. Zero ranges are invalid
// returns and only count towards Measurements.
func (a *SummaryAccumulator) Add(block *MeasurementBlock) {
	var ranges, intensities []float64
	for beam := 0; beam < BEAMS; beam++ {
		for col, r := range block.Ranges[beam] {
			a.measurements++
			if r == 0 {
				continue
			}
			ranges = append(ranges, float64(r)*DISTANCE_RESOLUTION)
			intensities = append(intensities, float64(block.Intensities[beam][col]))
		}
	}
	if len(ranges) == 0 {
		return
	}

	mean, variance := stat.MeanVariance(ranges, nil)
	if len(ranges) < 2 {
		variance = 0
	}
	a.counts = append(a.counts, float64(len(ranges)))
	a.rangeMeans = append(a.rangeMeans, mean)
	a.rangeVars = append(a.rangeVars, variance)
	a.intensityMeans = append(a.intensityMeans, stat.Mean(intensities, nil))
}

// Summary computes the statistics gathered so far.
func (a *SummaryAccumulator) Summary() Summary {
	s := Summary{Measurements: a.measurements}
	if len(a.counts) == 0 {
		return s
	}

	var total float64
	for _, n := range a.counts {
		total += n
	}
	s.Returns = int(total)
	s.MeanRangeMeters = stat.Mean(a.rangeMeans, a.counts)
	s.MeanIntensity = stat.Mean(a.intensityMeans, a.counts)

	// Pooled sample variance across blocks.
	if total > 1 {
		var ss float64
		for i, n := range a.counts {
			d := a.rangeMeans[i] - s.MeanRangeMeters
			ss += (n-1)*a.rangeVars[i] + n*d*d
		}
		s.StdRangeMeters = math.Sqrt(ss / (total - 1))
	}
	return s
}

// Summarize is a convenience for a single block.
func Summarize(block *MeasurementBlock) Summary {
	var a SummaryAccumulator
	a.Add(block)
	return a.Summary()
}
