// Package aggregate implements cohort statistics over decrypted records,
// gated by k-anonymity. The statistics functions are pure; the gate
// lives in Store and in the dispatcher, both of which decide on public
// cohort tags before any envelope is opened.
package aggregate

import (
	"math"
	"sort"
)

// AverageResult is the outcome of an average query.
type AverageResult struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Average computes mean, min and max of the values. An empty cohort
// returns the zero result; emptiness is a valid state, not an error.
func Average(values []float64) AverageResult {
	if len(values) == 0 {
		return AverageResult{}
	}

	result := AverageResult{
		Count: len(values),
		Min:   values[0],
		Max:   values[0],
	}

	sum := 0.0
	for _, v := range values {
		sum += v
		if v < result.Min {
			result.Min = v
		}
		if v > result.Max {
			result.Max = v
		}
	}
	result.Average = sum / float64(len(values))

	return result
}

// MedianResult is the outcome of a median query.
type MedianResult struct {
	Median float64 `json:"median"`
	Count  int     `json:"count"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
}

// Median computes the median and quartiles. The median of an even-length
// cohort is the mean of the two central values, rounded to the nearest
// integer; quartiles use nearest-rank interpolation.
func Median(values []float64) MedianResult {
	if len(values) == 0 {
		return MedianResult{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = math.Round((sorted[n/2-1] + sorted[n/2]) / 2)
	}

	return MedianResult{
		Median: median,
		Count:  n,
		Q1:     nearestRank(sorted, 0.25),
		Q3:     nearestRank(sorted, 0.75),
	}
}

func nearestRank(sorted []float64, q float64) float64 {
	idx := int(math.Round(q * float64(len(sorted)-1)))
	return sorted[idx]
}

// RankingResult is the outcome of a ranking query.
type RankingResult struct {
	Rank       int     `json:"rank"`
	Total      int     `json:"total"`
	Percentile float64 `json:"percentile"`
	TopPercent float64 `json:"topPercent"`
}

// Ranking positions a target value within the cohort: rank is the
// 1-based index of the first value at or below the target in a
// descending sort, so a target above every record ranks first and
// records equal to the target share the lower rank number. Percentile is
// the share of the cohort at or below the rank position; topPercent is
// rank over cohort size.
func Ranking(values []float64, target float64) RankingResult {
	if len(values) == 0 {
		return RankingResult{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	rank := len(sorted)
	for i, v := range sorted {
		if v <= target {
			rank = i + 1
			break
		}
	}

	total := len(sorted)
	return RankingResult{
		Rank:       rank,
		Total:      total,
		Percentile: float64(total-rank) / float64(total) * 100,
		TopPercent: float64(rank) / float64(total) * 100,
	}
}

// DistributionBucketCount is the fixed number of equal-width buckets.
const DistributionBucketCount = 5

// Bucket is one range of the distribution histogram.
type Bucket struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// DistributionResult is the outcome of a distribution query.
type DistributionResult struct {
	Buckets []Bucket `json:"buckets"`
	Count   int      `json:"count"`
}

// Distribution buckets the values into five equal-width ranges spanning
// [min, max]. A degenerate cohort where min equals max lands entirely in
// the first bucket.
func Distribution(values []float64) DistributionResult {
	if len(values) == 0 {
		return DistributionResult{Buckets: []Bucket{}}
	}

	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	width := (max - min) / DistributionBucketCount
	buckets := make([]Bucket, DistributionBucketCount)
	for i := range buckets {
		buckets[i] = Bucket{
			Lower: min + width*float64(i),
			Upper: min + width*float64(i+1),
		}
	}

	for _, v := range values {
		idx := 0
		if width > 0 {
			idx = int((v - min) / width)
			if idx >= DistributionBucketCount {
				// Max value belongs to the last bucket, inclusive.
				idx = DistributionBucketCount - 1
			}
		}
		buckets[idx].Count++
	}

	return DistributionResult{Buckets: buckets, Count: len(values)}
}

// ComparisonResult is the outcome of a comparison query.
type ComparisonResult struct {
	Average           float64 `json:"average"`
	Difference        float64 `json:"difference"`
	PercentDifference float64 `json:"percentDifference"`
	Count             int     `json:"count"`
}

// Comparison relates a target value to the cohort average.
func Comparison(values []float64, target float64) ComparisonResult {
	if len(values) == 0 {
		return ComparisonResult{}
	}

	avg := Average(values)
	diff := target - avg.Average
	pct := 0.0
	if avg.Average != 0 {
		pct = diff / avg.Average * 100
	}

	return ComparisonResult{
		Average:           avg.Average,
		Difference:        diff,
		PercentDifference: pct,
		Count:             avg.Count,
	}
}
