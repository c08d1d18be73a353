// Package stats reduces sets of sold-price samples into the summary
// statistics the deal evaluator works from. Outliers are removed with
// Tukey fences (1.5x IQR) before the expected sale price is derived.
package stats

import "sort"

// Summary holds the statistical reduction of a set of sale prices.
// Avg, Median, P25 and P75 describe the untrimmed sample; Min and Max
// describe the trimmed one, matching what gets cached and reported.
type Summary struct {
	SoldCount         int
	Avg               float64
	Median            float64
	Min               float64
	Max               float64
	P25               float64
	P75               float64
	Trimmed           []float64
	TrimmedCount      int
	ExpectedSalePrice float64
}

// Percentile computes a percentile over values using linear interpolation
// between order statistics: index = pct/100 * (n-1). Returns 0 for an
// empty slice. The input is not modified.
func Percentile(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) == 1 {
		return values[0]
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	index := pct / 100.0 * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper > len(sorted)-1 {
		upper = len(sorted) - 1
	}
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Summarize reduces a list of sale prices to summary statistics.
// An empty input yields a zero Summary; a single element is its own
// median, p25, p75, min and max, and IQR fencing is a no-op.
func Summarize(prices []float64) Summary {
	if len(prices) == 0 {
		return Summary{}
	}

	p25 := Percentile(prices, 25)
	p75 := Percentile(prices, 75)
	iqr := p75 - p25
	lowerBound := p25 - 1.5*iqr
	upperBound := p75 + 1.5*iqr

	trimmed := make([]float64, 0, len(prices))
	for _, p := range prices {
		if p >= lowerBound && p <= upperBound {
			trimmed = append(trimmed, p)
		}
	}
	// Degenerate fences can reject everything; fall back to the full sample.
	if len(trimmed) == 0 {
		trimmed = append(trimmed, prices...)
	}

	s := Summary{
		SoldCount:    len(prices),
		Avg:          mean(prices),
		Median:       median(prices),
		Min:          minOf(trimmed),
		Max:          maxOf(trimmed),
		P25:          p25,
		P75:          p75,
		Trimmed:      trimmed,
		TrimmedCount: len(trimmed),
	}

	trimmedMedian := median(trimmed)
	if trimmedMedian != 0 {
		s.ExpectedSalePrice = trimmedMedian
	} else {
		s.ExpectedSalePrice = mean(trimmed)
	}
	return s
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func median(values []float64) float64 {
	switch len(values) {
	case 0:
		return 0
	case 1:
		return values[0]
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
