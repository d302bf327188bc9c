package report

import "math"

// mean ignores NaN values; an all-NaN or empty input yields NaN.
func mean(xs []float64) float64 {
	var sum float64
	var n int
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// stddev is the sample standard deviation (n-1 denominator), matching the
// estimator the study's charts use for seed spread. NaN values are ignored;
// fewer than two values yield NaN.
func stddev(xs []float64) float64 {
	m := mean(xs)
	if math.IsNaN(m) {
		return math.NaN()
	}
	var sum float64
	var n int
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		d := x - m
		sum += d * d
		n++
	}
	if n < 2 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(n-1))
}
