package trends

import "math"

// Peak returns the largest value, or 0 for an empty slice.
func Peak(values []int) int {
	if len(values) == 0 {
		return 0
	}
	peak := values[0]
	for _, v := range values[1:] {
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Average returns the arithmetic mean rounded to one decimal place, or 0 for
// an empty slice. Halves round away from zero.
func Average(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum int
	for _, v := range values {
		sum += v
	}
	mean := float64(sum) / float64(len(values))
	return math.Round(mean*10) / 10
}

// TopN returns the first n entries of a list already sorted by interest.
func TopN[T any](list []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if n > len(list) {
		n = len(list)
	}
	out := make([]T, n)
	copy(out, list[:n])
	return out
}
