package gen

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean[T Float](src []T) T {
	if len(src) == 0 {
		return 0
	}
	var sum T
	for _, v := range src {
		sum += v
	}
	return sum / T(len(src))
}

// Mode returns the most frequent value in src, and its count.
// Ties are broken by whichever value was seen first.
func Mode[T comparable](src []T) (mode T, count int) {
	counts := make(map[T]int)
	for _, v := range src {
		counts[v]++
		if counts[v] > count {
			count = counts[v]
		}
	}
	for _, v := range src {
		if counts[v] == count {
			mode = v
			break
		}
	}
	return
}
