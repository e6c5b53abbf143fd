package selection

import "sort"

// BenjaminiHochberg returns the BH-adjusted q-values for a p-value column.
// q-values are monotonically non-decreasing in the raw p-value order and
// computed over every entry, so the gene universe must already be final.
func BenjaminiHochberg(p []float64) []float64 {
	n := len(p)
	q := make([]float64, n)
	if n == 0 {
		return q
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return p[order[a]] < p[order[b]] })

	running := 1.0
	for rank := n - 1; rank >= 0; rank-- {
		i := order[rank]
		v := p[i] * float64(n) / float64(rank+1)
		if v < running {
			running = v
		}
		q[i] = running
	}
	return q
}
