package dice

// Sample draws k distinct indices from [0, n) in random order using a partial
// Fisher-Yates shuffle over src.
//
// Precondition: 0 <= k <= n; src must be non-nil.
// Postcondition: len(result) == k, every value is in [0, n), no value repeats,
// and every ordered k-subset is equally likely when src is uniform.
func Sample(src Source, n, k int) []int {
	if k < 0 || k > n {
		panic("dice: Sample called with k outside [0, n]")
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + src.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k:k]
}
