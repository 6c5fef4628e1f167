package stats

import "math"

// radixSortThreshold is the sample size from which the O(n) radix
// pass pays for its fixed per-pass overhead. Below it, sortFloat64s
// uses an insertion sort instead.
const radixSortThreshold = 4096

// sortFloat64s sorts samples ascending, choosing a radix sort over
// order-preserving uint64 keys (floatToSortableUint64) for large sample
// counts and falling back to insertion sort below radixSortThreshold —
// generalizing the engine's 8-bit-pass uint32 radix sort to 64-bit
// float keys for the exact-quantile sketch.
func sortFloat64s(samples []float64) {
	n := len(samples)
	if n <= 1 {
		return
	}
	if n < radixSortThreshold {
		insertionSortFloat64(samples)
		return
	}

	keys := make([]uint64, n)
	for i, v := range samples {
		keys[i] = floatToSortableUint64(v)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	radixSortKeyed(keys, order)

	sorted := make([]float64, n)
	for i, idx := range order {
		sorted[i] = samples[idx]
	}
	copy(samples, sorted)
}

// floatToSortableUint64 maps a float64 bit pattern to a uint64 whose
// unsigned ordering matches the float's numeric ordering (IEEE-754
// radix-sort trick: flip the sign bit for positives, flip all bits for
// negatives).
func floatToSortableUint64(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

// radixSortKeyed performs a 4-pass 16-bit radix sort over keys,
// permuting order in lockstep so the caller can recover which original
// sample each sorted key came from.
func radixSortKeyed(keys []uint64, order []int) {
	n := len(keys)
	scratchKeys := make([]uint64, n)
	scratchOrder := make([]int, n)

	src, srcOrder := keys, order
	dst, dstOrder := scratchKeys, scratchOrder

	for pass := 0; pass < 4; pass++ {
		shift := uint(pass * 16)
		var counts [65536]int
		for _, k := range src {
			b := (k >> shift) & 0xFFFF
			counts[b]++
		}
		total := 0
		for i := range counts {
			c := counts[i]
			counts[i] = total
			total += c
		}
		for i, k := range src {
			b := (k >> shift) & 0xFFFF
			pos := counts[b]
			counts[b]++
			dst[pos] = k
			dstOrder[pos] = srcOrder[i]
		}
		src, dst = dst, src
		srcOrder, dstOrder = dstOrder, srcOrder
	}
	// After 4 passes (even number), src/srcOrder already alias the
	// caller's original keys/order slices with the sorted contents.
	copy(keys, src)
	copy(order, srcOrder)
}

func insertionSortFloat64(data []float64) {
	for i := 1; i < len(data); i++ {
		key := data[i]
		j := i - 1
		for j >= 0 && data[j] > key {
			data[j+1] = data[j]
			j--
		}
		data[j+1] = key
	}
}
