package media

// Resample stretches or compresses src to exactly n samples using linear
// interpolation. This mirrors how a buffer source plays at a non-unit rate:
// the waveform is consumed faster or slower, shifting pitch along with speed.
func Resample(src []int16, n int) []int16 {
	if n <= 0 {
		return nil
	}
	out := make([]int16, n)
	if len(src) == 0 {
		return out
	}
	if len(src) == 1 {
		for i := range out {
			out[i] = src[0]
		}
		return out
	}

	step := float64(len(src)-1) / float64(n)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(src)-1 {
			out[i] = src[len(src)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(src[idx])
		b := float64(src[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

// ResampleByRate consumes src at the given rate: rate 2.0 halves the output
// length (audio plays twice as fast), rate 1.0 copies. Rates below 1.0 are
// never produced by the synchronizer but are handled for completeness.
func ResampleByRate(src []int16, rate float64) []int16 {
	if rate <= 0 || len(src) == 0 {
		return nil
	}
	if rate == 1.0 {
		out := make([]int16, len(src))
		copy(out, src)
		return out
	}
	return Resample(src, int(float64(len(src))/rate))
}
