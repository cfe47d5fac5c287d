package audio

import (
	"fmt"

	"flipnote-backend/models"
)

// ResampledLength is ceil(n * dst / src)
func ResampledLength(n, src, dst int) int {
	return int((int64(n)*int64(dst) + int64(src) - 1) / int64(src))
}

// Resample converts mono PCM between rates with nearest-neighbour picking
func Resample(samples []int16, src, dst int) ([]int16, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: cannot resample an empty buffer", models.ErrCodec)
	}
	if src <= 0 || dst <= 0 {
		return nil, fmt.Errorf("%w: invalid resample rates %d -> %d", models.ErrCodec, src, dst)
	}
	if src == dst {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out, nil
	}

	n := ResampledLength(len(samples), src, dst)
	out := make([]int16, n)
	for i := range out {
		idx := int(int64(i) * int64(src) / int64(dst))
		if idx >= len(samples) {
			return nil, fmt.Errorf("%w: resample index %d out of %d", models.ErrBounds, idx, len(samples))
		}
		out[i] = samples[idx]
	}
	return out, nil
}
