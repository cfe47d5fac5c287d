package audio

import (
	"fmt"

	"flipnote-backend/models"
)

// Mix adds src at half volume into dst starting at offset. Samples past the end of dst are dropped.
func Mix(src, dst []int16, offset int) {
	for i, s := range src {
		j := offset + i
		if j < 0 {
			continue
		}
		if j >= len(dst) {
			return
		}
		dst[j] = int16(clampSample(int32(dst[j]) + int32(s)/2))
	}
}

// MixChannels is Mix for buffers that carry a channel count. Only equal counts can be mixed.
func MixChannels(src []int16, srcChannels int, dst []int16, dstChannels int, offset int) error {
	if srcChannels != dstChannels {
		return fmt.Errorf("%w: cannot mix %d channel audio into %d channel audio", models.ErrAudio, srcChannels, dstChannels)
	}
	Mix(src, dst, offset*dstChannels)
	return nil
}
