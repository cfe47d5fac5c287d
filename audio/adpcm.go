package audio

var stepTable = [89]int32{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17,
	19, 21, 23, 25, 28, 31, 34, 37, 41, 45,
	50, 55, 60, 66, 73, 80, 88, 97, 107, 118,
	130, 143, 157, 173, 190, 209, 230, 253, 279, 307,
	337, 371, 408, 449, 494, 544, 598, 658, 724, 796,
	876, 963, 1060, 1166, 1282, 1411, 1552, 1707, 1878, 2066,
	2272, 2499, 2749, 3024, 3327, 3660, 4026, 4428, 4871, 5358,
	5894, 6484, 7132, 7845, 8630, 9493, 10442, 11487, 12635, 13899,
	15289, 16818, 18500, 20350, 22385, 24623, 27086, 29794, 32767,
}

var indexTable = [16]int32{
	-1, -1, -1, -1, 2, 4, 6, 8,
	-1, -1, -1, -1, 2, 4, 6, 8,
}

// ADPCMState is the running predictor of the IMA ADPCM codec
type ADPCMState struct {
	Predictor int32
	StepIndex int32
}

func clampSample(v int32) int32 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}

func clampIndex(v int32) int32 {
	if v > 88 {
		return 88
	}
	if v < 0 {
		return 0
	}
	return v
}

// step applies one nibble to the state and returns the new sample
func (s *ADPCMState) step(nibble byte) int16 {
	step := stepTable[s.StepIndex]

	diff := step >> 3
	if nibble&1 != 0 {
		diff += step >> 2
	}
	if nibble&2 != 0 {
		diff += step >> 1
	}
	if nibble&4 != 0 {
		diff += step
	}
	if nibble&8 != 0 {
		diff = -diff
	}

	s.Predictor = clampSample(s.Predictor + diff)
	s.StepIndex = clampIndex(s.StepIndex + indexTable[nibble&0xF])
	return int16(s.Predictor)
}

// DecodeADPCM decodes 4-bit IMA ADPCM, low nibble first, starting from a zeroed state
func DecodeADPCM(data []byte) []int16 {
	return DecodeADPCMState(data, ADPCMState{})
}

// DecodeADPCMState decodes starting from the given predictor state
func DecodeADPCMState(data []byte, state ADPCMState) []int16 {
	state.StepIndex = clampIndex(state.StepIndex)
	out := make([]int16, 0, len(data)*2)
	for _, b := range data {
		out = append(out, state.step(b&0xF))
		out = append(out, state.step(b>>4))
	}
	return out
}

// EncodeADPCM encodes 16-bit PCM into 4-bit IMA ADPCM. An odd trailing
// sample leaves the high nibble of the last byte at zero.
func EncodeADPCM(samples []int16) []byte {
	var state ADPCMState
	out := make([]byte, (len(samples)+1)/2)

	for i, sample := range samples {
		nibble := state.encodeNibble(int32(sample))
		if i%2 == 0 {
			out[i/2] = nibble
		} else {
			out[i/2] |= nibble << 4
		}
	}
	return out
}

func (s *ADPCMState) encodeNibble(sample int32) byte {
	step := stepTable[s.StepIndex]
	delta := sample - s.Predictor

	var nibble byte
	if delta < 0 {
		nibble = 8
		delta = -delta
	}

	magnitude := delta * 4 / step
	if magnitude > 7 {
		magnitude = 7
	}
	nibble |= byte(magnitude)

	// the reference is the decoder's reconstruction, not the raw input
	s.step(nibble)
	return nibble
}
