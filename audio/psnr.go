// Package audio holds the flipnote ADPCM codec, PCM helpers and audio file conversion
package audio

import (
	"math"
)

// CalculatePSNR compares two 16-bit PCM buffers of equal length
func CalculatePSNR(original, encoded []int16) float64 {
	if len(original) != len(encoded) {
		return 0.0
	}

	if len(original) == 0 {
		return 0.0
	}

	var mse float64
	for i := range original {
		diff := float64(original[i]) - float64(encoded[i])
		mse += diff * diff
	}
	mse /= float64(len(original))

	// If MSE is 0, signals are identical
	if mse == 0 {
		return math.Inf(1)
	}

	// PSNR = 20 * log10(MAX_SIGNAL_VALUE / sqrt(MSE))
	maxSignalValue := 32767.0
	return 20 * math.Log10(maxSignalValue/math.Sqrt(mse))
}

// RoundTripPSNR measures how much an ADPCM encode/decode pass degrades samples
func RoundTripPSNR(samples []int16) float64 {
	decoded := DecodeADPCM(EncodeADPCM(samples))
	return CalculatePSNR(samples, decoded[:len(samples)])
}

func ValidatePSNR(psnr float64, threshold float64) bool {
	if math.IsInf(psnr, 1) {
		return true
	}
	return psnr >= threshold
}
