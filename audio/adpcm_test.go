package audio

import (
	"errors"
	"math"
	"testing"

	"flipnote-backend/models"
)

func sine(n, rate int, freq, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestADPCMSilence(t *testing.T) {
	silent := make([]int16, 1000)
	decoded := DecodeADPCM(EncodeADPCM(silent))
	if len(decoded) != len(silent) {
		t.Fatalf("decoded %d samples, want %d", len(decoded), len(silent))
	}
	for i, s := range decoded {
		if s != 0 {
			t.Fatalf("sample %d = %d, want 0", i, s)
		}
	}
}

func TestADPCMRoundTripBoundedError(t *testing.T) {
	in := sine(4000, 8180, 100, 4000)
	out := DecodeADPCM(EncodeADPCM(in))

	for i := 100; i < len(in); i++ {
		diff := int(in[i]) - int(out[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > 2048 {
			t.Fatalf("sample %d: error %d too large (in=%d out=%d)", i, diff, in[i], out[i])
		}
	}

	if psnr := RoundTripPSNR(in); !ValidatePSNR(psnr, 20) {
		t.Errorf("round trip PSNR %.2f dB below 20 dB", psnr)
	}
}

func TestADPCMOddLength(t *testing.T) {
	encoded := EncodeADPCM([]int16{1000, 2000, 3000})
	if len(encoded) != 2 {
		t.Fatalf("got %d bytes, want 2", len(encoded))
	}
	if encoded[1]>>4 != 0 {
		t.Errorf("high nibble of trailing byte = %x, want 0", encoded[1]>>4)
	}
}

func TestADPCMDecodeKnownNibbles(t *testing.T) {
	// 0x07: low nibble 7 -> 7>>3 + 7>>2 + 7>>1 + 7 = 0+1+3+7 = 11, high nibble 0
	out := DecodeADPCM([]byte{0x07})
	if out[0] != 11 {
		t.Errorf("first sample = %d, want 11", out[0])
	}
	// index rose by 8 to 8, step 16: nibble 0 adds 16>>3 = 2
	if out[1] != 13 {
		t.Errorf("second sample = %d, want 13", out[1])
	}
}

func TestADPCMClampsPredictor(t *testing.T) {
	data := make([]byte, 200)
	for i := range data {
		data[i] = 0x77
	}
	for _, s := range DecodeADPCM(data) {
		if s < 0 {
			t.Fatalf("predictor wrapped to %d", s)
		}
	}
	for i := range data {
		data[i] = 0xFF
	}
	out := DecodeADPCM(data)
	if out[len(out)-1] != -32768 {
		t.Errorf("last sample = %d, want -32768", out[len(out)-1])
	}
}

func TestResample(t *testing.T) {
	in := sine(1000, 8180, 440, 8000)

	tests := []struct {
		name     string
		src, dst int
	}{
		{"upsample", 8180, 32720},
		{"downsample", 32720, 8180},
		{"odd ratio", 8180, 44100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Resample(in, tt.src, tt.dst)
			if err != nil {
				t.Fatal(err)
			}
			want := int(math.Ceil(float64(len(in)) * float64(tt.dst) / float64(tt.src)))
			if len(out) != want {
				t.Errorf("len = %d, want %d", len(out), want)
			}
		})
	}

	same, err := Resample(in, 8180, 8180)
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if same[i] != in[i] {
			t.Fatalf("identity resample changed sample %d", i)
		}
	}
}

func TestResampleErrors(t *testing.T) {
	if _, err := Resample(nil, 8180, 8180); !errors.Is(err, models.ErrCodec) {
		t.Errorf("empty input: got %v, want ErrCodec", err)
	}
	if _, err := Resample([]int16{1}, 0, 8180); !errors.Is(err, models.ErrCodec) {
		t.Errorf("zero rate: got %v, want ErrCodec", err)
	}
}

func TestMixClamps(t *testing.T) {
	dst := []int16{32767, -32768, 0, 100}
	src := []int16{32767, -32768, -32768, 32767, 5}
	Mix(src, dst, 0)

	want := []int16{32767, -32768, -16384, 100 + 16383}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("dst[%d] = %d, want %d", i, dst[i], want[i])
		}
	}
}

func TestMixOffset(t *testing.T) {
	dst := make([]int16, 4)
	Mix([]int16{10, 10, 10}, dst, 2)
	want := []int16{0, 0, 5, 5}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("dst[%d] = %d, want %d", i, dst[i], want[i])
		}
	}
}

func TestMixChannelsMismatch(t *testing.T) {
	err := MixChannels([]int16{1}, 2, make([]int16, 4), 1, 0)
	if !errors.Is(err, models.ErrAudio) {
		t.Errorf("got %v, want ErrAudio", err)
	}
}
