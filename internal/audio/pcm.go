package audio

import "math"

// Float32ToInt16 converts samples in [-1.0, 1.0] to PCM int16, clamping
// out-of-range values.
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(s * math.MaxInt16)
	}
	return out
}

// Int16ToFloat32 converts PCM int16 samples to float32 in [-1.0, 1.0].
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// Int16ToBytes converts int16 samples to little-endian bytes.
func Int16ToBytes(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

// BytesToInt16 converts little-endian bytes to int16 samples. A trailing
// odd byte is dropped.
func BytesToInt16(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return out
}

// Float32ToBytes converts float32 samples directly to raw PCM bytes.
func Float32ToBytes(in []float32) []byte {
	return Int16ToBytes(Float32ToInt16(in))
}

// BytesToFloat32 converts raw PCM bytes directly to float32 samples.
func BytesToFloat32(b []byte) []float32 {
	return Int16ToFloat32(BytesToInt16(b))
}
