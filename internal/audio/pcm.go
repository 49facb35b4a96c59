// Package audio provides validation helpers for raw PCM16 chunks.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Validate checks that a chunk looks like PCM16 mono audio and is within
// the configured size limit.
func Validate(chunk []byte, maxBytes int) error {
	if len(chunk) == 0 {
		return fmt.Errorf("audio chunk is empty")
	}
	if len(chunk)%2 != 0 {
		return fmt.Errorf("PCM data length must be even (16-bit samples)")
	}
	if maxBytes > 0 && len(chunk) > maxBytes {
		return fmt.Errorf("audio chunk too large: %d bytes (max: %d)", len(chunk), maxBytes)
	}
	return nil
}

// Duration returns the play time of a PCM16 mono chunk in seconds.
func Duration(chunk []byte, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(chunk) / 2
	return float64(samples) / float64(sampleRate)
}

// Samples converts little-endian PCM16 bytes to int16 samples.
func Samples(chunk []byte) []int16 {
	samples := make([]int16, len(chunk)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(chunk[i*2 : i*2+2]))
	}
	return samples
}

// CalculateRMS calculates the root mean square energy of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
