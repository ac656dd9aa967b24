package voice

import (
	"encoding/binary"
	"math"
)

// Energy computes the normalized RMS energy of a little-endian PCM16 mono
// frame, scaled to [0,1]. Odd trailing bytes are ignored. An empty frame has
// zero energy.
func Energy(pcm16 []byte) float64 {
	n := len(pcm16) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm16[2*i:]))
		v := float64(sample) / math.MaxInt16
		sum += v * v
	}

	return math.Sqrt(sum / float64(n))
}
