// Package audiosvc plays the alert cues. Tones are synthesized, so no sound assets ship with the client.
package audiosvc

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

const (
	DefaultSampleRate = 22050
	amplitude         = 0.3
	fade              = 10 * time.Millisecond
)

// Synthesize renders a sine tone as a 16-bit mono PCM WAV file.
// The tone fades in and out to avoid clicks.
func Synthesize(freq float64, d time.Duration, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	n := int(d.Seconds() * float64(sampleRate))
	if n < 0 {
		n = 0
	}
	fadeN := int(fade.Seconds() * float64(sampleRate))
	if fadeN*2 > n {
		fadeN = n / 2
	}

	samples := make([]int16, n)
	for i := range samples {
		gain := amplitude
		switch {
		case i < fadeN:
			gain *= float64(i) / float64(fadeN)
		case i >= n-fadeN:
			gain *= float64(n-1-i) / float64(fadeN)
		}
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
		samples[i] = int16(v * gain * math.MaxInt16)
	}

	dataLen := uint32(n * 2)
	var buf bytes.Buffer
	buf.Grow(44 + int(dataLen))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))           // chunk size
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))            // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))            // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))            // block align
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
