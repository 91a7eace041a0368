package render

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Wav encodes interleaved stereo frames as a WAV file, either 16 bit PCM or
// 32 bit IEEE float.
func Wav(frames []float32, sampleRate int, pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := WriteWav(buf, frames, sampleRate, pcm16); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWav is Wav streaming to w.
func WriteWav(w io.Writer, frames []float32, sampleRate int, pcm16 bool) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	var buf bytes.Buffer
	wavHeader(&buf, len(frames), sampleRate, pcm16)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}

	var err error
	if pcm16 {
		data := make([]int16, len(frames))
		for i, v := range frames {
			data[i] = int16(max(math.MinInt16, min(math.MaxInt16, int(v*math.MaxInt16))))
		}
		err = binary.Write(w, binary.LittleEndian, data)
	} else {
		err = binary.Write(w, binary.LittleEndian, frames)
	}
	if err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// wavHeader writes the RIFF header for bufferLength interleaved stereo
// samples (L + R count separately).
func wavHeader(buf *bytes.Buffer, bufferLength, sampleRate int, pcm16 bool) {
	const numChannels = 2
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = 1 // PCM
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	le := binary.LittleEndian
	buf.WriteString("RIFF")
	binary.Write(buf, le, uint32(chunkSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, le, uint32(fmtChunkSize))
	binary.Write(buf, le, uint16(waveFormat))
	binary.Write(buf, le, uint16(numChannels))
	binary.Write(buf, le, uint32(sampleRate))
	binary.Write(buf, le, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, le, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(buf, le, uint16(8*bytesPerSample))                      // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(buf, le, uint16(0)) // size of extension
	}
	if factChunk {
		buf.WriteString("fact")
		binary.Write(buf, le, uint32(4))
		binary.Write(buf, le, uint32(bufferLength/numChannels)) // frames
	}
	buf.WriteString("data")
	binary.Write(buf, le, uint32(bytesPerSample*bufferLength))
}
