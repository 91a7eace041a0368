// Package audio plays rendered frames on the system audio device.
package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"beatseq/debug"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/ebitengine/oto/v3"
)

const (
	channels       = 2
	bytesPerSample = 4
)

var (
	ctxOnce sync.Once
	ctxRate int
	otoCtx  *oto.Context
	ctxErr  error
)

// device opens the process-wide oto context. oto allows one per process, so
// the first sample rate wins.
func device(sampleRate int) (*oto.Context, error) {
	ctxOnce.Do(func() {
		ctxRate = sampleRate
		var ready chan struct{}
		otoCtx, ready, ctxErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
		})
		if ctxErr == nil {
			<-ready
		}
	})
	if ctxErr != nil {
		return nil, fault.Wrap(ctxErr, fmsg.WithDesc("open audio device", "No audio output is available."))
	}
	if sampleRate != ctxRate {
		return nil, fault.New(fmt.Sprintf("audio device already open at %d Hz", ctxRate), fmsg.With("open audio device"))
	}
	return otoCtx, nil
}

// Play streams interleaved stereo frames and blocks until they finish or
// ctx ends. progress, if set, receives the played fraction.
func Play(ctx context.Context, frames []float32, sampleRate int, progress func(float64)) error {
	if len(frames) == 0 {
		return nil
	}
	dev, err := device(sampleRate)
	if err != nil {
		return err
	}

	r := NewReader(frames)
	player := dev.NewPlayer(r)
	defer player.Close()
	player.Play()
	debug.Info("audio", "playing %d frames at %d Hz", len(frames)/channels, sampleRate)

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-tick.C:
			if progress != nil {
				progress(r.Progress())
			}
		}
	}
	if progress != nil {
		progress(1)
	}
	return nil
}

// Reader encodes float32 frames as little endian bytes for oto.
type Reader struct {
	frames []float32
	pos    atomic.Int64 // samples read
}

func NewReader(frames []float32) *Reader {
	return &Reader{frames: frames}
}

func (r *Reader) Read(buf []byte) (int, error) {
	pos := int(r.pos.Load())
	if pos >= len(r.frames) {
		return 0, io.EOF
	}
	n := min(len(buf)/bytesPerSample, len(r.frames)-pos)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(buf[i*bytesPerSample:], math.Float32bits(r.frames[pos+i]))
	}
	r.pos.Add(int64(n))
	return n * bytesPerSample, nil
}

// Progress is the fraction of samples handed to the device.
func (r *Reader) Progress() float64 {
	if len(r.frames) == 0 {
		return 1
	}
	return float64(r.pos.Load()) / float64(len(r.frames))
}
