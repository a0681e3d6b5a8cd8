// Package playback implements [audio.Sink] using the speaker package of
// github.com/faiface/beep.
//
// The speaker is a process-wide singleton in beep, so only one [Speaker]
// should exist per process. Play calls are serialised.
package playback

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"

	"github.com/MrWong99/voxgate/pkg/audio"
)

// DefaultSampleRate is the output rate the speaker is opened at.
const DefaultSampleRate = 44100

// resampleQuality is beep's interpolation quality (1–64).
const resampleQuality = 4

// Speaker plays 16-bit mono PCM through the system's default output device.
type Speaker struct {
	rate beep.SampleRate

	playMu sync.Mutex // serialises Play

	mu     sync.Mutex
	inited bool
	closed bool
}

// New returns a Speaker that will open the output device at sampleRate on
// first use. A non-positive rate uses [DefaultSampleRate].
func New(sampleRate int) *Speaker {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Speaker{rate: beep.SampleRate(sampleRate)}
}

func (s *Speaker) init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("playback: play after close: %w", audio.ErrDevice)
	}
	if s.inited {
		return nil
	}
	if err := speaker.Init(s.rate, s.rate.N(time.Second/10)); err != nil {
		return fmt.Errorf("playback: init speaker: %w: %w", audio.ErrDevice, err)
	}
	s.inited = true
	return nil
}

// Play implements [audio.Sink]. The whole utterance is collected before
// playback starts so the speaker thread never waits on the synthesiser.
func (s *Speaker) Play(ctx context.Context, pcm <-chan []byte, sampleRate int) error {
	s.playMu.Lock()
	defer s.playMu.Unlock()

	var buf []byte
collect:
	for {
		select {
		case <-ctx.Done():
			audio.Drain(pcm)
			return ctx.Err()
		case chunk, ok := <-pcm:
			if !ok {
				break collect
			}
			buf = append(buf, chunk...)
		}
	}
	if len(buf) < 2 {
		return nil
	}
	if sampleRate <= 0 {
		return fmt.Errorf("playback: invalid sample rate %d", sampleRate)
	}
	if err := s.init(); err != nil {
		return err
	}

	var streamer beep.Streamer = pcmStreamer(buf)
	if src := beep.SampleRate(sampleRate); src != s.rate {
		streamer = beep.Resample(resampleQuality, src, s.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() { close(done) })))

	start := time.Now()
	select {
	case <-done:
		slog.Debug("playback: finished", "duration", time.Since(start))
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// Close implements [audio.Sink].
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.inited {
		speaker.Clear()
		speaker.Close()
	}
	return nil
}

// pcmStreamer plays little-endian int16 mono PCM on both speaker channels.
func pcmStreamer(pcm []byte) beep.Streamer {
	pos := 0
	total := len(pcm) / 2
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= total {
			return 0, false
		}
		n := min(len(samples), total-pos)
		for i := range n {
			v := float64(int16(binary.LittleEndian.Uint16(pcm[(pos+i)*2:]))) / 32768
			samples[i][0] = v
			samples[i][1] = v
		}
		pos += n
		return n, true
	})
}

var _ audio.Sink = (*Speaker)(nil)
