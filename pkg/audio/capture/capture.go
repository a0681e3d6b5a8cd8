// Package capture implements [audio.Source] on top of miniaudio via
// github.com/gen2brain/malgo. Samples are requested as 32-bit float so that
// every backend (ALSA, PulseAudio, CoreAudio, WASAPI) delivers the same
// representation.
package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/voxgate/pkg/audio"
)

// Default device parameters, matching a typical desktop sound card.
const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2
)

// Device is a malgo-backed microphone. Create one with [New].
type Device struct {
	name       string
	sampleRate int
	channels   int

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	dev     *malgo.Device
	format  audio.Format
	samples []float32
	closed  bool
}

// Option is a functional option for configuring a [Device].
type Option func(*Device)

// WithDeviceName selects the first capture device whose name contains name
// (case-insensitive). The system default is used when empty or unmatched.
func WithDeviceName(name string) Option {
	return func(d *Device) { d.name = name }
}

// WithSampleRate requests a native sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(d *Device) {
		if rate > 0 {
			d.sampleRate = rate
		}
	}
}

// WithChannels requests a channel count.
func WithChannels(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.channels = n
		}
	}
}

// New returns an unopened capture device. The audio backend is initialised
// by [Device.Start].
func New(opts ...Option) *Device {
	d := &Device{
		sampleRate: DefaultSampleRate,
		channels:   DefaultChannels,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Start implements [audio.Source]. The handler runs on miniaudio's device
// thread; the sample slice passed to it is reused across callbacks.
func (d *Device) Start(ctx context.Context, h audio.FrameHandler) error {
	if err := d.open(h); err != nil {
		d.Close()
		return err
	}
	slog.Info("capture: device started",
		"device", d.name,
		"sampleRate", d.format.SampleRate,
		"channels", d.format.Channels,
	)
	<-ctx.Done()
	return d.Close()
}

func (d *Device) open(h audio.FrameHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("capture: start after close: %w", audio.ErrDevice)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("capture: miniaudio", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return fmt.Errorf("capture: init context: %w: %w", audio.ErrDevice, err)
	}
	d.mctx = mctx

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(d.channels)
	cfg.SampleRate = uint32(d.sampleRate)
	cfg.Alsa.NoMMap = 1

	if d.name != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			return fmt.Errorf("capture: enumerate devices: %w: %w", audio.ErrDevice, err)
		}
		found := false
		for i := range infos {
			if strings.Contains(strings.ToLower(infos[i].Name()), strings.ToLower(d.name)) {
				cfg.Capture.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			slog.Warn("capture: device not found, using system default", "device", d.name)
		}
	}

	start := time.Now()
	onData := func(_, input []byte, frameCount uint32) {
		n := int(frameCount) * d.format.Channels
		if n == 0 || len(input) < n*4 {
			return
		}
		if cap(d.samples) < n {
			d.samples = make([]float32, n)
		}
		s := d.samples[:n]
		for i := range s {
			s[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
		}
		h(audio.Frame{
			Samples:    s,
			SampleRate: d.format.SampleRate,
			Channels:   d.format.Channels,
			Timestamp:  time.Since(start),
		})
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return fmt.Errorf("capture: init device: %w: %w", audio.ErrDevice, err)
	}
	d.dev = dev
	// The backend may not honour the requested format exactly.
	d.format = audio.Format{SampleRate: int(dev.SampleRate()), Channels: int(dev.CaptureChannels())}
	if d.format.SampleRate == 0 {
		d.format.SampleRate = d.sampleRate
	}
	if d.format.Channels == 0 {
		d.format.Channels = d.channels
	}

	if err := dev.Start(); err != nil {
		return fmt.Errorf("capture: start device: %w: %w", audio.ErrDevice, err)
	}
	return nil
}

// Format implements [audio.Source].
func (d *Device) Format() audio.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.format.SampleRate == 0 {
		return audio.Format{SampleRate: d.sampleRate, Channels: d.channels}
	}
	return d.format
}

// Close implements [audio.Source]. It stops and releases the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.dev != nil {
		d.dev.Uninit()
		d.dev = nil
	}
	if d.mctx != nil {
		_ = d.mctx.Uninit()
		d.mctx.Free()
		d.mctx = nil
	}
	return nil
}

var _ audio.Source = (*Device)(nil)
