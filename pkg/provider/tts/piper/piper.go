// Package piper provides a TTS provider backed by the Piper HTTP server
// (python -m piper.http_server). It implements the tts.Provider interface.
//
// Piper synthesises one request at a time and answers with a complete WAV
// file, so SynthesizeStream accumulates incoming text fragments into complete
// sentences and dispatches concurrent HTTP requests with a small lookahead
// buffer. Audio is emitted in sentence order.
//
// Typical usage:
//
//	p, err := piper.New("http://localhost:5000",
//	    piper.WithTimeout(15*time.Second),
//	    piper.WithOutputSampleRate(22050),
//	)
//	audio, err := p.SynthesizeStream(ctx, textCh, tts.VoiceProfile{ID: "en_US-lessac-medium"})
package piper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// ---- constants ----

const (
	defaultTimeout    = 30 * time.Second
	defaultSampleRate = 22050

	// sentenceLookaheadBuf bounds the number of in-flight synthesis requests.
	sentenceLookaheadBuf = 4

	audioChanBuf = 256
	pcmChunkSize = 4096

	// speakerIDKey is the VoiceProfile.Metadata key holding a numeric speaker
	// index for multi-speaker models.
	speakerIDKey = "speaker_id"
)

// ---- options ----

// Option is a functional option for configuring a Piper Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for synthesis requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithSpeaker sets the default speaker index for multi-speaker voices. A
// speaker_id entry in VoiceProfile.Metadata takes precedence.
func WithSpeaker(id int) Option {
	return func(p *Provider) {
		p.speaker = &id
	}
}

// WithLengthScale sets the default phoneme length scale (1.0 = model default,
// larger is slower). VoiceProfile.SpeedFactor overrides it when non-zero.
func WithLengthScale(scale float64) Option {
	return func(p *Provider) {
		p.lengthScale = scale
	}
}

// WithOutputSampleRate sets the rate of the emitted PCM. Responses at a
// different rate are resampled. Defaults to 22050 Hz, the rate of most
// medium-quality Piper voices.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.outputRate = rate
		}
	}
}

// ---- Provider ----

// Provider implements tts.Provider for a Piper HTTP server. It is safe for
// concurrent use.
type Provider struct {
	serverURL   string
	httpClient  *http.Client
	speaker     *int
	lengthScale float64
	outputRate  int
}

// New creates a Provider targeting the Piper server at serverURL
// (e.g., "http://localhost:5000").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("piper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		outputRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// SampleRate reports the rate of the PCM emitted by SynthesizeStream.
func (p *Provider) SampleRate() int { return p.outputRate }

// synthesisRequest is the JSON body accepted by the Piper HTTP server.
type synthesisRequest struct {
	Text        string   `json:"text"`
	Voice       string   `json:"voice,omitempty"`
	SpeakerID   *int     `json:"speaker_id,omitempty"`
	LengthScale *float64 `json:"length_scale,omitempty"`
}

type audioResult struct {
	pcm []byte
	err error
}

// ---- SynthesizeStream ----

// SynthesizeStream consumes text fragments, splits them into sentences
// (on '.', '!', '?' followed by whitespace or end of input) and synthesises
// each sentence with one HTTP request. Headerless PCM is emitted on the
// returned channel in sentence order.
//
// The channel is closed when all text has been synthesised, when ctx is
// cancelled, or after the first failed request.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	req, err := p.baseRequest(voice)
	if err != nil {
		return nil, err
	}

	audioCh := make(chan []byte, audioChanBuf)

	go func() {
		defer close(audioCh)

		sentences := make(chan string, sentenceLookaheadBuf)
		resultQueue := make(chan chan audioResult, sentenceLookaheadBuf)

		// Accumulator.
		go func() {
			defer close(sentences)
			var buf strings.Builder
			emit := func(s string) bool {
				select {
				case sentences <- s:
					return true
				case <-ctx.Done():
					return false
				}
			}
			for {
				select {
				case fragment, ok := <-text:
					if !ok {
						if rest := strings.TrimSpace(buf.String()); rest != "" {
							emit(rest)
						}
						return
					}
					buf.WriteString(fragment)
					for {
						s := buf.String()
						idx := findSentenceBoundary(s)
						if idx < 0 {
							break
						}
						sentence := strings.TrimSpace(s[:idx+1])
						buf.Reset()
						buf.WriteString(s[idx+1:])
						if sentence != "" && !emit(sentence) {
							return
						}
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		// Dispatcher.
		go func() {
			defer close(resultQueue)
			for {
				select {
				case sentence, ok := <-sentences:
					if !ok {
						return
					}
					ch := make(chan audioResult, 1)
					select {
					case resultQueue <- ch:
					case <-ctx.Done():
						return
					}
					go func(r synthesisRequest, out chan<- audioResult) {
						pcm, err := p.synthesize(ctx, r)
						out <- audioResult{pcm: pcm, err: err}
					}(withText(req, sentence), ch)
				case <-ctx.Done():
					return
				}
			}
		}()

		// Collector.
		for {
			select {
			case ch, ok := <-resultQueue:
				if !ok {
					return
				}
				var result audioResult
				select {
				case result = <-ch:
				case <-ctx.Done():
					return
				}
				if result.err != nil {
					return
				}
				pcm := result.pcm
				for len(pcm) > 0 {
					end := min(pcmChunkSize, len(pcm))
					select {
					case audioCh <- pcm[:end]:
					case <-ctx.Done():
						return
					}
					pcm = pcm[end:]
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// baseRequest resolves the per-stream request fields from voice and the
// provider defaults.
func (p *Provider) baseRequest(voice tts.VoiceProfile) (synthesisRequest, error) {
	req := synthesisRequest{Voice: voice.ID, SpeakerID: p.speaker}
	if raw, ok := voice.Metadata[speakerIDKey]; ok {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return synthesisRequest{}, fmt.Errorf("piper: invalid %s %q: %w", speakerIDKey, raw, err)
		}
		req.SpeakerID = &id
	}
	scale := p.lengthScale
	if voice.SpeedFactor > 0 {
		scale = 1 / voice.SpeedFactor
	}
	if scale > 0 {
		req.LengthScale = &scale
	}
	return req, nil
}

func withText(r synthesisRequest, text string) synthesisRequest {
	r.Text = text
	return r
}

// synthesize performs a single POST and returns the PCM payload of the WAV
// response, resampled to the output rate.
func (p *Provider) synthesize(ctx context.Context, body synthesisRequest) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("piper: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("piper: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: POST: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("piper: server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("piper: read WAV response: %w", err)
	}
	info, err := parseWAV(wav)
	if err != nil {
		return nil, err
	}
	if info.Channels != 1 || info.BitsPerSample != 16 {
		return nil, fmt.Errorf("piper: unsupported WAV format: %d channels, %d bits", info.Channels, info.BitsPerSample)
	}
	pcm := wav[info.DataOffset:]
	if info.DataSize >= 0 && info.DataSize < len(pcm) {
		pcm = pcm[:info.DataSize]
	}
	return resampleMono16(pcm, info.SampleRate, p.outputRate), nil
}

// ---- helpers ----

// findSentenceBoundary returns the index of the first '.', '!' or '?' that is
// at the end of s or followed by whitespace, or -1. "Dr.X" and "3.14" do not
// split.
func findSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}

type wavInfo struct {
	DataOffset    int
	DataSize      int // -1 when the header declares a streaming length
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// parseWAV walks the RIFF chunks of wav and returns the format of the "fmt "
// chunk and the location of the "data" chunk.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("piper: WAV response too short")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("piper: response is not a RIFF/WAVE file")
	}

	info := wavInfo{SampleRate: defaultSampleRate, Channels: 1, BitsPerSample: 16}
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch id {
		case "fmt ":
			if size >= 16 && offset+8+16 <= len(wav) {
				f := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			}
		case "data":
			info.DataOffset = offset + 8
			info.DataSize = size
			if size == 0 || uint32(size) == 0xFFFFFFFF {
				info.DataSize = -1
			}
			return info, nil
		}

		offset += 8 + size
		if size%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("piper: WAV response missing data chunk")
}

// resampleMono16 converts little-endian int16 mono PCM from srcRate to
// dstRate by linear interpolation. Equal rates return pcm unchanged.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	sample := func(i int) int16 {
		return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := sample(idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample(idx + 1)
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
