package piper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

// ---- test helpers ----

// buildWAV returns a 44-byte-header RIFF/WAVE file around pcm.
func buildWAV(pcm []byte, rate, channels int) []byte {
	le := binary.LittleEndian
	var buf bytes.Buffer
	put32 := func(v uint32) { _ = binary.Write(&buf, le, v) }
	put16 := func(v uint16) { _ = binary.Write(&buf, le, v) }

	buf.WriteString("RIFF")
	put32(uint32(36 + len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	put32(16)
	put16(1)
	put16(uint16(channels))
	put32(uint32(rate))
	put32(uint32(rate * channels * 2))
	put16(uint16(channels * 2))
	put16(16)
	buf.WriteString("data")
	put32(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func drainAudio(ch <-chan []byte) []byte {
	var out []byte
	for chunk := range ch {
		out = append(out, chunk...)
	}
	return out
}

func sendFragments(fragments ...string) <-chan string {
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return ch
}

// fakeServer answers every request with a WAV whose PCM is the request text
// bytes, padded to an even length, so output order can be checked.
type fakeServer struct {
	mu       sync.Mutex
	requests []synthesisRequest
	status   int
	rate     int
	delay    func(text string) time.Duration
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req synthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	status, rate, delay := f.status, f.rate, f.delay
	f.mu.Unlock()

	if delay != nil {
		time.Sleep(delay(req.Text))
	}
	if status != 0 && status != http.StatusOK {
		http.Error(w, "model not loaded", status)
		return
	}
	if rate == 0 {
		rate = defaultSampleRate
	}
	w.Header().Set("Content-Type", "audio/wav")
	_, _ = w.Write(buildWAV(evenPCM(req.Text), rate, 1))
}

func (f *fakeServer) Requests() []synthesisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]synthesisRequest(nil), f.requests...)
}

func evenPCM(s string) []byte {
	b := []byte(s)
	if len(b)%2 != 0 {
		b = append(b, ' ')
	}
	return b
}

func newServer(t *testing.T, f *fakeServer) *Provider {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	p, err := New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// ---- construction ----

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty server URL")
	}

	p, err := New("http://localhost:5000/", WithOutputSampleRate(16000), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.serverURL != "http://localhost:5000" {
		t.Errorf("serverURL = %q, want trailing slash trimmed", p.serverURL)
	}
	if p.SampleRate() != 16000 {
		t.Errorf("SampleRate = %d, want 16000", p.SampleRate())
	}
	if p.httpClient.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", p.httpClient.Timeout)
	}

	d, _ := New("http://localhost:5000", WithOutputSampleRate(0))
	if d.SampleRate() != defaultSampleRate {
		t.Errorf("default SampleRate = %d, want %d", d.SampleRate(), defaultSampleRate)
	}
}

// ---- SynthesizeStream ----

func TestSynthesizeStream_OrderedSentences(t *testing.T) {
	t.Parallel()

	f := &fakeServer{
		// The first sentence is the slowest; output order must not change.
		delay: func(text string) time.Duration {
			if text == "Hello there." {
				return 50 * time.Millisecond
			}
			return 0
		},
	}
	p := newServer(t, f)

	ch, err := p.SynthesizeStream(context.Background(),
		sendFragments("Hello ", "there. How", " are you? Fine"),
		tts.VoiceProfile{ID: "en_US-lessac-medium"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	got := string(drainAudio(ch))

	want := string(evenPCM("Hello there.")) + string(evenPCM("How are you?")) + string(evenPCM("Fine"))
	if got != want {
		t.Errorf("audio = %q, want %q", got, want)
	}

	reqs := f.Requests()
	if len(reqs) != 3 {
		t.Fatalf("requests = %d, want 3", len(reqs))
	}
	for _, r := range reqs {
		if r.Voice != "en_US-lessac-medium" {
			t.Errorf("voice = %q", r.Voice)
		}
		if r.SpeakerID != nil || r.LengthScale != nil {
			t.Errorf("unexpected optional fields in %+v", r)
		}
	}
}

func TestSynthesizeStream_VoiceParameters(t *testing.T) {
	t.Parallel()

	f := &fakeServer{}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	p, _ := New(srv.URL, WithSpeaker(2), WithLengthScale(1.2))

	tests := []struct {
		name        string
		voice       tts.VoiceProfile
		wantSpeaker int
		wantScale   float64
	}{
		{name: "defaults", voice: tts.VoiceProfile{}, wantSpeaker: 2, wantScale: 1.2},
		{name: "metadata speaker", voice: tts.VoiceProfile{Metadata: map[string]string{"speaker_id": "7"}}, wantSpeaker: 7, wantScale: 1.2},
		{name: "speed factor", voice: tts.VoiceProfile{SpeedFactor: 2}, wantSpeaker: 2, wantScale: 0.5},
	}
	for _, tc := range tests {
		ch, err := p.SynthesizeStream(context.Background(), sendFragments("Hi."), tc.voice)
		if err != nil {
			t.Fatalf("%s: SynthesizeStream: %v", tc.name, err)
		}
		drainAudio(ch)
		reqs := f.Requests()
		r := reqs[len(reqs)-1]
		if r.SpeakerID == nil || *r.SpeakerID != tc.wantSpeaker {
			t.Errorf("%s: speaker_id = %v, want %d", tc.name, r.SpeakerID, tc.wantSpeaker)
		}
		if r.LengthScale == nil || *r.LengthScale != tc.wantScale {
			t.Errorf("%s: length_scale = %v, want %v", tc.name, r.LengthScale, tc.wantScale)
		}
	}
}

func TestSynthesizeStream_InvalidSpeakerMetadata(t *testing.T) {
	t.Parallel()

	p, _ := New("http://localhost:5000")
	_, err := p.SynthesizeStream(context.Background(), sendFragments("Hi."),
		tts.VoiceProfile{Metadata: map[string]string{"speaker_id": "narrator"}})
	if err == nil {
		t.Fatal("expected error for non-numeric speaker_id")
	}
}

func TestSynthesizeStream_ServerError(t *testing.T) {
	t.Parallel()

	p := newServer(t, &fakeServer{status: http.StatusInternalServerError})
	ch, err := p.SynthesizeStream(context.Background(), sendFragments("Hello."), tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	if got := drainAudio(ch); len(got) != 0 {
		t.Errorf("expected no audio after server error, got %d bytes", len(got))
	}
}

func TestSynthesizeStream_Resamples(t *testing.T) {
	t.Parallel()

	f := &fakeServer{rate: 16000}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	p, _ := New(srv.URL, WithOutputSampleRate(32000))

	// "abcd" is two samples at 16 kHz; 32 kHz doubles them.
	ch, err := p.SynthesizeStream(context.Background(), sendFragments("abcd"), tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	if got := len(drainAudio(ch)); got != 8 {
		t.Errorf("resampled PCM = %d bytes, want 8", got)
	}
}

func TestSynthesizeStream_ContextCancellation(t *testing.T) {
	t.Parallel()

	p := newServer(t, &fakeServer{})
	ctx, cancel := context.WithCancel(context.Background())
	text := make(chan string)
	ch, err := p.SynthesizeStream(ctx, text, tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		drainAudio(ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("audio channel not closed after cancellation")
	}
}

// ---- helpers ----

func TestFindSentenceBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"", -1},
		{"no boundary", -1},
		{"Done.", 4},
		{"Wait! more", 4},
		{"Pi is 3.14 today", -1},
		{"Dr.Who? yes", 6},
	}
	for _, tc := range tests {
		if got := findSentenceBoundary(tc.in); got != tc.want {
			t.Errorf("findSentenceBoundary(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseWAV(t *testing.T) {
	t.Parallel()

	wav := buildWAV([]byte{1, 2, 3, 4}, 22050, 1)
	info, err := parseWAV(wav)
	if err != nil {
		t.Fatalf("parseWAV: %v", err)
	}
	if info.DataOffset != 44 || info.DataSize != 4 || info.SampleRate != 22050 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("info = %+v", info)
	}

	for name, bad := range map[string][]byte{
		"short":   []byte("RIFF"),
		"no riff": append([]byte("RIFX"), wav[4:]...),
		"no data": wav[:36],
	} {
		if _, err := parseWAV(bad); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	pcm := []byte{0, 0, 0x10, 0}
	if got := resampleMono16(pcm, 22050, 22050); !bytes.Equal(got, pcm) {
		t.Errorf("equal rates changed PCM: %v", got)
	}
	up := resampleMono16(pcm, 8000, 16000)
	if len(up) != 8 {
		t.Fatalf("upsampled len = %d, want 8", len(up))
	}
	// Midpoint between 0 and 16 is 8.
	if mid := int16(binary.LittleEndian.Uint16(up[2:])); mid != 8 {
		t.Errorf("interpolated sample = %d, want 8", mid)
	}
}
