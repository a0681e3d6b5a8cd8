// Package events broadcasts live pipeline activity to WebSocket clients.
//
// A [Hub] is both a [listen.SpeechObserver], so it can be attached to the
// capture-thread ingest, and an [http.Handler] serving the feed. Publishing
// never blocks: every subscriber has a bounded queue, and a subscriber whose
// queue is full is disconnected.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxgate/internal/listen"
	"github.com/MrWong99/voxgate/internal/observe"
)

// Event types.
const (
	TypeSpeechStarted = "speech_started"
	TypeSpeechEnded   = "speech_ended"
	TypeTranscript    = "transcript"
	TypeFiltered      = "filtered"
	TypeAnswer        = "answer"
	TypeError         = "error"
)

// Default settings.
const (
	DefaultQueueSize    = 32
	DefaultWriteTimeout = 5 * time.Second
)

// Event is one JSON message on the feed.
type Event struct {
	Type       string    `json:"type"`
	At         time.Time `json:"at"`
	Utterance  uint64    `json:"utterance,omitempty"`
	Text       string    `json:"text,omitempty"`
	Language   string    `json:"language,omitempty"`
	Phrase     string    `json:"phrase,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Buffered   int       `json:"buffered_samples,omitempty"`
	Error      string    `json:"error,omitempty"`
}

var _ listen.SpeechObserver = (*Hub)(nil)

type subscriber struct {
	msgs      chan []byte
	closeSlow func()
}

// Hub fans events out to connected subscribers.
type Hub struct {
	queueSize      int
	writeTimeout   time.Duration
	originPatterns []string
	metrics        *observe.Metrics

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

// Option is a functional option for [NewHub].
type Option func(*Hub)

// WithQueueSize sets the per-subscriber queue length. Values below 1 are
// ignored.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithWriteTimeout bounds every WebSocket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithOriginPatterns allows cross-origin browser clients whose Origin host
// matches one of patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.originPatterns = patterns }
}

// WithMetrics tracks the subscriber count in m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// NewHub returns an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		queueSize:    DefaultQueueSize,
		writeTimeout: DefaultWriteTimeout,
		subs:         make(map[*subscriber]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Publish sends e to every subscriber without blocking. A zero At is set to
// the current time.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		slog.Warn("events: marshal event", "type", e.Type, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.msgs <- data:
		default:
			go s.closeSlow()
		}
	}
}

// SpeechStarted implements [listen.SpeechObserver].
func (h *Hub) SpeechStarted(at time.Time) {
	h.Publish(Event{Type: TypeSpeechStarted, At: at})
}

// SpeechEnded implements [listen.SpeechObserver].
func (h *Hub) SpeechEnded(at time.Time, buffered int) {
	h.Publish(Event{Type: TypeSpeechEnded, At: at, Buffered: buffered})
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		go s.closeSlow()
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams events until the
// client disconnects, falls behind, or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Debug("events: accept", "err", err)
		return
	}
	defer conn.CloseNow()

	log := observe.Logger(r.Context())
	err = h.serve(r.Context(), conn)
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
	default:
		log.Debug("events: subscriber disconnected", "err", err)
	}
}

func (h *Hub) serve(ctx context.Context, conn *websocket.Conn) error {
	// Clients only listen. CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx = conn.CloseRead(ctx)

	s := &subscriber{
		msgs: make(chan []byte, h.queueSize),
		closeSlow: func() {
			conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with events")
		},
	}
	if !h.add(ctx, s) {
		return conn.Close(websocket.StatusGoingAway, "shutting down")
	}
	defer h.remove(ctx, s)

	for {
		select {
		case msg := <-s.msgs:
			if err := h.write(ctx, conn, msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}

func (h *Hub) add(ctx context.Context, s *subscriber) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.EventSubscribers.Add(ctx, 1)
	}
	return true
}

func (h *Hub) remove(ctx context.Context, s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.EventSubscribers.Add(context.WithoutCancel(ctx), -1)
	}
}
