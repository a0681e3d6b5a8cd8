package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/voxgate/internal/engine"
	"github.com/MrWong99/voxgate/internal/events"
	"github.com/MrWong99/voxgate/internal/journal"
	"github.com/MrWong99/voxgate/internal/listen"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
)

const journalTimeout = 5 * time.Second

var _ listen.TranscriptHandler = (*App)(nil)

// HandleTranscript implements [listen.TranscriptHandler]. It journals and
// publishes the transcript, applies the wake filter and, unless answering is
// disabled, speaks the answer. It returns only after playback has finished,
// so the worker does not pick up the next utterance while the assistant is
// talking.
func (a *App) HandleTranscript(ctx context.Context, u listen.Utterance, tr *stt.Transcript) error {
	log := observe.Logger(ctx).With("utterance", u.Seq)
	lang := tr.Language
	if lang == "" {
		lang = a.cfg.Listen.Language
	}

	dec := a.wake.Check(tr.Text)
	kind, evType := journal.KindTranscript, events.TypeTranscript
	if !dec.Accept {
		kind, evType = journal.KindFiltered, events.TypeFiltered
	}
	a.record(ctx, journal.Entry{
		Utterance: u.Seq,
		Kind:      kind,
		Text:      tr.Text,
		Language:  lang,
		Duration:  u.Duration,
	})
	a.hub.Publish(events.Event{
		Type:       evType,
		Utterance:  u.Seq,
		Text:       tr.Text,
		Language:   lang,
		Phrase:     dec.Phrase,
		DurationMs: u.Duration.Milliseconds(),
	})

	switch {
	case !dec.Accept:
		log.Debug("no wake phrase, transcript not answered")
		return nil
	case a.responder == nil:
		return nil
	case dec.Question == "":
		log.Info("wake phrase without a question", "phrase", dec.Phrase)
		return nil
	}

	return a.answer(ctx, u, engine.Request{Text: dec.Question, Language: lang})
}

// answer asks the responder, plays the audio to the end, and records the
// answer text.
func (a *App) answer(ctx context.Context, u listen.Utterance, req engine.Request) error {
	log := observe.Logger(ctx).With("utterance", u.Seq)

	rctx, cancel := context.WithTimeout(ctx, a.cfg.Respond.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.responder.Respond(rctx, req)
	if err != nil {
		a.publishError(u.Seq, err)
		return fmt.Errorf("app: respond: %w", err)
	}

	var playErr error
	if resp.Audio != nil {
		if a.providers.Sink != nil {
			playErr = a.providers.Sink.Play(rctx, resp.Audio, resp.SampleRate)
		} else {
			audio.Drain(resp.Audio)
		}
	}

	text, genErr := resp.Wait(rctx)
	latency := time.Since(start)
	if text != "" {
		a.record(ctx, journal.Entry{
			Utterance: u.Seq,
			Kind:      journal.KindAnswer,
			Text:      text,
			Language:  req.Language,
			Duration:  latency,
		})
		a.hub.Publish(events.Event{
			Type:       events.TypeAnswer,
			Utterance:  u.Seq,
			Text:       text,
			Language:   req.Language,
			DurationMs: latency.Milliseconds(),
		})
		log.Info("answer", "text", text, "latency", latency)
	}

	if err := errors.Join(genErr, playErr); err != nil {
		a.publishError(u.Seq, err)
		return fmt.Errorf("app: answer: %w", err)
	}
	return nil
}

// record appends e to the journal. Failures are logged and never interrupt
// the pipeline.
func (a *App) record(ctx context.Context, e journal.Entry) {
	e.Session = a.session
	if e.At.IsZero() {
		e.At = time.Now()
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := a.journal.Append(jctx, e); err != nil {
		observe.Logger(ctx).Warn("journal append failed", "kind", e.Kind, "err", err)
	}
}

func (a *App) publishError(seq uint64, err error) {
	a.hub.Publish(events.Event{Type: events.TypeError, Utterance: seq, Error: err.Error()})
}
