package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aidenhq/aiden/core"
	"github.com/aidenhq/aiden/logging"
)

// Common errors returned by the pipeline.
var (
	ErrNotStarted     = errors.New("voice: pipeline not started")
	ErrAlreadyStarted = errors.New("voice: pipeline already started")
)

// State is the activation state of a voice session.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
)

// Runner executes one assistant turn for a transcript. *agent.Loop satisfies
// this interface.
type Runner interface {
	Run(ctx context.Context, sessionID, message string) (<-chan core.StreamEvent, error)
}

// Callbacks groups the pipeline output hooks. Nil callbacks are skipped.
type Callbacks struct {
	// OnState fires on every state transition.
	OnState func(s State)

	// OnEvent receives the turn's stream events (chunks, tool activity,
	// terminal events) exactly as a text chat client would.
	OnEvent func(ev core.StreamEvent)

	// OnAudioOut receives synthesized audio chunks as they are produced.
	OnAudioOut func(audio []byte)
}

// Pipeline drives one voice session through the idle, listening, processing
// and speaking states. Feed it PCM16 frames from the client; it detects
// utterance boundaries, transcribes, defers to the agent loop, and streams
// synthesized audio back sentence by sentence.
//
// A Pipeline owns exactly one voice session; concurrent sessions need their
// own Pipeline instances.
type Pipeline struct {
	cfg       Config
	sessionID string
	stt       Transcriber
	tts       Synthesizer
	runner    Runner
	logger    logging.Logger
	callbacks Callbacks
	metrics   *MetricsCollector

	mu           sync.Mutex
	state        State
	started      bool
	buf          bytes.Buffer
	silenceStart time.Time
	runCtx       context.Context
	cancelRun    context.CancelFunc
	turnCancel   context.CancelFunc
}

// New constructs a Pipeline for a single session.
func New(cfg Config, sessionID string, stt Transcriber, tts Synthesizer, runner Runner, optFns ...func(p *Pipeline)) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		sessionID: sessionID,
		stt:       stt,
		tts:       tts,
		runner:    runner,
		logger:    logging.NewDefaultSlogLogger(),
		metrics:   NewMetricsCollector(),
		state:     StateIdle,
	}

	for _, fn := range optFns {
		fn(p)
	}

	return p, nil
}

// WithLogger overrides the pipeline logger.
func WithLogger(logger logging.Logger) func(p *Pipeline) {
	return func(p *Pipeline) { p.logger = logger }
}

// WithCallbacks sets the output hooks.
func WithCallbacks(cb Callbacks) func(p *Pipeline) {
	return func(p *Pipeline) { p.callbacks = cb }
}

// SetCallbacks replaces the output hooks. Used when the consumer (a
// websocket, say) attaches after the pipeline was started.
func (p *Pipeline) SetCallbacks(cb Callbacks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = cb
}

// Start arms the pipeline. Audio fed before Start is rejected.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}

	p.runCtx, p.cancelRun = context.WithCancel(ctx)
	p.started = true
	p.setStateLocked(StateIdle)
	return nil
}

// Stop shuts the pipeline down. A partial utterance still buffered in the
// listening state is flushed through transcription when the config asks for
// it, otherwise discarded.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}

	var flush []byte
	if p.state == StateListening && p.cfg.FlushPartialUtterance && p.buf.Len() > 0 {
		flush = append([]byte(nil), p.buf.Bytes()...)
	}
	p.buf.Reset()
	p.started = false
	cancel := p.cancelRun
	ctx := p.runCtx
	p.setStateLocked(StateIdle)
	p.mu.Unlock()

	if flush != nil {
		// Run the flush on a detached context; the session is going away but
		// the user's words should still land in history.
		flushCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer done()
		p.process(flushCtx, flush)
	}

	if cancel != nil {
		cancel()
	}
	return nil
}

// State returns the current activation state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Metrics returns the per-turn latency collector.
func (p *Pipeline) Metrics() *MetricsCollector { return p.metrics }

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Feed processes one PCM16 frame from the client and advances the state
// machine. It returns quickly; transcription and the agent turn run on their
// own goroutine once an utterance closes.
func (p *Pipeline) Feed(frame []byte) error {
	p.mu.Lock()

	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}

	p.metrics.IncrementAudioIn()
	energy := Energy(frame)
	speech := energy >= p.cfg.ActivationThreshold

	switch p.state {
	case StateIdle:
		if !speech {
			p.mu.Unlock()
			return nil
		}
		p.buf.Reset()
		p.buf.Write(frame)
		p.silenceStart = time.Time{}
		p.setStateLocked(StateListening)
		p.mu.Unlock()
		return nil

	case StateListening:
		p.buf.Write(frame)
		if speech {
			p.silenceStart = time.Time{}
			p.mu.Unlock()
			return nil
		}
		if p.silenceStart.IsZero() {
			p.silenceStart = time.Now()
			p.mu.Unlock()
			return nil
		}
		if time.Since(p.silenceStart) < p.cfg.MaxSilence {
			p.mu.Unlock()
			return nil
		}

		// End of utterance: flush the buffer to processing exactly once.
		audio := append([]byte(nil), p.buf.Bytes()...)
		p.buf.Reset()
		p.silenceStart = time.Time{}
		p.setStateLocked(StateProcessing)
		ctx := p.runCtx
		p.mu.Unlock()

		p.metrics.MarkUtteranceEnd()
		go p.process(ctx, audio)
		return nil

	case StateSpeaking:
		// Barge-in: new speech interrupts playback and starts listening.
		if speech {
			cancel := p.turnCancel
			p.buf.Reset()
			p.buf.Write(frame)
			p.silenceStart = time.Time{}
			p.setStateLocked(StateListening)
			p.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			return nil
		}
		p.mu.Unlock()
		return nil

	default: // StateProcessing: audio during processing is dropped.
		p.mu.Unlock()
		return nil
	}
}

// process runs the utterance through transcription, the agent loop and
// synthesis. It owns the processing and speaking states.
func (p *Pipeline) process(ctx context.Context, audio []byte) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.turnCancel = cancel
	p.mu.Unlock()

	defer p.toIdle()

	transcript, ok := p.transcribe(turnCtx, audio)
	if !ok {
		return
	}

	final, ok := p.runTurn(turnCtx, transcript)
	if !ok {
		return
	}

	p.speak(turnCtx, final)
}

// transcribe runs the STT stage under its latency budget.
func (p *Pipeline) transcribe(ctx context.Context, audio []byte) (string, bool) {
	transcript, err := p.stt.Transcribe(ctx, audio)
	sttLatency := p.metrics.MarkTranscript()

	if err != nil {
		p.logger.Error("voice.stt.failed", "session_id", p.sessionID, "error", err.Error())
		p.emitEvent(core.ErrorEvent(fmt.Sprintf("%v: %v", core.ErrTranscriptionFailure, err)))
		return "", false
	}
	if strings.TrimSpace(transcript) == "" {
		p.emitEvent(core.ErrorEvent(fmt.Sprintf("%v: empty transcript for audible input", core.ErrTranscriptionFailure)))
		return "", false
	}

	if p.cfg.STTBudget > 0 && sttLatency > p.cfg.STTBudget {
		p.emitEvent(core.InfoEvent(fmt.Sprintf("transcription took %s, over the %s budget", sttLatency.Round(time.Millisecond), p.cfg.STTBudget)))
	}

	return transcript, true
}

// runTurn defers to the agent loop for the transcript, forwarding events and
// returning the final response text.
func (p *Pipeline) runTurn(ctx context.Context, transcript string) (string, bool) {
	events, err := p.runner.Run(ctx, p.sessionID, transcript)
	if err != nil {
		p.emitEvent(core.ErrorEvent(fmt.Sprintf("assistant turn failed: %v", err)))
		return "", false
	}

	var final string
	firstChunk := true
	for ev := range events {
		if ev.Type == core.EventLLMChunk && firstChunk {
			firstChunk = false
			modelLatency := p.metrics.MarkFirstToken()
			if p.cfg.ModelBudget > 0 && modelLatency > p.cfg.ModelBudget {
				p.emitEvent(core.InfoEvent(fmt.Sprintf("model took %s to first token, over the %s budget", modelLatency.Round(time.Millisecond), p.cfg.ModelBudget)))
			}
		}

		p.emitEvent(ev)

		switch ev.Type {
		case core.EventFinalResponse:
			final = ev.Content
		case core.EventError:
			return "", false
		}
	}

	if final == "" {
		return "", false
	}
	return final, true
}

// speak synthesizes the response sentence by sentence so playback can start
// before the full answer is rendered.
func (p *Pipeline) speak(ctx context.Context, text string) {
	p.setState(StateSpeaking)

	first := true
	for _, sentence := range SplitSentences(text) {
		if ctx.Err() != nil {
			return
		}

		audio, err := p.tts.Synthesize(ctx, sentence)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("voice.tts.failed", "session_id", p.sessionID, "error", err.Error())
			p.emitEvent(core.ErrorEvent(fmt.Sprintf("%v: %v", core.ErrSynthesisFailure, err)))
			return
		}

		if first {
			first = false
			ttsLatency := p.metrics.MarkFirstAudio()
			if p.cfg.TTSBudget > 0 && ttsLatency > p.cfg.TTSBudget {
				p.emitEvent(core.InfoEvent(fmt.Sprintf("synthesis took %s to first audio, over the %s budget", ttsLatency.Round(time.Millisecond), p.cfg.TTSBudget)))
			}
		}

		p.metrics.IncrementAudioOut()
		if out := p.cb().OnAudioOut; out != nil {
			out(audio)
		}
	}

	total := p.metrics.MarkDone()
	if p.cfg.TotalBudget > 0 && total > p.cfg.TotalBudget {
		p.emitEvent(core.InfoEvent(fmt.Sprintf("turn took %s end to end, over the %s budget", total.Round(time.Millisecond), p.cfg.TotalBudget)))
	}
}

// toIdle returns to idle unless a barge-in already moved the machine back to
// listening.
func (p *Pipeline) toIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turnCancel = nil
	if p.state == StateProcessing || p.state == StateSpeaking {
		p.setStateLocked(StateIdle)
	}
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setStateLocked(s)
}

// setStateLocked transitions the state; caller must hold the lock. The
// callback runs on its own goroutine so a slow consumer cannot stall Feed.
func (p *Pipeline) setStateLocked(s State) {
	if p.state == s && s != StateIdle {
		return
	}
	p.state = s
	if p.callbacks.OnState != nil {
		go p.callbacks.OnState(s)
	}
}

func (p *Pipeline) emitEvent(ev core.StreamEvent) {
	if onEvent := p.cb().OnEvent; onEvent != nil {
		onEvent(ev)
	}
}

// cb snapshots the callbacks under the lock.
func (p *Pipeline) cb() Callbacks {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callbacks
}

// SplitSentences breaks text into sentence-sized chunks for incremental
// synthesis. Terminators are kept with their sentence; whitespace-only
// fragments are dropped.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			out = append(out, s)
		}
		b.Reset()
	}

	for _, r := range text {
		b.WriteRune(r)
		switch r {
		case '.', '!', '?', '\n':
			flush()
		}
	}
	flush()

	return out
}
