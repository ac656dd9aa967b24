package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidenhq/aiden/core"
	"github.com/aidenhq/aiden/logging"
)

// fakeSTT returns a fixed transcript and counts calls.
type fakeSTT struct {
	mu         sync.Mutex
	transcript string
	err        error
	calls      int
}

func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.transcript, f.err
}

func (f *fakeSTT) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeTTS returns canned audio; block makes Synthesize hold until the context
// is cancelled, after signalling on started.
type fakeTTS struct {
	block   bool
	started chan struct{}
	once    sync.Once
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if f.block {
		f.once.Do(func() { close(f.started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []byte("audio:" + text), nil
}

// fakeRunner answers every transcript with a canned chunked response.
type fakeRunner struct {
	response string
}

func (f *fakeRunner) Run(ctx context.Context, sessionID, message string) (<-chan core.StreamEvent, error) {
	events := make(chan core.StreamEvent, 8)
	go func() {
		defer close(events)
		events <- core.ChunkEvent(f.response)
		events <- core.FinalEvent(f.response)
	}()
	return events, nil
}

// recorder captures callback output for assertions.
type recorder struct {
	mu     sync.Mutex
	states []State
	events []core.StreamEvent
	audio  [][]byte
	idle   chan struct{}
	once   sync.Once
}

func newRecorder() *recorder {
	return &recorder{idle: make(chan struct{})}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnState: func(s State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			seenWork := false
			for _, st := range r.states {
				if st == StateProcessing || st == StateSpeaking {
					seenWork = true
				}
			}
			r.mu.Unlock()
			if s == StateIdle && seenWork {
				r.once.Do(func() { close(r.idle) })
			}
		},
		OnEvent: func(ev core.StreamEvent) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		},
		OnAudioOut: func(audio []byte) {
			r.mu.Lock()
			r.audio = append(r.audio, append([]byte(nil), audio...))
			r.mu.Unlock()
		},
	}
}

func (r *recorder) waitIdle(t *testing.T) {
	t.Helper()
	select {
	case <-r.idle:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline never returned to idle")
	}
}

func (r *recorder) snapshot() ([]State, []core.StreamEvent, [][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...),
		append([]core.StreamEvent(nil), r.events...),
		append([][]byte(nil), r.audio...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxSilence = 20 * time.Millisecond
	return cfg
}

func newTestPipeline(t *testing.T, cfg Config, stt Transcriber, tts Synthesizer, runner Runner, rec *recorder) *Pipeline {
	t.Helper()
	p, err := New(cfg, "voice-session", stt, tts, runner,
		WithLogger(logging.NoOpLogger{}),
		WithCallbacks(rec.callbacks()),
	)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

// feedUtterance pushes speech frames followed by enough silence to close the
// utterance.
func feedUtterance(t *testing.T, p *Pipeline, cfg Config) {
	t.Helper()
	speech := pcmFrame(0.3, 160)
	silence := pcmFrame(0, 160)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Feed(speech))
	}
	deadline := time.Now().Add(time.Second)
	for p.State() == StateListening && time.Now().Before(deadline) {
		require.NoError(t, p.Feed(silence))
		time.Sleep(cfg.MaxSilence / 4)
	}
}

func TestPipeline_Lifecycle(t *testing.T) {
	p, err := New(DefaultConfig(), "s", &fakeSTT{}, &fakeTTS{}, &fakeRunner{}, WithLogger(logging.NoOpLogger{}))
	require.NoError(t, err)

	assert.ErrorIs(t, p.Feed(pcmFrame(0.3, 160)), ErrNotStarted)
	assert.ErrorIs(t, p.Stop(), ErrNotStarted)

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, p.Stop())
	assert.ErrorIs(t, p.Feed(pcmFrame(0.3, 160)), ErrNotStarted)
}

func TestPipeline_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ActivationThreshold = 2.0
	_, err := New(cfg, "s", &fakeSTT{}, &fakeTTS{}, &fakeRunner{})
	assert.Error(t, err)
}

func TestPipeline_QuietAudioStaysIdle(t *testing.T) {
	rec := newRecorder()
	p := newTestPipeline(t, testConfig(), &fakeSTT{transcript: "never"}, &fakeTTS{}, &fakeRunner{}, rec)

	quiet := pcmFrame(0.005, 160)
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Feed(quiet))
	}

	assert.Equal(t, StateIdle, p.State())
}

func TestPipeline_FullTurn(t *testing.T) {
	cfg := testConfig()
	stt := &fakeSTT{transcript: "what time is it"}
	rec := newRecorder()
	p := newTestPipeline(t, cfg, stt, &fakeTTS{}, &fakeRunner{response: "It's noon."}, rec)

	feedUtterance(t, p, cfg)
	rec.waitIdle(t)

	states, events, audio := rec.snapshot()

	// The machine walked listening -> processing -> speaking -> idle.
	assert.Contains(t, states, StateListening)
	assert.Contains(t, states, StateProcessing)
	assert.Contains(t, states, StateSpeaking)
	assert.Equal(t, StateIdle, p.State())

	// One utterance, one transcription.
	assert.Equal(t, 1, stt.callCount())

	// The agent turn's events were forwarded, ending in the final response.
	var final core.StreamEvent
	for _, ev := range events {
		if ev.Type == core.EventFinalResponse {
			final = ev
		}
	}
	assert.Equal(t, "It's noon.", final.Content)

	// Synthesized audio reached the output callback.
	require.NotEmpty(t, audio)
	assert.Equal(t, []byte("audio:It's noon."), audio[0])
}

func TestPipeline_AudioDroppedWhileProcessing(t *testing.T) {
	cfg := testConfig()
	stt := &fakeSTT{transcript: "hello"}
	tts := &fakeTTS{block: true, started: make(chan struct{})}
	rec := newRecorder()
	p := newTestPipeline(t, cfg, stt, tts, &fakeRunner{response: "hi"}, rec)

	feedUtterance(t, p, cfg)

	select {
	case <-tts.started:
	case <-time.After(2 * time.Second):
		t.Fatal("synthesis never started")
	}

	// Silence during speaking does not re-open listening.
	require.NoError(t, p.Feed(pcmFrame(0, 160)))
	assert.Equal(t, StateSpeaking, p.State())
	assert.Equal(t, 1, stt.callCount())
}

func TestPipeline_BargeIn(t *testing.T) {
	cfg := testConfig()
	stt := &fakeSTT{transcript: "hello"}
	tts := &fakeTTS{block: true, started: make(chan struct{})}
	rec := newRecorder()
	p := newTestPipeline(t, cfg, stt, tts, &fakeRunner{response: "a long answer"}, rec)

	feedUtterance(t, p, cfg)

	select {
	case <-tts.started:
	case <-time.After(2 * time.Second):
		t.Fatal("synthesis never started")
	}

	// Speech during playback interrupts it and starts a fresh utterance.
	require.NoError(t, p.Feed(pcmFrame(0.3, 160)))
	assert.Equal(t, StateListening, p.State())

	// The interrupted turn must not drag the machine back to idle.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateListening, p.State())
}

func TestPipeline_TranscriptionFailure(t *testing.T) {
	cfg := testConfig()
	stt := &fakeSTT{err: errors.New("whisper down")}
	rec := newRecorder()
	p := newTestPipeline(t, cfg, stt, &fakeTTS{}, &fakeRunner{response: "unused"}, rec)

	feedUtterance(t, p, cfg)
	rec.waitIdle(t)

	_, events, audio := rec.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, core.EventError, events[0].Type)
	assert.Contains(t, events[0].Detail, core.ErrTranscriptionFailure.Error())
	assert.Empty(t, audio, "a failed transcription produces no speech")
}

func TestPipeline_EmptyTranscript(t *testing.T) {
	cfg := testConfig()
	stt := &fakeSTT{transcript: "   "}
	rec := newRecorder()
	p := newTestPipeline(t, cfg, stt, &fakeTTS{}, &fakeRunner{response: "unused"}, rec)

	feedUtterance(t, p, cfg)
	rec.waitIdle(t)

	_, events, _ := rec.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, core.EventError, events[0].Type)
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{"empty", "", nil},
		{"whitespace only", "   \n  ", nil},
		{"single sentence", "Hello there.", []string{"Hello there."}},
		{"no terminator", "hello there", []string{"hello there"}},
		{"multiple", "One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"newlines", "line one\nline two", []string{"line one", "line two"}},
		{"trailing fragment", "Done. and more", []string{"Done.", "and more"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitSentences(tt.text))
		})
	}
}

func TestMetricsCollector(t *testing.T) {
	m := NewMetricsCollector()

	m.MarkUtteranceEnd()
	time.Sleep(time.Millisecond)
	assert.Greater(t, m.MarkTranscript(), time.Duration(0))
	assert.GreaterOrEqual(t, m.MarkFirstToken(), time.Duration(0))
	assert.Greater(t, m.MarkFirstAudio(), time.Duration(0))
	total := m.MarkDone()
	assert.Greater(t, total, time.Duration(0))

	current := m.Current()
	assert.Equal(t, total, current.TotalLatency)

	avg := m.Average()
	assert.Greater(t, avg.TotalLatency, time.Duration(0))

	// A fresh turn resets the snapshot.
	m.MarkUtteranceEnd()
	assert.Equal(t, time.Duration(0), m.Current().TotalLatency)
}

func TestMetrics_FormatLatency(t *testing.T) {
	var m Metrics
	assert.Equal(t, "---ms STT | ---ms MODEL | ---ms TTS | ---ms TOTAL", m.FormatLatency())

	m.STTLatency = 420 * time.Millisecond
	assert.Contains(t, m.FormatLatency(), "420ms STT")
}
