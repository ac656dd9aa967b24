package voice

import (
	"sync"
	"time"
)

// Metrics tracks latency at each stage of a voice turn. All durations are
// measured from the moment the utterance ended (the user stopped talking).
type Metrics struct {
	UtteranceEndTime time.Time // When silence closed the utterance
	TranscriptTime   time.Time // When transcription completed
	FirstTokenTime   time.Time // When the model produced its first chunk
	FirstAudioTime   time.Time // When the first synthesized chunk was ready
	DoneTime         time.Time // When the response was fully delivered

	STTLatency    time.Duration
	ModelLatency  time.Duration // Time to first model token
	TTSFirstAudio time.Duration
	TotalLatency  time.Duration

	AudioChunksIn  int
	AudioChunksOut int
}

// MetricsCollector collects latency metrics during a voice turn. It is
// goroutine-safe and can be used from multiple callbacks.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []Metrics
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{history: make([]Metrics, 0, 100)}
}

// MarkUtteranceEnd records the reference point for all latency measurements
// and resets per-turn state.
func (m *MetricsCollector) MarkUtteranceEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{}
	m.current.UtteranceEndTime = time.Now()
}

// MarkTranscript records when transcription completed and returns the STT
// stage latency.
func (m *MetricsCollector) MarkTranscript() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TranscriptTime = time.Now()
	if !m.current.UtteranceEndTime.IsZero() {
		m.current.STTLatency = m.current.TranscriptTime.Sub(m.current.UtteranceEndTime)
	}
	return m.current.STTLatency
}

// MarkFirstToken records when the model generated its first chunk and returns
// the elapsed time since transcription.
func (m *MetricsCollector) MarkFirstToken() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstTokenTime.IsZero() {
		m.current.FirstTokenTime = time.Now()
		if !m.current.TranscriptTime.IsZero() {
			m.current.ModelLatency = m.current.FirstTokenTime.Sub(m.current.TranscriptTime)
		}
	}
	return m.current.ModelLatency
}

// MarkFirstAudio records when the first synthesized chunk was ready.
func (m *MetricsCollector) MarkFirstAudio() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstAudioTime.IsZero() {
		m.current.FirstAudioTime = time.Now()
		if !m.current.UtteranceEndTime.IsZero() {
			m.current.TTSFirstAudio = m.current.FirstAudioTime.Sub(m.current.UtteranceEndTime)
		}
	}
	return m.current.TTSFirstAudio
}

// MarkDone records when the response was fully delivered, archives the turn
// and returns the total end-to-end latency.
func (m *MetricsCollector) MarkDone() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.DoneTime = time.Now()
	if !m.current.UtteranceEndTime.IsZero() {
		m.current.TotalLatency = m.current.DoneTime.Sub(m.current.UtteranceEndTime)
	}
	m.history = append(m.history, m.current)
	if len(m.history) > 100 {
		m.history = m.history[1:]
	}
	return m.current.TotalLatency
}

// IncrementAudioIn counts a received audio frame.
func (m *MetricsCollector) IncrementAudioIn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksIn++
}

// IncrementAudioOut counts an emitted audio chunk.
func (m *MetricsCollector) IncrementAudioOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksOut++
}

// Current returns the current metrics snapshot.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Average returns average latencies over recent turns.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return Metrics{}
	}

	var avg Metrics
	for _, h := range m.history {
		avg.STTLatency += h.STTLatency
		avg.ModelLatency += h.ModelLatency
		avg.TTSFirstAudio += h.TTSFirstAudio
		avg.TotalLatency += h.TotalLatency
	}

	n := time.Duration(len(m.history))
	avg.STTLatency /= n
	avg.ModelLatency /= n
	avg.TTSFirstAudio /= n
	avg.TotalLatency /= n

	return avg
}

// FormatLatency returns a formatted one-line latency breakdown.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.STTLatency) + " STT | " +
		formatDuration(m.ModelLatency) + " MODEL | " +
		formatDuration(m.TTSFirstAudio) + " TTS | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
