package voice

import (
	"errors"
	"time"
)

// Config holds all tunable parameters for the voice pipeline, organized by
// stage.
type Config struct {
	// Audio settings
	SampleRate int // Input PCM16 sample rate (default: 16000, mono)

	// VAD (Voice Activity Detection) settings
	ActivationThreshold float64       // Energy level [0,1] treated as speech (default: 0.02)
	MaxSilence          time.Duration // Silence duration ending an utterance (default: 2s)

	// STT settings
	Language string // Language hint for transcription (default: "en")

	// TTS settings
	Voice string // Voice identifier passed to the synthesizer

	// FlushPartialUtterance controls what happens to buffered audio when the
	// connection drops mid-utterance: flush it through transcription (true)
	// or discard it (false, default).
	FlushPartialUtterance bool

	// Latency budgets. Exceeding a budget never aborts the turn; it is
	// reported through an info event so clients can show continued progress.
	STTBudget   time.Duration // default: 500ms
	ModelBudget time.Duration // default: 1.5s
	TTSBudget   time.Duration // default: 800ms
	TotalBudget time.Duration // default: 3s
}

// DefaultConfig returns a Config with documented defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,

		ActivationThreshold: 0.02,
		MaxSilence:          2 * time.Second,

		Language: "en",

		STTBudget:   500 * time.Millisecond,
		ModelBudget: 1500 * time.Millisecond,
		TTSBudget:   800 * time.Millisecond,
		TotalBudget: 3 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ActivationThreshold < 0 || c.ActivationThreshold > 1 {
		return errors.New("voice: activation threshold must be between 0 and 1")
	}
	if c.MaxSilence <= 0 {
		return errors.New("voice: max silence must be positive")
	}
	if c.SampleRate <= 0 {
		return errors.New("voice: sample rate must be positive")
	}
	return nil
}

// WithVAD returns a copy with VAD settings.
func (c Config) WithVAD(threshold float64, maxSilence time.Duration) Config {
	c.ActivationThreshold = threshold
	c.MaxSilence = maxSilence
	return c
}

// WithVoice returns a copy with the synthesizer voice set.
func (c Config) WithVoice(voice string) Config {
	c.Voice = voice
	return c
}
