package voice

import "context"

// Transcriber converts captured audio into text. Implementations wrap a
// speech-to-text engine and should respect the context deadline.
type Transcriber interface {
	// Transcribe converts a complete utterance (PCM16 or encoded audio,
	// engine-specific) into a transcript. An empty transcript for audible
	// input is treated as a TranscriptionFailure by the pipeline.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer converts text into playable audio bytes.
type Synthesizer interface {
	// Synthesize renders the text with the configured voice and returns the
	// encoded audio.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
