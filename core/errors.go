package core

import "errors"

// Shared error taxonomy. Callers classify with errors.Is; transports map
// these onto status codes or error StreamEvents.
var (
	// ErrProviderUnavailable signals that both model providers failed for a call.
	ErrProviderUnavailable = errors.New("model provider unavailable")
	// ErrToolTimeout signals a tool exceeded its invocation bound.
	ErrToolTimeout = errors.New("tool invocation timed out")
	// ErrTranscriptionFailure signals speech-to-text failed or returned empty
	// text for non-silent audio.
	ErrTranscriptionFailure = errors.New("transcription failed")
	// ErrSynthesisFailure signals text-to-speech failed.
	ErrSynthesisFailure = errors.New("speech synthesis failed")
	// ErrSessionBusy signals a concurrent turn was attempted on a session that
	// already has a run in flight.
	ErrSessionBusy = errors.New("session busy")
	// ErrMalformedRequest signals required input was missing or invalid.
	ErrMalformedRequest = errors.New("malformed request")
)
