// Package voice composes speech-to-text, the agent loop and text-to-speech
// into a latency-budgeted round trip driven by a per-session state machine
// (idle, listening, processing, speaking). Turn taking uses an energy based
// voice activity heuristic: audio above the activation threshold opens an
// utterance, and sustained silence closes it and flushes the buffered audio
// to transcription.
package voice
