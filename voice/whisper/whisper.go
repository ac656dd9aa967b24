// Package whisper adapts the OpenAI audio APIs to the voice engine
// interfaces: Whisper for transcription and the speech endpoint for
// synthesis.
package whisper

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aidenhq/aiden/core"
)

// Options configures the OpenAI audio engine.
type Options struct {
	TranscriptionModel openai.AudioModel
	SpeechModel        openai.SpeechModel
	Voice              openai.AudioSpeechNewParamsVoice
	Language           string
	APIKey             string
}

// Engine implements voice.Transcriber and voice.Synthesizer over the OpenAI
// audio endpoints.
type Engine struct {
	client *openai.Client
	opts   Options
}

// NewEngine creates an audio engine using the official OpenAI client.
func NewEngine(optFns ...func(o *Options)) *Engine {
	opts := Options{
		TranscriptionModel: openai.AudioModelWhisper1,
		SpeechModel:        openai.SpeechModelTTS1,
		Voice:              openai.AudioSpeechNewParamsVoiceAlloy,
		Language:           "en",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := openai.NewClient(clientOpts...)

	return &Engine{
		client: &client,
		opts:   opts,
	}
}

// NewEngineFromClient creates an audio engine from an existing client.
func NewEngineFromClient(client *openai.Client, optFns ...func(o *Options)) *Engine {
	opts := Options{
		TranscriptionModel: openai.AudioModelWhisper1,
		SpeechModel:        openai.SpeechModelTTS1,
		Voice:              openai.AudioSpeechNewParamsVoiceAlloy,
		Language:           "en",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{
		client: client,
		opts:   opts,
	}
}

// Transcribe converts a complete WAV utterance into text via Whisper.
func (e *Engine) Transcribe(ctx context.Context, audio []byte) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "utterance.wav", "audio/wav"),
		Model: e.opts.TranscriptionModel,
	}
	if e.opts.Language != "" {
		params.Language = openai.String(e.opts.Language)
	}

	transcription, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrTranscriptionFailure, err)
	}

	return transcription.Text, nil
}

// Synthesize renders text as MP3 audio via the speech endpoint.
func (e *Engine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := e.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: e.opts.SpeechModel,
		Voice: e.opts.Voice,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSynthesisFailure, err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audio: %v", core.ErrSynthesisFailure, err)
	}
	return audio, nil
}
