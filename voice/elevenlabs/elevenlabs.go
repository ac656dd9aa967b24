// Package elevenlabs implements text-to-speech over the ElevenLabs HTTP API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aidenhq/aiden/core"
)

const defaultBaseURL = "https://api.elevenlabs.io/v1"

// Options configures the ElevenLabs synthesizer.
type Options struct {
	APIKey          string
	VoiceID         string
	ModelID         string
	Stability       float64
	SimilarityBoost float64
	BaseURL         string
	HTTPClient      *http.Client
}

// Synthesizer implements voice.Synthesizer over the ElevenLabs
// text-to-speech endpoint.
type Synthesizer struct {
	opts   Options
	client *http.Client
}

// NewSynthesizer constructs an ElevenLabs synthesizer. APIKey and VoiceID are
// required; the rest have defaults.
func NewSynthesizer(apiKey, voiceID string, optFns ...func(o *Options)) (*Synthesizer, error) {
	opts := Options{
		APIKey:          apiKey,
		VoiceID:         voiceID,
		ModelID:         "eleven_turbo_v2_5",
		Stability:       0.5,
		SimilarityBoost: 0.75,
		BaseURL:         defaultBaseURL,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs: missing API key")
	}
	if opts.VoiceID == "" {
		return nil, fmt.Errorf("elevenlabs: missing voice id")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Synthesizer{opts: opts, client: client}, nil
}

// Synthesize renders text as MP3 audio.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload := map[string]any{
		"text":     text,
		"model_id": s.opts.ModelID,
		"voice_settings": map[string]any{
			"stability":        s.opts.Stability,
			"similarity_boost": s.opts.SimilarityBoost,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSynthesisFailure, err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s", s.opts.BaseURL, s.opts.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSynthesisFailure, err)
	}
	req.Header.Set("xi-api-key", s.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSynthesisFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", core.ErrSynthesisFailure, parseError(resp))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audio: %v", core.ErrSynthesisFailure, err)
	}
	return audio, nil
}

// parseError extracts a useful message from an error response.
func parseError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Detail struct {
			Message string `json:"message"`
		} `json:"detail"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, errResp.Detail.Message)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))
}
