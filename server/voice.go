package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/aidenhq/aiden/core"
	"github.com/aidenhq/aiden/voice"
)

type voiceStartRequest struct {
	SessionID string `json:"session_id"`
}

type ttsRequest struct {
	Text string `json:"text"`
}

// voiceStateMessage is the out-of-band websocket frame announcing pipeline
// state transitions.
type voiceStateMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

// handleVoiceStatus reports whether the voice capability is configured and
// what is currently running.
func (s *Server) handleVoiceStatus(c *fiber.Ctx) error {
	s.voiceMu.Lock()
	active := len(s.voiceRuns)
	s.voiceMu.Unlock()

	return c.JSON(fiber.Map{
		"available":            s.voiceConfigured(),
		"active_sessions":      active,
		"activation_threshold": s.opts.VoiceConfig.ActivationThreshold,
		"max_silence_ms":       s.opts.VoiceConfig.MaxSilence.Milliseconds(),
	})
}

// handleTTS renders text to audio bytes.
func (s *Server) handleTTS(c *fiber.Ctx) error {
	if s.opts.Synthesizer == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "speech synthesis not configured"})
	}

	var req ttsRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing text"})
	}

	audio, err := s.opts.Synthesizer.Synthesize(c.UserContext(), req.Text)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	c.Set(fiber.HeaderContentType, "audio/mpeg")
	return c.Send(audio)
}

// handleSTT transcribes raw audio bytes from the request body.
func (s *Server) handleSTT(c *fiber.Ctx) error {
	if s.opts.Transcriber == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "transcription not configured"})
	}

	audio := c.Body()
	if len(audio) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing audio body"})
	}

	text, err := s.opts.Transcriber.Transcribe(c.UserContext(), audio)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"text": text})
}

// handleVoiceStart creates and arms a voice pipeline for the session.
// Concurrent voice sessions per identifier are disallowed.
func (s *Server) handleVoiceStart(c *fiber.Ctx) error {
	if !s.voiceConfigured() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "voice not configured"})
	}

	var req voiceStartRequest
	if err := c.BodyParser(&req); err != nil || req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing session_id"})
	}

	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()

	if _, exists := s.voiceRuns[req.SessionID]; exists {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": core.ErrSessionBusy.Error(),
		})
	}

	p, err := voice.New(s.opts.VoiceConfig, req.SessionID, s.opts.Transcriber, s.opts.Synthesizer, s.loop,
		voice.WithLogger(s.opts.Logger))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if err := p.Start(context.Background()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	s.voiceRuns[req.SessionID] = p
	return c.JSON(fiber.Map{"session_id": req.SessionID, "state": string(p.State())})
}

// handleVoiceStop tears down the session's voice pipeline.
func (s *Server) handleVoiceStop(c *fiber.Ctx) error {
	var req voiceStartRequest
	if err := c.BodyParser(&req); err != nil || req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing session_id"})
	}

	s.voiceMu.Lock()
	p, exists := s.voiceRuns[req.SessionID]
	delete(s.voiceRuns, req.SessionID)
	s.voiceMu.Unlock()

	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no active voice session"})
	}

	if err := p.Stop(); err != nil && !errors.Is(err, voice.ErrNotStarted) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"session_id": req.SessionID, "state": string(voice.StateIdle)})
}

// handleVoiceWS is the full-duplex audio stream: binary frames in are PCM16
// audio for the session's pipeline; the server pushes JSON events, state
// transitions, and binary synthesized audio back. Disconnecting stops the
// pipeline.
func (s *Server) handleVoiceWS(conn *websocket.Conn) {
	defer conn.Close()

	sessionID := conn.Query("session_id")

	s.voiceMu.Lock()
	p, exists := s.voiceRuns[sessionID]
	s.voiceMu.Unlock()

	if !exists {
		_ = conn.WriteJSON(core.ErrorEvent("no active voice session; call /api/voice/start first"))
		return
	}

	ch := newWSChannel(conn)
	p.SetCallbacks(voice.Callbacks{
		OnEvent: func(ev core.StreamEvent) {
			_ = ch.Send(ev)
		},
		OnState: func(st voice.State) {
			_ = ch.SendJSON(voiceStateMessage{Type: "voice_state", State: string(st)})
		},
		OnAudioOut: func(audio []byte) {
			_ = ch.SendBinary(audio)
		},
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := p.Feed(data); err != nil {
			break
		}
	}

	// Disconnect: drop the callbacks and stop the session.
	p.SetCallbacks(voice.Callbacks{})

	s.voiceMu.Lock()
	if current, ok := s.voiceRuns[sessionID]; ok && current == p {
		delete(s.voiceRuns, sessionID)
	}
	s.voiceMu.Unlock()

	_ = p.Stop()
}
