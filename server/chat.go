package server

import (
	"bufio"
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp"

	"github.com/aidenhq/aiden/core"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// normalize fills in a fresh session id when the client did not supply one.
func (r *chatRequest) normalize() {
	if r.SessionID == "" {
		r.SessionID = core.NewID()
	}
}

// statusForRunError maps synchronous run rejections onto HTTP status codes.
func statusForRunError(err error) int {
	switch {
	case errors.Is(err, core.ErrMalformedRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, core.ErrSessionBusy):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// handleChat runs one turn to completion and returns only the final answer.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	req.normalize()

	events, err := s.loop.Run(c.UserContext(), req.SessionID, req.Message)
	if err != nil {
		return c.Status(statusForRunError(err)).JSON(fiber.Map{"error": err.Error()})
	}

	var final core.StreamEvent
	for ev := range events {
		if ev.IsTerminal() {
			final = ev
		}
	}

	if final.Type == core.EventError {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"session_id": req.SessionID,
			"error":      final.Detail,
		})
	}

	return c.JSON(chatResponse{SessionID: req.SessionID, Content: final.Content})
}

// handleChatStream relays the turn's event sequence as newline-delimited
// JSON, one object per event, flushed as produced. A broken write cancels the
// run at its next suspension point.
func (s *Server) handleChatStream(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	req.normalize()

	ctx, cancel := context.WithCancel(context.Background())

	events, err := s.loop.Run(ctx, req.SessionID, req.Message)
	if err != nil {
		cancel()
		return c.Status(statusForRunError(err)).JSON(fiber.Map{"error": err.Error()})
	}

	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Set("X-Session-Id", req.SessionID)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		ch := newNDJSONChannel(w)
		for ev := range events {
			if err := ch.Send(ev); err != nil {
				// Client went away: stop the producer and drain so the run
				// goroutine can finish persisting.
				cancel()
				for range events {
				}
				return
			}
		}
	}))

	return nil
}

// handleChatWS serves multiple turns over one websocket. The client sends
// {"message", "session_id"?} requests; the server answers each with the full
// ordered event sequence as JSON text messages.
func (s *Server) handleChatWS(conn *websocket.Conn) {
	defer conn.Close()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		req.normalize()

		ctx, cancel := context.WithCancel(context.Background())

		events, err := s.loop.Run(ctx, req.SessionID, req.Message)
		if err != nil {
			cancel()
			if werr := conn.WriteJSON(core.ErrorEvent(err.Error())); werr != nil {
				return
			}
			continue
		}

		ch := newWSChannel(conn)
		broken := false
		for ev := range events {
			if broken {
				continue
			}
			if err := ch.Send(ev); err != nil {
				cancel()
				broken = true
			}
		}
		cancel()

		if broken {
			return
		}
	}
}
