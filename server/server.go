package server

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/aidenhq/aiden/agent"
	"github.com/aidenhq/aiden/logging"
	"github.com/aidenhq/aiden/voice"
)

// Options configures the HTTP server.
type Options struct {
	// AppName shows up in the fiber banner and error pages.
	AppName string

	// Logger receives request lifecycle logs.
	Logger logging.Logger

	// Transcriber and Synthesizer enable the voice surface when both are
	// set; the voice endpoints report unavailable otherwise.
	Transcriber voice.Transcriber
	Synthesizer voice.Synthesizer

	// VoiceConfig tunes the voice pipeline for sessions started through the
	// voice surface.
	VoiceConfig voice.Config
}

// Server wires the agent loop and voice pipeline into HTTP endpoints.
type Server struct {
	app  *fiber.App
	loop *agent.Loop
	opts Options

	// Active voice pipelines, one per session.
	voiceMu   sync.Mutex
	voiceRuns map[string]*voice.Pipeline
}

// New constructs the server and registers all routes.
func New(loop *agent.Loop, optFns ...func(o *Options)) *Server {
	opts := Options{
		AppName:     "aiden",
		Logger:      logging.NewDefaultSlogLogger(),
		VoiceConfig: voice.DefaultConfig(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		loop:      loop,
		opts:      opts,
		voiceRuns: make(map[string]*voice.Pipeline),
	}

	app := fiber.New(fiber.Config{
		AppName:               opts.AppName,
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Post("/chat", s.handleChat)
	api.Post("/chat/stream", s.handleChatStream)

	vapi := api.Group("/voice")
	vapi.Get("/status", s.handleVoiceStatus)
	vapi.Post("/tts", s.handleTTS)
	vapi.Post("/stt", s.handleSTT)
	vapi.Post("/start", s.handleVoiceStart)
	vapi.Post("/stop", s.handleVoiceStop)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(s.handleChatWS))
	app.Get("/ws/voice", websocket.New(s.handleVoiceWS))

	s.app = app
	return s
}

// Listen starts serving on addr and blocks until shutdown.
func (s *Server) Listen(addr string) error {
	s.opts.Logger.Info("server.listen", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server and any active voice sessions.
func (s *Server) Shutdown() error {
	s.voiceMu.Lock()
	for id, p := range s.voiceRuns {
		_ = p.Stop()
		delete(s.voiceRuns, id)
	}
	s.voiceMu.Unlock()

	return s.app.Shutdown()
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) voiceConfigured() bool {
	return s.opts.Transcriber != nil && s.opts.Synthesizer != nil
}
