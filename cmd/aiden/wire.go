package main

import (
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aidenhq/aiden/agent"
	"github.com/aidenhq/aiden/config"
	"github.com/aidenhq/aiden/core"
	"github.com/aidenhq/aiden/logging"
	"github.com/aidenhq/aiden/memory"
	"github.com/aidenhq/aiden/model"
	anthropicmodel "github.com/aidenhq/aiden/model/anthropic"
	openaimodel "github.com/aidenhq/aiden/model/openai"
	"github.com/aidenhq/aiden/tool"
	"github.com/aidenhq/aiden/voice"
	"github.com/aidenhq/aiden/voice/elevenlabs"
	"github.com/aidenhq/aiden/voice/whisper"
)

// app aggregates everything the commands need.
type app struct {
	cfg    *config.Config
	logger logging.Logger
	loop   *agent.Loop
	stt    voice.Transcriber
	tts    voice.Synthesizer
}

// wireApp builds the full dependency graph from configuration.
func wireApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LogLevelInfo,
		Format: "text",
		Output: os.Stderr,
	})

	m, err := buildModel(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	registry := buildRegistry(cfg, logger)

	loop := agent.NewLoop(m, store, registry, func(o *agent.Options) {
		o.Instructions = cfg.Agent.Instructions
		o.MaxToolCalls = cfg.Agent.MaxToolCalls
		o.MaxHistoryTurns = cfg.Agent.MaxHistoryTurns
		o.Logger = logger
	})

	a := &app{cfg: cfg, logger: logger, loop: loop}

	if cfg.Voice.Enabled {
		a.stt, a.tts, err = buildVoiceEngines(cfg)
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

// buildModel assembles the primary/fallback provider chain. With both keys
// configured the non-primary provider becomes the fallback; with one key the
// single provider runs without failover.
func buildModel(cfg *config.Config, logger logging.Logger) (model.Model, error) {
	var oai, claude model.Model

	if cfg.Model.OpenAIKey != "" {
		client := openai.NewClient(option.WithAPIKey(cfg.Model.OpenAIKey))
		oai = openaimodel.NewModelFromClient(&client, func(o *openaimodel.Options) {
			if cfg.Model.OpenAIModel != "" {
				o.Model = cfg.Model.OpenAIModel
			}
			o.Temperature = cfg.Model.Temperature
		})
	}
	if cfg.Model.AnthropicKey != "" {
		claude = anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.Model.ClaudeModel != "" {
				o.Model = anthropic.Model(cfg.Model.ClaudeModel)
			}
			o.Temperature = cfg.Model.Temperature
			o.APIKey = cfg.Model.AnthropicKey
		})
	}

	var primary, fallback model.Model
	switch cfg.Model.Provider {
	case "openai":
		primary, fallback = oai, claude
	case "anthropic":
		primary, fallback = claude, oai
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}

	if primary == nil {
		return nil, fmt.Errorf("no API key configured for primary provider %q", cfg.Model.Provider)
	}
	if fallback == nil {
		return primary, nil
	}

	return model.NewFailover(primary, fallback, logger), nil
}

func buildStore(cfg *config.Config) (core.MemoryStore, error) {
	switch cfg.Memory.Driver {
	case "memory":
		return memory.NewInMemoryStore(), nil
	case "sqlite":
		return memory.NewSQLiteStore(cfg.Memory.Path)
	default:
		return nil, fmt.Errorf("unknown memory driver %q", cfg.Memory.Driver)
	}
}

func buildRegistry(cfg *config.Config, logger logging.Logger) *tool.Registry {
	registry := tool.NewRegistry(func(o *tool.RegistryOptions) {
		o.Timeout = cfg.Tools.InvokeTimeout
		o.Logger = logger
	})

	registry.MustRegister(tool.NewWebSearchTool())
	registry.MustRegister(tool.NewReadFileTool(cfg.Tools.FileRoot))
	registry.MustRegister(tool.NewTimeTool())
	if len(cfg.Tools.WebhookAllowlist) > 0 {
		registry.MustRegister(tool.NewWebhookTool(cfg.Tools.WebhookAllowlist))
	}

	return registry
}

func buildVoiceEngines(cfg *config.Config) (voice.Transcriber, voice.Synthesizer, error) {
	engine := whisper.NewEngine(func(o *whisper.Options) {
		o.APIKey = cfg.Model.OpenAIKey
	})

	switch cfg.Voice.Synthesizer {
	case "openai":
		return engine, engine, nil
	case "elevenlabs":
		tts, err := elevenlabs.NewSynthesizer(cfg.Voice.ElevenLabsKey, cfg.Voice.ElevenLabsVoice)
		if err != nil {
			return nil, nil, err
		}
		return engine, tts, nil
	default:
		return nil, nil, fmt.Errorf("unknown voice synthesizer %q", cfg.Voice.Synthesizer)
	}
}

// voiceConfig maps file configuration onto the pipeline config.
func (a *app) voiceConfig() voice.Config {
	vc := voice.DefaultConfig()
	vc.ActivationThreshold = a.cfg.Voice.ActivationThreshold
	vc.MaxSilence = a.cfg.Voice.MaxSilence
	vc.FlushPartialUtterance = a.cfg.Voice.FlushPartialUtterance
	return vc
}
