// Package config loads runtime configuration from file and environment. All
// values carry documented defaults so a bare process starts with in-memory
// services and the primary provider's standard credentials lookup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration tree.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Model  ModelConfig  `mapstructure:"model"`
	Memory MemoryConfig `mapstructure:"memory"`
	Agent  AgentConfig  `mapstructure:"agent"`
	Voice  VoiceConfig  `mapstructure:"voice"`
	Tools  ToolsConfig  `mapstructure:"tools"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ModelConfig selects and tunes the model providers.
type ModelConfig struct {
	// Provider picks the primary: "openai" or "anthropic". The other becomes
	// the fallback when both keys are configured.
	Provider     string  `mapstructure:"provider"`
	OpenAIModel  string  `mapstructure:"openai_model"`
	ClaudeModel  string  `mapstructure:"claude_model"`
	OpenAIKey    string  `mapstructure:"openai_api_key"`
	AnthropicKey string  `mapstructure:"anthropic_api_key"`
	Temperature  float64 `mapstructure:"temperature"`
}

// MemoryConfig selects the history store.
type MemoryConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `mapstructure:"driver"`
	// Path is the sqlite database file when Driver is "sqlite".
	Path string `mapstructure:"path"`
}

// AgentConfig tunes the conversation loop.
type AgentConfig struct {
	Instructions    string `mapstructure:"instructions"`
	MaxToolCalls    int    `mapstructure:"max_tool_calls"`
	MaxHistoryTurns int    `mapstructure:"max_history_turns"`
}

// VoiceConfig tunes the voice pipeline and its engines.
type VoiceConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	ActivationThreshold   float64       `mapstructure:"activation_threshold"`
	MaxSilence            time.Duration `mapstructure:"max_silence"`
	FlushPartialUtterance bool          `mapstructure:"flush_partial_utterance"`
	// Synthesizer is "openai" or "elevenlabs".
	Synthesizer     string `mapstructure:"synthesizer"`
	ElevenLabsKey   string `mapstructure:"elevenlabs_api_key"`
	ElevenLabsVoice string `mapstructure:"elevenlabs_voice_id"`
}

// ToolsConfig configures the builtin tools.
type ToolsConfig struct {
	FileRoot         string        `mapstructure:"file_root"`
	WebhookAllowlist []string      `mapstructure:"webhook_allowlist"`
	InvokeTimeout    time.Duration `mapstructure:"invoke_timeout"`
}

// Load reads configuration from the optional file at path (any format viper
// understands), then overlays AIDEN_* environment variables, then applies
// defaults for everything still unset.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AIDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.temperature", 0.7)

	// Empty defaults register the keys with viper so AutomaticEnv can
	// resolve AIDEN_MODEL_OPENAI_API_KEY and friends.
	v.SetDefault("model.openai_model", "")
	v.SetDefault("model.claude_model", "")
	v.SetDefault("model.openai_api_key", "")
	v.SetDefault("model.anthropic_api_key", "")

	v.SetDefault("memory.driver", "memory")
	v.SetDefault("memory.path", "aiden.db")

	v.SetDefault("agent.instructions", "")
	v.SetDefault("agent.max_tool_calls", 8)
	v.SetDefault("agent.max_history_turns", 10)

	v.SetDefault("voice.enabled", false)
	v.SetDefault("voice.activation_threshold", 0.02)
	v.SetDefault("voice.max_silence", 2*time.Second)
	v.SetDefault("voice.flush_partial_utterance", false)
	v.SetDefault("voice.synthesizer", "openai")
	v.SetDefault("voice.elevenlabs_api_key", "")
	v.SetDefault("voice.elevenlabs_voice_id", "")

	v.SetDefault("tools.file_root", ".")
	v.SetDefault("tools.webhook_allowlist", []string{})
	v.SetDefault("tools.invoke_timeout", 10*time.Second)
}
