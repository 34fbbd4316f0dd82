package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"imagent/pkg/imagesvc"
	"imagent/pkg/llm"
	"imagent/pkg/monitor"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultAgentModel = "gpt-4o-mini"
	DefaultImageModel = "nano-banana-2"
)

// DefaultSystemPrompt is the persona used when config.json sets none.
const DefaultSystemPrompt = "你是图片助手，有两个工具：\n" +
	"1. generate_image - 生成新图片\n" +
	"2. edit_image - 编辑已有图片\n\n" +
	"重要规则：\n" +
	"- 如果用户说'生成/画/创建'，使用 generate_image\n" +
	"- 如果用户说'修改/改成/加上/去掉/编辑'等修改意图，使用 edit_image\n" +
	"- edit_image 会自动使用对话中最近生成的图片\n" +
	"工具返回 JSON，解析后用中文友好回复。"

// Config defines the global application configuration structure.
// It maps directly to config.json; environment variables override it.
type Config struct {
	// LLM lists provider groups tried in order. When empty, an implicit
	// openai group is built from the OPENAI_* environment.
	LLM []llm.ProviderGroupConfig `json:"llm"`
	// AgentModel is the chat model of the implicit openai group.
	AgentModel string `json:"agent_model"`
	// SystemPrompt is the instruction string sent to the AI as the
	// initial system message of every session.
	SystemPrompt string       `json:"system_prompt"`
	Image        ImageConfig  `json:"image"`
	System       SystemConfig `json:"system"`
}

// ImageConfig holds the image service connection. The section is hot
// reloaded into the running client.
type ImageConfig struct {
	BaseURL           string `json:"base_url"`
	APIKey            string `json:"api_key"`
	Model             string `json:"model"`
	GenerateTimeoutMs int    `json:"generate_timeout_ms"`
	EditTimeoutMs     int    `json:"edit_timeout_ms"`
	DownloadTimeoutMs int    `json:"download_timeout_ms"`
	// MaxBodyBytes caps image service replies and downloaded images.
	MaxBodyBytes int64 `json:"max_body_bytes"`
	// StagingDir receives the temp copies of images being edited.
	// Empty means the OS temp dir.
	StagingDir string `json:"staging_dir"`
}

// Settings converts the section into image client settings.
func (c ImageConfig) Settings() imagesvc.Settings {
	return imagesvc.Settings{
		BaseURL:         c.BaseURL,
		APIKey:          c.APIKey,
		Model:           c.Model,
		GenerateTimeout: time.Duration(c.GenerateTimeoutMs) * time.Millisecond,
		EditTimeout:     time.Duration(c.EditTimeoutMs) * time.Millisecond,
		DownloadTimeout: time.Duration(c.DownloadTimeoutMs) * time.Millisecond,
		MaxBodyBytes:    c.MaxBodyBytes,
	}
}

// SystemConfig defines engine-level technical parameters.
type SystemConfig struct {
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for one
	// chat model call. The context will be cancelled if exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// EnableTools globally toggles tool calling. If false, the model
	// is not offered the image tools.
	EnableTools bool `json:"enable_tools"`
	// DebugChunks enables saving every raw LLM response to the debug
	// folder for inspection and troubleshooting purposes.
	DebugChunks bool `json:"debug_chunks"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
}

// LLMTimeout returns the per-call chat model timeout.
func (c SystemConfig) LLMTimeout() time.Duration {
	if c.LLMTimeoutMs <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.LLMTimeoutMs) * time.Millisecond
}

// Default returns a Config initialized with safe default values, used as
// the base that config.json and the environment are layered on.
func Default() *Config {
	return &Config{
		AgentModel:   DefaultAgentModel,
		SystemPrompt: DefaultSystemPrompt,
		Image: ImageConfig{
			Model:             DefaultImageModel,
			GenerateTimeoutMs: 30000,
			EditTimeoutMs:     60000,
			DownloadTimeoutMs: 10000,
			MaxBodyBytes:      imagesvc.DefaultMaxBodyBytes,
		},
		System: SystemConfig{
			LLMTimeoutMs: 120000,
			EnableTools:  true,
			LogLevel:     "info",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := json.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields with the OPENAI_BASE_URL, OPENAI_API_KEY,
// AGENT_MODEL, IMAGE_MODEL and LOG_LEVEL environment variables when set.
func (c *Config) ApplyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Image.BaseURL, "OPENAI_BASE_URL")
	set(&c.Image.APIKey, "OPENAI_API_KEY")
	set(&c.AgentModel, "AGENT_MODEL")
	set(&c.Image.Model, "IMAGE_MODEL")
	set(&c.System.LogLevel, "LOG_LEVEL")
}

// Validate rejects values the engine cannot run with. Missing image
// credentials are allowed; they surface per tool call.
func (c *Config) Validate() error {
	var errs []error
	for name, v := range map[string]int{
		"image.generate_timeout_ms": c.Image.GenerateTimeoutMs,
		"image.edit_timeout_ms":     c.Image.EditTimeoutMs,
		"image.download_timeout_ms": c.Image.DownloadTimeoutMs,
		"system.llm_timeout_ms":     c.System.LLMTimeoutMs,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", name, v))
		}
	}
	if c.Image.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("image.max_body_bytes must not be negative, got %d", c.Image.MaxBodyBytes))
	}
	if _, ok := monitor.ParseLevel(c.System.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("unknown system.log_level %q", c.System.LogLevel))
	}
	for i, g := range c.LLM {
		if g.Type == "" {
			errs = append(errs, fmt.Errorf("llm[%d]: type is required", i))
		}
		if len(g.Models) == 0 {
			errs = append(errs, fmt.Errorf("llm[%d]: at least one model is required", i))
		}
	}
	if len(c.LLM) == 0 && strings.TrimSpace(c.AgentModel) == "" {
		errs = append(errs, errors.New("agent_model is required when llm is empty"))
	}
	return errors.Join(errs...)
}

// LLMGroups returns the configured provider groups, or the implicit openai
// group built from the image service connection and AgentModel.
func (c *Config) LLMGroups() []llm.ProviderGroupConfig {
	if len(c.LLM) > 0 {
		return c.LLM
	}
	group := llm.ProviderGroupConfig{
		Type:    "openai",
		Models:  []string{c.AgentModel},
		BaseURL: c.Image.BaseURL,
		Options: map[string]any{"temperature": 0.0},
	}
	if c.Image.APIKey != "" {
		group.APIKeys = []string{c.Image.APIKey}
	}
	return []llm.ProviderGroupConfig{group}
}
