package gemini

import (
	"context"
	"log/slog"

	"imagent/pkg/llm"
)

// GeminiFactory handles creation of Gemini Clients
type GeminiFactory struct{}

// Create implements ProviderFactory
func (f *GeminiFactory) Create(cfg llm.ProviderGroupConfig) ([]llm.LLMClient, error) {
	var clients []llm.LLMClient

	useThought := false
	if effort, ok := cfg.Options["thinking_effort"].(string); ok && effort != "" && effort != "off" {
		useThought = true
	}

	// Cartesian Product: Models x Keys (prioritize models)
	for _, model := range cfg.Models {
		for _, key := range cfg.APIKeys {
			client, err := NewGeminiClient(context.Background(), key, model, useThought, cfg.BaseURL)
			if err != nil {
				slog.Error("Failed to create Gemini client", "model", model, "error", err)
				continue
			}
			clients = append(clients, client)
		}
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("gemini", &GeminiFactory{})
}
