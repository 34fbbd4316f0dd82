package llm

import (
	"fmt"
	"log/slog"
)

// NewFromConfig 根據設定建立 LLM Client
// 多個 client 時包裹在 FallbackClient 中，依設定順序嘗試
func NewFromConfig(groups []ProviderGroupConfig) (LLMClient, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("missing 'llm' config")
	}

	var allAtomicClients []LLMClient
	for _, group := range groups {
		slog.Info("Loading LLM group", "type", group.Type, "models", len(group.Models))

		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("Unknown provider type", "type", group.Type, "known", Providers())
			continue
		}

		clients, err := factory.Create(group)
		if err != nil {
			slog.Warn("Failed to create clients", "type", group.Type, "error", err)
			continue
		}

		allAtomicClients = append(allAtomicClients, clients...)
	}

	if len(allAtomicClients) == 0 {
		return nil, fmt.Errorf("no LLM clients could be initialized")
	}

	slog.Info("LLM clients initialized", "count", len(allAtomicClients))

	if len(allAtomicClients) == 1 {
		return allAtomicClients[0], nil
	}
	return &FallbackClient{Clients: allAtomicClients}, nil
}
