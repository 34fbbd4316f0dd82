package llm

import (
	"sort"
	"sync"
)

// ProviderGroupConfig 定義一組模型的配置
type ProviderGroupConfig struct {
	Type    string         `json:"type"`
	APIKeys []string       `json:"api_keys,omitempty"`
	Models  []string       `json:"models"`
	BaseURL string         `json:"base_url,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// ProviderFactory 定義建立 LLM Client 的工廠介面
type ProviderFactory interface {
	// Create 根據配置建立一組 atomic clients
	Create(groupConfig ProviderGroupConfig) ([]LLMClient, error)
}

var (
	registryMu       sync.RWMutex
	providerRegistry = make(map[string]ProviderFactory)
)

// RegisterProvider 註冊一個 Provider Factory
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providerRegistry[name] = factory
}

// GetProviderFactory 取得指定名稱的 Provider Factory
func GetProviderFactory(name string) (ProviderFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := providerRegistry[name]
	return f, ok
}

// Providers lists the registered provider names, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
