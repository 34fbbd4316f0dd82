// Package autoload registers every built-in provider factory.
package autoload

import (
	_ "imagent/pkg/llm/gemini"
	_ "imagent/pkg/llm/ollama"
	_ "imagent/pkg/llm/openailm"
)
