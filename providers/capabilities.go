package providers

import (
	"strings"

	"github.com/superagent-run/superagent/llm"
)

// claudeModelCaps lists context/output limits and feature support for the
// Claude families this repository registers. Keys are family prefixes so
// dated snapshot ids ("claude-3-5-sonnet-20241022") match their family
// row. Claude has no dedicated JSON mode; structured output goes through
// tool use.
var claudeModelCaps = []struct {
	prefix string
	caps   llm.ModelCapabilities
}{
	{"claude-3-5-sonnet", llm.ModelCapabilities{ContextWindow: 200000, MaxOutputTokens: 8192, SupportsVision: true}},
	{"claude-3-5-haiku", llm.ModelCapabilities{ContextWindow: 200000, MaxOutputTokens: 8192}},
	{"claude-3-opus", llm.ModelCapabilities{ContextWindow: 200000, MaxOutputTokens: 4096, SupportsVision: true}},
	{"claude-3-sonnet", llm.ModelCapabilities{ContextWindow: 200000, MaxOutputTokens: 4096, SupportsVision: true}},
	{"claude-3-haiku", llm.ModelCapabilities{ContextWindow: 200000, MaxOutputTokens: 4096, SupportsVision: true}},
}

// ClaudeModelCapabilities reports limits for a Claude model id. Both
// Claude adapters (HTTP and SDK) front the same upstream, so they share
// this table.
func ClaudeModelCapabilities(model string) (llm.ModelCapabilities, bool) {
	for _, row := range claudeModelCaps {
		if strings.HasPrefix(model, row.prefix) {
			return row.caps, true
		}
	}
	return llm.ModelCapabilities{}, false
}

// geminiModelCaps lists limits for the Gemini families this repository
// registers. Gemini supports a JSON response MIME type natively.
var geminiModelCaps = []struct {
	prefix string
	caps   llm.ModelCapabilities
}{
	{"gemini-2.0-flash", llm.ModelCapabilities{ContextWindow: 1048576, MaxOutputTokens: 8192, SupportsVision: true, SupportsJSONMode: true}},
	{"gemini-1.5-pro", llm.ModelCapabilities{ContextWindow: 2097152, MaxOutputTokens: 8192, SupportsVision: true, SupportsJSONMode: true}},
	{"gemini-1.5-flash", llm.ModelCapabilities{ContextWindow: 1048576, MaxOutputTokens: 8192, SupportsVision: true, SupportsJSONMode: true}},
}

// GeminiModelCapabilities reports limits for a Gemini model id.
func GeminiModelCapabilities(model string) (llm.ModelCapabilities, bool) {
	for _, row := range geminiModelCaps {
		if strings.HasPrefix(model, row.prefix) {
			return row.caps, true
		}
	}
	return llm.ModelCapabilities{}, false
}
