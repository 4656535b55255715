package ux

import (
	"context"
	"strings"

	"github.com/superagent-run/superagent/llm"
	"github.com/superagent-run/superagent/llm/providerrouter"
)

// Intent is the fixed classification vocabulary for resolved user input.
type Intent string

const (
	IntentChat       Intent = "chat"
	IntentCodeWrite  Intent = "code_write"
	IntentCodeEdit   Intent = "code_edit"
	IntentCodeReview Intent = "code_review"
	IntentFileRead   Intent = "file_read"
	IntentFileWrite  Intent = "file_write"
	IntentSearch     Intent = "search"
	IntentExecute    Intent = "execute"
	IntentPlan       Intent = "plan"
	IntentExplain    Intent = "explain"
	IntentDebug      Intent = "debug"
	IntentTest       Intent = "test"
	IntentRefactor   Intent = "refactor"
	IntentUnknown    Intent = "unknown"
)

var validIntents = map[Intent]bool{
	IntentChat: true, IntentCodeWrite: true, IntentCodeEdit: true,
	IntentCodeReview: true, IntentFileRead: true, IntentFileWrite: true,
	IntentSearch: true, IntentExecute: true, IntentPlan: true,
	IntentExplain: true, IntentDebug: true, IntentTest: true,
	IntentRefactor: true, IntentUnknown: true,
}

// maxIntentTemperature keeps the classification call near-deterministic.
const maxIntentTemperature = 0.1

const intentClassificationPrompt = `Classify the user's message into exactly one label, respond with the label alone and nothing else:
chat, code_write, code_edit, code_review, file_read, file_write, search, execute, plan, explain, debug, test, refactor, unknown`

// IntentResolver turns raw text into an Intent with a confidence score.
// A resolver that cannot confidently classify returns (IntentUnknown, 0, nil)
// rather than an error — an unparseable classification is not a failure
// of the turn, just an uninformative one.
type IntentResolver interface {
	ResolveIntent(ctx context.Context, text string) (Intent, float64, error)
}

// LLMIntentResolver classifies intent via a single low-temperature chat
// call through the Provider Router's fallback chain.
type LLMIntentResolver struct {
	router *providerrouter.Router
	model  string
}

// NewLLMIntentResolver builds a resolver that asks model (routed through
// router) to classify input text.
func NewLLMIntentResolver(router *providerrouter.Router, model string) *LLMIntentResolver {
	return &LLMIntentResolver{router: router, model: model}
}

// ResolveIntent implements IntentResolver.
func (r *LLMIntentResolver) ResolveIntent(ctx context.Context, text string) (Intent, float64, error) {
	req := &llm.ChatRequest{
		Model: r.model,
		Messages: []llm.Message{
			llm.NewSystemMessage(intentClassificationPrompt),
			llm.NewUserMessage(text),
		},
		Temperature: maxIntentTemperature,
		MaxTokens:   16,
	}
	resp, err := r.router.Generate(ctx, req, "", true)
	if err != nil {
		return IntentUnknown, 0, err
	}
	if len(resp.Choices) == 0 {
		return IntentUnknown, 0, nil
	}

	raw := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	raw = strings.Trim(raw, ".\"'")
	intent := Intent(raw)
	if !validIntents[intent] {
		return IntentUnknown, 0, nil
	}
	return intent, 1.0, nil
}
