package orchestrator

import (
	"context"

	"github.com/superagent-run/superagent/llm"
	"github.com/superagent-run/superagent/llm/providerrouter"
)

// Generator abstracts "make one LLM call and get text back" for the
// planner and for THINK/REFLECT steps, decoupling the orchestrator from
// the Provider Router's full ChatRequest/ChatResponse surface.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RouterGenerator adapts a providerrouter.Router to the Generator
// interface, targeting a single model.
type RouterGenerator struct {
	Router *providerrouter.Router
	Model  string
}

func (g *RouterGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := &llm.ChatRequest{
		Model:    g.Model,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	}
	resp, err := g.Router.Generate(ctx, req, "", true)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
