package ux

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/superagent-run/superagent/types"
)

// maxFusedHistory bounds how much conversation history is folded into a
// UnifiedContext: the last 10 turns, with decayed relevance.
const maxFusedHistory = 10

// fusedMemoryK is the number of memory retrievals fused per turn.
const fusedMemoryK = 5

// historyHalfLifeTurns controls the decay applied to older history
// entries: relevance halves every this many turns back from the latest.
const historyHalfLifeTurns = 5.0

// MemoryRetriever is the narrow memory-lookup contract ContextFusion
// depends on — satisfied by *memory.AdaptiveMemory.
type MemoryRetriever interface {
	RetrieveRelevantContext(ctx context.Context, query string, k int) ([]types.MemoryItem, error)
}

// ContextFusion merges a session's conversation history, active files,
// active tools, current plan, and top-k memory retrievals into a single
// UnifiedContext, caching the result per session.
type ContextFusion struct {
	memory MemoryRetriever

	mu    sync.RWMutex
	cache map[string]*types.UnifiedContext
}

// NewContextFusion builds a fusion service backed by retriever. retriever
// may be nil, in which case fusion proceeds without memory nodes.
func NewContextFusion(retriever MemoryRetriever) *ContextFusion {
	return &ContextFusion{memory: retriever, cache: make(map[string]*types.UnifiedContext)}
}

// Fuse builds a fresh UnifiedContext for sessionID from the supplied
// conversation history, active files, active tools, and current plan,
// retrieving fusedMemoryK memory items relevant to goalText. The result
// is cached; a later GetCachedContext(sessionID) returns it until the
// next Fuse call for that session.
func (f *ContextFusion) Fuse(ctx context.Context, sessionID, goalText string, history []types.Message, files, tools []string, plan *types.Plan) (*types.UnifiedContext, error) {
	now := time.Now()
	recent := history
	if len(recent) > maxFusedHistory {
		recent = recent[len(recent)-maxFusedHistory:]
	}

	uc := &types.UnifiedContext{
		SessionID:           sessionID,
		ConversationHistory: recent,
		ActiveFiles:         files,
		ActiveTools:         tools,
		CurrentPlan:         plan,
		CreatedAt:           now,
	}

	for i, msg := range recent {
		turnsBack := float64(len(recent) - 1 - i)
		relevance := decay(turnsBack, historyHalfLifeTurns)
		uc.Nodes = append(uc.Nodes, types.ContextNode{
			ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID+msg.Content)).String(),
			Type:           types.ContextNodeConversation,
			Content:        msg.Content,
			RelevanceScore: relevance,
			Timestamp:      now,
		})
	}
	for _, path := range files {
		uc.Nodes = append(uc.Nodes, types.ContextNode{
			ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID+"file:"+path)).String(),
			Type:           types.ContextNodeFile,
			Content:        path,
			RelevanceScore: 1.0,
			Timestamp:      now,
		})
	}
	for _, tool := range tools {
		uc.Nodes = append(uc.Nodes, types.ContextNode{
			ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID+"tool:"+tool)).String(),
			Type:           types.ContextNodeTool,
			Content:        tool,
			RelevanceScore: 1.0,
			Timestamp:      now,
		})
	}
	if plan != nil {
		uc.Nodes = append(uc.Nodes, types.ContextNode{
			ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID+"plan:"+plan.TaskID)).String(),
			Type:           types.ContextNodePlan,
			Content:        plan.Reasoning,
			RelevanceScore: 1.0,
			Timestamp:      now,
		})
	}

	if f.memory != nil && goalText != "" {
		items, err := f.memory.RetrieveRelevantContext(ctx, goalText, fusedMemoryK)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			uc.Nodes = append(uc.Nodes, types.ContextNode{
				ID:             item.ID,
				Type:           types.ContextNodeMemory,
				Content:        item.Content,
				RelevanceScore: item.Importance,
				Timestamp:      item.Timestamp,
			})
		}
	}

	f.mu.Lock()
	f.cache[sessionID] = uc
	f.mu.Unlock()

	return uc, nil
}

// GetCachedContext returns the last fused UnifiedContext for sessionID,
// or nil if none has been fused yet.
func (f *ContextFusion) GetCachedContext(sessionID string) *types.UnifiedContext {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cache[sessionID]
}

// decay returns an exponential relevance decay factor given how many
// turns back an item sits and the half-life in turns.
func decay(turnsBack, halfLife float64) float64 {
	if halfLife <= 0 {
		return 1.0
	}
	return math.Pow(0.5, turnsBack/halfLife)
}
