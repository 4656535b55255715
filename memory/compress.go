package memory

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/superagent-run/superagent/types"
)

const (
	maxExtractedEntities = 50
	maxKeyDecisions      = 10
	maxDecisionLen       = 200
)

var decisionKeywords = []string{"decided", "chose", "selected", "determined", "concluded"}

// CompressionResult is the outcome of running Compress over a pending
// buffer of working-memory items.
type CompressionResult struct {
	Summary          types.MemoryItem
	Entities         []string
	Relationships    map[string][]string
	KeyDecisions     []string
	CompressionRatio float64
}

// Compress implements the five-step compression pipeline:
// extract entities, build a co-occurrence knowledge graph, extract key
// decisions, build a summary, and compute the compression ratio.
func Compress(items []types.MemoryItem) CompressionResult {
	entities := extractEntities(items, maxExtractedEntities)
	relationships := buildKnowledgeGraph(items, entities)
	decisions := extractKeyDecisions(items, maxKeyDecisions, maxDecisionLen)
	span := spanDescriptor(items)
	summaryText := buildSummaryText(entities, decisions, span)

	originalLen := 0
	for _, it := range items {
		originalLen += len(it.Content)
	}
	ratio := 0.0
	if originalLen > 0 {
		ratio = float64(len(summaryText)) / float64(originalLen)
	}

	summary := types.MemoryItem{
		Content:    summaryText,
		MemoryType: types.MemoryTypeLongTerm,
		Timestamp:  time.Now(),
		Metadata: map[string]any{
			"entities":      entities,
			"key_decisions": decisions,
			"source_count":  len(items),
		},
	}

	return CompressionResult{
		Summary:          summary,
		Entities:         entities,
		Relationships:    relationships,
		KeyDecisions:     decisions,
		CompressionRatio: ratio,
	}
}

// extractEntities tokenises content and collects distinct capitalised
// tokens in first-seen order, capped at limit.
func extractEntities(items []types.MemoryItem, limit int) []string {
	seen := make(map[string]bool)
	var entities []string
	for _, it := range items {
		for _, tok := range tokenize(it.Content) {
			if !isCapitalized(tok) || seen[tok] {
				continue
			}
			seen[tok] = true
			entities = append(entities, tok)
			if len(entities) >= limit {
				return entities
			}
		}
	}
	return entities
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isCapitalized(tok string) bool {
	if tok == "" {
		return false
	}
	return unicode.IsUpper([]rune(tok)[0])
}

// buildKnowledgeGraph adds an edge from e1 to e2 for every pair of
// extracted entities co-occurring in the same message .
func buildKnowledgeGraph(items []types.MemoryItem, entities []string) map[string][]string {
	entitySet := make(map[string]bool, len(entities))
	for _, e := range entities {
		entitySet[e] = true
	}

	graph := make(map[string][]string)
	seenEdge := make(map[string]bool)
	for _, it := range items {
		var present []string
		for _, tok := range tokenize(it.Content) {
			if entitySet[tok] {
				present = append(present, tok)
			}
		}
		for i, e1 := range present {
			for j, e2 := range present {
				if i == j || e1 == e2 {
					continue
				}
				key := e1 + "\x00" + e2
				if seenEdge[key] {
					continue
				}
				seenEdge[key] = true
				graph[e1] = append(graph[e1], e2)
			}
		}
	}
	return graph
}

// extractKeyDecisions keeps the first limit messages containing any
// decision keyword, each truncated to maxLen characters.
func extractKeyDecisions(items []types.MemoryItem, limit, maxLen int) []string {
	var decisions []string
	for _, it := range items {
		lower := strings.ToLower(it.Content)
		matched := false
		for _, kw := range decisionKeywords {
			if strings.Contains(lower, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		text := it.Content
		if runes := []rune(text); len(runes) > maxLen {
			text = string(runes[:maxLen])
		}
		decisions = append(decisions, text)
		if len(decisions) >= limit {
			break
		}
	}
	return decisions
}

func spanDescriptor(items []types.MemoryItem) string {
	if len(items) == 0 {
		return "0 messages over 0 minutes"
	}
	earliest, latest := items[0].Timestamp, items[0].Timestamp
	for _, it := range items[1:] {
		if it.Timestamp.Before(earliest) {
			earliest = it.Timestamp
		}
		if it.Timestamp.After(latest) {
			latest = it.Timestamp
		}
	}
	minutes := latest.Sub(earliest).Minutes()
	return fmt.Sprintf("%d messages over %.0f minutes", len(items), minutes)
}

func buildSummaryText(entities, decisions []string, span string) string {
	var b strings.Builder
	if len(entities) > 0 {
		b.WriteString("Entities: ")
		b.WriteString(strings.Join(entities, ", "))
		b.WriteString(". ")
	}
	if len(decisions) > 0 {
		b.WriteString("Key decisions: ")
		b.WriteString(strings.Join(decisions, "; "))
		b.WriteString(". ")
	}
	b.WriteString(span)
	b.WriteString(".")
	return b.String()
}
