package persistence

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/superagent-run/superagent/types"
)

// ExportFormat selects a conversation export's wire shape.
type ExportFormat string

const (
	FormatText     ExportFormat = "txt"
	FormatMarkdown ExportFormat = "md"
	FormatHTML     ExportFormat = "html"
	FormatJSON     ExportFormat = "json"
)

// jsonExportDoc is the wrapper for the json export format:
// `{export_date, format_version, messages[]}`.
type jsonExportDoc struct {
	ExportDate    time.Time       `json:"export_date"`
	FormatVersion string          `json:"format_version"`
	Messages      []types.Message `json:"messages"`
}

const exportFormatVersion = "1"

// ExportConversation renders messages in format. json round-trips
// exactly through ImportConversation; txt/md/html are lossy,
// export-only renderings that keep each message's role, content and
// timestamp in order.
func ExportConversation(messages []types.Message, format ExportFormat, exportedAt time.Time) ([]byte, error) {
	switch format {
	case FormatJSON:
		doc := jsonExportDoc{ExportDate: exportedAt, FormatVersion: exportFormatVersion, Messages: messages}
		return json.MarshalIndent(doc, "", "  ")
	case FormatText:
		return exportText(messages), nil
	case FormatMarkdown:
		return exportMarkdown(messages), nil
	case FormatHTML:
		return exportHTML(messages), nil
	default:
		return nil, fmt.Errorf("persistence: unsupported export format %q", format)
	}
}

func exportText(messages []types.Message) []byte {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.UTC().Format(time.RFC3339), m.Role, m.Content)
	}
	return []byte(b.String())
}

func exportMarkdown(messages []types.Message) []byte {
	var b strings.Builder
	b.WriteString("# Conversation\n\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "### %s _(%s)_\n\n%s\n\n", capitalize(string(m.Role)), m.Timestamp.UTC().Format(time.RFC3339), m.Content)
	}
	return []byte(b.String())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func exportHTML(messages []types.Message) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><body>\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "<div class=\"message\" data-role=%q data-timestamp=%q><strong>%s</strong>: %s</div>\n",
			m.Role, m.Timestamp.UTC().Format(time.RFC3339), html.EscapeString(string(m.Role)), html.EscapeString(m.Content))
	}
	b.WriteString("</body></html>\n")
	return []byte(b.String())
}

// ImportConversation reverses ExportConversation for FormatJSON only —
// the only format that round-trips exactly. Other formats
// are for human/tool consumption, not re-ingestion.
func ImportConversation(data []byte, format ExportFormat) ([]types.Message, error) {
	if format != FormatJSON {
		return nil, fmt.Errorf("persistence: format %q is export-only, not importable", format)
	}
	var doc jsonExportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Messages, nil
}
