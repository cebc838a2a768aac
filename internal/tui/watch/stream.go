package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hookgate/hookgate/internal/events"
)

const maxStreamLines = 15

func renderDecisionStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("DECISION STREAM"),
			theme.Dim.Render("  Waiting for webhooks..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= maxStreamLines {
			break
		}
		lines = append(lines, formatDecision(e, theme))
	}

	body := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("DECISION STREAM"),
		body,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatDecision(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.TypeDecisionAccepted:
		typeStyle = theme.Accepted
	case events.TypeDecisionRejected:
		typeStyle = theme.Rejected
	case events.TypeSinkFailed:
		typeStyle = theme.Warning
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-18s", e.Type))

	return fmt.Sprintf("%s %s %s", ts, typeName, decisionDesc(e))
}

func decisionDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string

	if connector, ok := data["connector"].(string); ok {
		parts = append(parts, connector)
	}

	if ref, ok := data["execution_ref"].(string); ok {
		if len(ref) > 8 {
			ref = ref[:8]
		}
		parts = append(parts, fmt.Sprintf("[%s]", ref))
	}

	if eventType, ok := data["event_type"].(string); ok && eventType != "" {
		parts = append(parts, eventType)
	}

	if code, ok := data["code"].(string); ok {
		parts = append(parts, code)
	}

	if score, ok := data["score"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%.2f", score))
	}

	if tier, ok := data["auth_assurance"].(string); ok {
		parts = append(parts, tier)
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	return strings.Join(parts, " ")
}
