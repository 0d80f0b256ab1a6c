package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/inspirepan/cadagent"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")). // cyan
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")) // magenta

	nestedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")). // bright black (gray)
			Italic(true)

	toolCallStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3")). // yellow
			Bold(true)

	toolOutputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("4")) // blue

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")). // red
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")). // green
			Bold(true)
)

const maxOutputWidth = 240

// renderer prints dialog progress.
type renderer struct {
	out io.Writer
}

func (r *renderer) onEvent(ev cadagent.Event) { r.render(ev, "") }

func (r *renderer) onNestedEvent(ev cadagent.Event) { r.render(ev, "  ") }

func (r *renderer) render(ev cadagent.Event, indent string) {
	switch ev.Type {
	case cadagent.EventAssistant:
		// Commentary that accompanies tool calls; final answers are printed
		// by the caller.
		if ev.Assistant == nil || len(ev.Assistant.ToolCalls()) == 0 {
			return
		}
		if text := strings.TrimSpace(ev.Assistant.Text()); text != "" {
			r.line(indent, r.style(indent, assistantStyle).Render(text))
		}
	case cadagent.EventToolStart:
		r.line(indent, fmt.Sprintf("%s %s %s", toolCallStyle.Render("Tool:"), ev.ToolName, truncate(string(ev.ToolArgs))))
	case cadagent.EventToolEnd:
		if ev.ToolResult == nil {
			return
		}
		if !ev.ToolResult.OK {
			r.line(indent, errorStyle.Render("Error: ")+truncate(ev.ToolResult.Error))
			return
		}
		r.line(indent, r.style(indent, toolOutputStyle).Render(truncate(summarize(ev.ToolResult.Data))))
	case cadagent.EventDialogEnd:
		if indent != "" && ev.Final != nil {
			r.line(indent, nestedStyle.Render(fmt.Sprintf("auto-dimension %s after %d rounds", ev.Final.Status, ev.Final.Rounds)))
		}
	}
}

func (r *renderer) style(indent string, s lipgloss.Style) lipgloss.Style {
	if indent != "" {
		return nestedStyle
	}
	return s
}

func (r *renderer) line(indent, s string) {
	fmt.Fprintln(r.out, indent+s)
}

func (r *renderer) response(res *cadagent.DialogResult) {
	if res.Status == cadagent.StatusExhausted {
		fmt.Fprintln(r.out, errorStyle.Render(res.Response))
		return
	}
	fmt.Fprintln(r.out, assistantStyle.Render(res.Response))
}

func (r *renderer) printError(err error) {
	fmt.Fprintln(r.out, errorStyle.Render("Error: "+err.Error()))
}

// summarize renders tool data compactly, leaving out nested transcripts.
func summarize(data map[string]any) string {
	if len(data) == 0 {
		return "ok"
	}
	if out, ok := data["output"]; ok {
		return fmt.Sprint(out)
	}
	env := cadagent.Success(data)
	if auto, ok := data["auto_dimension"].(map[string]any); ok {
		trimmed := make(map[string]any, len(auto))
		for k, v := range auto {
			if k != "messages" {
				trimmed[k] = v
			}
		}
		env = env.WithData("auto_dimension", trimmed)
	}
	return env.JSON()
}

func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxOutputWidth {
		return s
	}
	return s[:maxOutputWidth] + "…"
}
