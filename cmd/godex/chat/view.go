package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"godex/internal/chat"
)

// Styles holds the lipgloss styles for the chat view.
type Styles struct {
	Header    lipgloss.Style
	UserLabel lipgloss.Style
	BotLabel  lipgloss.Style
	Reasoning lipgloss.Style
	Tool      lipgloss.Style
	Banner    lipgloss.Style
	Metadata  lipgloss.Style
	Help      lipgloss.Style
}

// NewStyles builds the style set for the given theme.
func NewStyles(theme string) Styles {
	accent := lipgloss.Color("212")
	dim := lipgloss.Color("241")
	if theme == "light" {
		accent = lipgloss.Color("205")
		dim = lipgloss.Color("245")
	}
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1),
		UserLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		BotLabel:  lipgloss.NewStyle().Bold(true).Foreground(accent),
		Reasoning: lipgloss.NewStyle().Italic(true).Foreground(dim),
		Tool:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Banner:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		Metadata:  lipgloss.NewStyle().Foreground(dim),
		Help:      lipgloss.NewStyle().Foreground(dim),
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Starting godex..."
	}

	var b strings.Builder
	b.WriteString(m.styles.Header.Render("godex"))
	if m.state.IsStreaming {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.state.Err != "" {
		b.WriteString(m.styles.Banner.Render(fmt.Sprintf("⚠ %s  (ctrl+d to dismiss)", m.state.Err)))
		b.WriteString("\n")
	}

	b.WriteString(m.textarea.View())
	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render("enter send · esc stop · ctrl+c quit"))
	return b.String()
}

// renderTranscript projects the message list into viewport content. Unknown
// part types are skipped, keeping the view forward-compatible with parts
// this build does not know about.
func (m Model) renderTranscript() string {
	var b strings.Builder

	for _, msg := range m.state.Messages {
		switch msg.Role {
		case chat.RoleUser:
			b.WriteString(m.styles.UserLabel.Render("You"))
		case chat.RoleAssistant:
			b.WriteString(m.styles.BotLabel.Render("godex"))
		default:
			b.WriteString(m.styles.Metadata.Render(string(msg.Role)))
		}
		b.WriteString("\n")
		b.WriteString(m.renderParts(msg))
		b.WriteString("\n")
	}

	if len(m.state.Metadata) > 0 {
		for _, entry := range m.state.Metadata {
			b.WriteString(m.styles.Metadata.Render(fmt.Sprintf("%s: %s", entry.Label, entry.Value)))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (m Model) renderParts(msg *chat.Message) string {
	var b strings.Builder
	for _, part := range msg.Parts {
		switch part.Type {
		case chat.PartText:
			// Completed assistant prose renders as markdown; everything
			// still streaming stays raw to avoid re-rendering every delta.
			if msg.Role == chat.RoleAssistant && msg.Status == chat.StatusCompleted && m.renderer != nil {
				if rendered, err := m.renderer.Render(part.Text); err == nil {
					b.WriteString(rendered)
					continue
				}
			}
			b.WriteString(part.Text)
			b.WriteString("\n")
		case chat.PartReasoning:
			b.WriteString(m.styles.Reasoning.Render(part.Reasoning))
			b.WriteString("\n")
		case chat.PartToolInvocation:
			if ti := part.ToolInvocation; ti != nil {
				label := fmt.Sprintf("⚙ %s (%s)", ti.ToolName, ti.State)
				b.WriteString(m.styles.Tool.Render(label))
				b.WriteString("\n")
			}
		}
	}
	if msg.Status == chat.StatusErrored && msg.Role == chat.RoleAssistant {
		b.WriteString(m.styles.Banner.Render("✗ generation did not finish"))
		b.WriteString("\n")
	}
	return b.String()
}
