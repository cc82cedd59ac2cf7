// Package chat provides the interactive terminal interface for godex.
// It is a thin rendering collaborator: all conversation state lives in the
// controller, and the model here only projects controller state snapshots
// onto the screen.
package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"godex/internal/config"
	"godex/internal/controller"
)

// stateMsg delivers a fresh controller state snapshot to the UI loop.
type stateMsg controller.State

// Model is the bubbletea model for the chat interface.
type Model struct {
	ctrl *controller.Controller

	// UI components
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	styles   Styles

	state  controller.State
	width  int
	height int
	ready  bool
}

// NewModel builds the chat model around an existing controller.
func NewModel(ctrl *controller.Controller, cfg config.Config) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask godex anything..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 4000
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctrl:     ctrl,
		textarea: ta,
		spinner:  sp,
		styles:   NewStyles(cfg.Theme),
		state:    ctrl.State(),
	}
}

// Run wires the controller's change feed into a bubbletea program and blocks
// until the user quits.
func Run(ctrl *controller.Controller, cfg config.Config) error {
	p := tea.NewProgram(NewModel(ctrl, cfg), tea.WithAltScreen())
	ctrl.SetOnChange(func(st controller.State) {
		p.Send(stateMsg(st))
	})
	_, err := p.Run()
	ctrl.SetOnChange(nil)
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		func() tea.Msg {
			// Pick up an interrupted turn from the previous run, if any.
			m.ctrl.ResumeOnLoad()
			return stateMsg(m.ctrl.State())
		},
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.ready = true
		m.refreshTranscript()

	case stateMsg:
		m.state = controller.State(msg)
		m.refreshTranscript()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.state.IsStreaming {
				ctrl := m.ctrl
				return m, func() tea.Msg {
					ctrl.Stop()
					return nil
				}
			}
			return m, tea.Quit
		case "esc":
			if m.state.IsStreaming {
				ctrl := m.ctrl
				return m, func() tea.Msg {
					ctrl.Stop()
					return nil
				}
			}
		case "ctrl+d":
			if m.state.Err != "" {
				ctrl := m.ctrl
				return m, func() tea.Msg {
					ctrl.ClearError()
					return nil
				}
			}
		case "enter":
			text := m.textarea.Value()
			if strings.TrimSpace(text) != "" && !m.state.IsStreaming {
				m.textarea.Reset()
				ctrl := m.ctrl
				// Send blocks on the connection attempt; run it off the UI loop.
				return m, func() tea.Msg {
					ctrl.Send(text)
					return nil
				}
			}
		}
	}

	var taCmd, vpCmd tea.Cmd
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, taCmd, vpCmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) layout() {
	chatWidth := m.width
	if chatWidth > 100 {
		chatWidth = 100
	}

	bannerHeight := 0
	if m.state.Err != "" {
		bannerHeight = 1
	}
	vpHeight := m.height - m.textarea.Height() - bannerHeight - 4
	if vpHeight < 3 {
		vpHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(chatWidth, vpHeight)
	} else {
		m.viewport.Width = chatWidth
		m.viewport.Height = vpHeight
	}
	m.textarea.SetWidth(chatWidth)

	m.renderer, _ = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(chatWidth-4),
	)
}

func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}
