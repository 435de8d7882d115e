// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tui implements the interactive terminal chat.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/kadirpekel/pdfassist/pkg/assistant"
)

const placeholder = "Ask about your PDFs... (Enter to send, /index <url>, Ctrl+C to exit)"

// Service is the assistant surface the chat uses.
type Service interface {
	Query(ctx context.Context, prompt string, opts ...assistant.QueryOption) assistant.QueryResult
	Index(ctx context.Context, url string) assistant.IndexResult
}

// Options configures a chat session.
type Options struct {
	UserID          string
	SessionID       string
	ReadChatHistory bool
	ShowToolCalls   bool
	// Plain disables markdown rendering.
	Plain bool
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	noteStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type role int

const (
	roleUser role = iota
	roleAssistant
	roleNote
	roleError
)

type entry struct {
	role role
	text string
}

type queryDoneMsg struct{ res assistant.QueryResult }

type indexDoneMsg struct{ res assistant.IndexResult }

// Model is the bubbletea model for the chat.
type Model struct {
	ctx      context.Context
	svc      Service
	opts     Options
	input    textinput.Model
	view     viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	history  []entry
	busy     bool
	width    int
}

// New returns a chat model bound to svc.
func New(ctx context.Context, svc Service, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:     ctx,
		svc:     svc,
		opts:    opts,
		input:   ti,
		view:    viewport.New(80, 20),
		spinner: sp,
		width:   80,
	}
	m.renderer = newRenderer(opts.Plain, m.width)
	return m
}

func newRenderer(plain bool, width int) *glamour.TermRenderer {
	if plain {
		return nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// Run starts the chat and blocks until the user quits.
func Run(ctx context.Context, svc Service, opts Options) error {
	_, err := tea.NewProgram(New(ctx, svc, opts), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			return m.submit()
		}

	case tea.WindowSizeMsg:
		const chrome = 4
		m.width = msg.Width
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-chrome, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.renderer = newRenderer(m.opts.Plain, max(msg.Width-4, 20))
		m.refresh()

	case queryDoneMsg:
		m.busy = false
		m.appendQuery(msg.res)
		m.refresh()

	case indexDoneMsg:
		m.busy = false
		if msg.res.OK() {
			m.history = append(m.history, entry{roleNote, "Indexed " + msg.res.URL})
		} else {
			m.history = append(m.history, entry{roleError, msg.res.Error})
		}
		m.refresh()

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()
	m.busy = true

	if url, ok := strings.CutPrefix(text, "/index "); ok {
		url = strings.TrimSpace(url)
		m.history = append(m.history, entry{roleNote, "Indexing " + url + "..."})
		m.refresh()
		return m, tea.Batch(m.spinner.Tick, m.index(url))
	}

	m.history = append(m.history, entry{roleUser, text})
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.query(text))
}

func (m Model) query(prompt string) tea.Cmd {
	ctx, svc := m.ctx, m.svc
	opts := []assistant.QueryOption{
		assistant.WithChatHistory(m.opts.ReadChatHistory),
		assistant.WithToolCalls(m.opts.ShowToolCalls),
	}
	if m.opts.UserID != "" {
		opts = append(opts, assistant.WithUser(m.opts.UserID))
	}
	if m.opts.SessionID != "" {
		opts = append(opts, assistant.WithSession(m.opts.SessionID))
	}
	return func() tea.Msg {
		return queryDoneMsg{res: svc.Query(ctx, prompt, opts...)}
	}
}

func (m Model) index(url string) tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		return indexDoneMsg{res: svc.Index(ctx, url)}
	}
}

func (m *Model) appendQuery(res assistant.QueryResult) {
	if res.OK() {
		m.history = append(m.history, entry{roleAssistant, res.Result})
		if res.Note != "" {
			m.history = append(m.history, entry{roleNote, res.Note})
		}
		return
	}

	m.history = append(m.history, entry{roleError, res.Error})
	if res.FailedGeneration != "" {
		m.history = append(m.history, entry{roleNote, "Failed generation: " + res.FailedGeneration})
	}
	if res.Hint != "" {
		m.history = append(m.history, entry{roleNote, res.Hint})
	}
}

func (m *Model) refresh() {
	m.view.SetContent(m.render())
	m.view.GotoBottom()
}

func (m Model) render() string {
	var b strings.Builder
	for _, e := range m.history {
		switch e.role {
		case roleUser:
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(e.text)
			b.WriteString("\n\n")
		case roleAssistant:
			b.WriteString(m.markdown(e.text))
			b.WriteString("\n")
		case roleNote:
			b.WriteString(noteStyle.Render(e.text))
			b.WriteString("\n\n")
		case roleError:
			b.WriteString(errorStyle.Render("Error: "))
			b.WriteString(e.text)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func (m Model) markdown(text string) string {
	if m.renderer == nil {
		return text + "\n"
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func (m Model) View() string {
	status := "session " + m.opts.SessionID
	if m.busy {
		status = m.spinner.View() + " thinking..."
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s",
		titleStyle.Render("PDF Assistant"),
		m.view.View(),
		m.input.View(),
		footerStyle.Render(status),
	)
}
