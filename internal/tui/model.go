// Package tui is a terminal chat client for the digest workflow.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/chameleon-ai/chameleon/internal/digest"
	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
)

// Greeting is the first assistant message in every session.
const Greeting = "Hello! I am Chameleon. Ask me about Sports, Finance, or Tech, and I will adapt my brain to answer you."

// Digester answers one query. *digest.Service and *digest.Remote satisfy it.
type Digester interface {
	Digest(ctx context.Context, query string) (digest.Answer, error)
}

type sender int

const (
	fromUser sender = iota
	fromAssistant
	fromError
)

type message struct {
	from  sender
	text  string
	topic string
}

// answerMsg carries a finished digest back into Update.
type answerMsg struct {
	answer digest.Answer
	err    error
}

type Model struct {
	digester Digester
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	messages []message
	pending  bool
	status   string
	ready    bool
}

// New creates the chat model. Each query is bounded by timeout.
func New(d Digester, status string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about Sports, Finance, or Tech..."
	ti.Focus()
	ti.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		digester: d,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		messages: []message{{from: fromAssistant, text: Greeting}},
		status:   status,
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		// header, status line, input box
		reserved := 2 + 1 + ih + 1
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-fh)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			query := strings.TrimSpace(m.input.Value())
			if query == "" || m.pending {
				return m, nil
			}
			m.messages = append(m.messages, message{from: fromUser, text: query})
			m.input.Reset()
			m.pending = true
			m.refresh()
			return m, tea.Batch(m.ask(query), m.spinner.Tick)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.messages = append(m.messages, message{from: fromError, text: apperrors.PublicMessage(msg.err)})
		} else {
			m.messages = append(m.messages, message{
				from:  fromAssistant,
				text:  msg.answer.Response,
				topic: msg.answer.Topic,
			})
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(query string) tea.Cmd {
	d, timeout := m.digester, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		ans, err := d.Digest(ctx, query)
		return answerMsg{answer: ans, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Chameleon AI")
	status := statusStyle.Render(m.status)
	if m.pending {
		status = m.spinner.View() + " thinking"
	}
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		status
}

func (m Model) renderTranscript() string {
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.from {
		case fromUser:
			b.WriteString(userStyle.Render("You: ") + msg.text)
		case fromError:
			b.WriteString(errorStyle.Render("Error: " + msg.text))
		default:
			label := "Chameleon"
			style := topicStyle(msg.topic)
			if msg.topic != "" {
				label += " [" + msg.topic + "]"
			}
			b.WriteString(style.Render(label+": ") + msg.text)
		}
	}
	return b.String()
}

// Transcript returns the plain text of every message, oldest first.
func (m Model) Transcript() []string {
	out := make([]string, len(m.messages))
	for i, msg := range m.messages {
		out[i] = msg.text
	}
	return out
}

// Pending reports whether a query is in flight.
func (m Model) Pending() bool { return m.pending }
