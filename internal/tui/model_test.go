package tui

import (
	"context"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chameleon-ai/chameleon/internal/digest"
	"github.com/chameleon-ai/chameleon/internal/workflow"
	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
)

type stubDigester struct{}

func (stubDigester) Digest(_ context.Context, query string) (digest.Answer, error) {
	if query == "???" {
		return digest.Answer{}, fmt.Errorf("stage classify: %w", apperrors.ErrEncoding)
	}
	return digest.Answer{Result: workflow.Result{
		Topic:    "Sports",
		Response: "Here is the latest Sports news:\n- The Lakers won the game with a last-minute buzzer beater.",
	}}, nil
}

// collect runs cmd and any batched commands, returning every message.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func submit(t *testing.T, m Model, query string) (Model, []tea.Msg) {
	t.Helper()
	m.input.SetValue(query)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), collect(cmd)
}

func findAnswer(t *testing.T, msgs []tea.Msg) answerMsg {
	t.Helper()
	for _, msg := range msgs {
		if a, ok := msg.(answerMsg); ok {
			return a
		}
	}
	require.FailNow(t, "no answer message produced")
	return answerMsg{}
}

func TestStartsWithGreeting(t *testing.T) {
	m := New(stubDigester{}, "local", time.Second)
	assert.Equal(t, []string{Greeting}, m.Transcript())
}

func TestEnterRunsQuery(t *testing.T) {
	m := New(stubDigester{}, "local", time.Second)

	m, msgs := submit(t, m, "Did the Lakers win?")
	assert.True(t, m.Pending())
	assert.Equal(t, "", m.input.Value())
	assert.Equal(t, []string{Greeting, "Did the Lakers win?"}, m.Transcript())

	next, _ := m.Update(findAnswer(t, msgs))
	m = next.(Model)
	assert.False(t, m.Pending())
	require.Len(t, m.messages, 3)
	assert.Equal(t, "Sports", m.messages[2].topic)
	assert.Contains(t, m.messages[2].text, "Here is the latest Sports news:")
}

func TestBlankInputIgnored(t *testing.T) {
	m := New(stubDigester{}, "local", time.Second)
	m, msgs := submit(t, m, "   ")
	assert.Empty(t, msgs)
	assert.False(t, m.Pending())
	assert.Len(t, m.Transcript(), 1)
}

func TestSecondQueryWaitsForFirst(t *testing.T) {
	m := New(stubDigester{}, "local", time.Second)
	m, _ = submit(t, m, "Did the Lakers win?")
	m, msgs := submit(t, m, "Bitcoin?")
	assert.Empty(t, msgs)
	assert.Len(t, m.Transcript(), 2)
}

func TestErrorShowsPublicMessage(t *testing.T) {
	m := New(stubDigester{}, "local", time.Second)
	m, msgs := submit(t, m, "???")
	next, _ := m.Update(findAnswer(t, msgs))
	m = next.(Model)

	require.Len(t, m.messages, 3)
	assert.Equal(t, fromError, m.messages[2].from)
	assert.Equal(t, "query could not be encoded", m.messages[2].text)
}

func TestViewAfterResize(t *testing.T) {
	m := New(stubDigester{}, "connected to localhost:9000", time.Second)
	assert.Equal(t, "Loading...", m.View())

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	view := next.(Model).View()
	assert.Contains(t, view, "Chameleon AI")
	assert.Contains(t, view, "connected to localhost:9000")
}

func TestCtrlCQuits(t *testing.T) {
	m := New(stubDigester{}, "local", time.Second)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}
