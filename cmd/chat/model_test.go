package main

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/marefa.ai/internal/client"
)

func newTestModel(t *testing.T) chatModel {
	t.Helper()

	catalog, err := client.DefaultCatalog()
	require.NoError(t, err)

	directory := client.DemoDirectory()
	ctrl := client.NewController(catalog, directory, client.DemoHistory(directory))
	responder := client.NewLocalResponder(catalog, client.WithThinkTime(0))

	m := newModel(ctrl, responder, 0, zap.NewNop())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(chatModel)
}

func submit(t *testing.T, m chatModel, text string) (chatModel, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(chatModel), cmd
}

func TestEnterIgnoredWhileAwaitingResponse(t *testing.T) {
	m := newTestModel(t)

	m, cmd := submit(t, m, "What is Zakat?")
	require.NotNil(t, cmd)
	require.Equal(t, client.StateAwaitingResponse, m.ctrl.State())
	first := m.turn

	m, cmd = submit(t, m, "second question")
	assert.Nil(t, cmd)
	assert.Equal(t, first, m.turn)
	assert.Equal(t, "second question", m.input.Value())
	assert.Len(t, m.ctrl.Transcript(), 1)
}

func TestOverlongInputIsKeptWithNotice(t *testing.T) {
	m := newTestModel(t)

	long := strings.Repeat("a", 5000)
	m, cmd := submit(t, m, long)
	assert.Nil(t, cmd)
	assert.Equal(t, client.StateIdle, m.ctrl.State())
	assert.Equal(t, long, m.input.Value())

	require.NotEmpty(t, m.notices)
	assert.Equal(t, client.NoticeError, m.notices[len(m.notices)-1].Level)
	assert.Contains(t, m.notices[len(m.notices)-1].Text, "Message too long")
}

func TestResponseCompletesTurn(t *testing.T) {
	m := newTestModel(t)

	m, _ = submit(t, m, "hello")
	turn := m.turn

	next, _ := m.Update(responseMsg{turn: turn, answer: "Wa Alaikum Assalam"})
	m = next.(chatModel)

	assert.Equal(t, client.StateIdle, m.ctrl.State())
	assert.Nil(t, m.turn)

	transcript := m.ctrl.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "assistant", transcript[1].Role)
	assert.Equal(t, "Wa Alaikum Assalam", transcript[1].Text)
}

func TestRevealTicksUntilFullAnswer(t *testing.T) {
	m := newTestModel(t)
	m.typingDelay = client.DefaultTypingDelay

	m, _ = submit(t, m, "hello")
	turn := m.turn

	next, cmd := m.Update(responseMsg{turn: turn, answer: "abc"})
	m = next.(chatModel)
	require.NotNil(t, cmd)
	require.NotNil(t, m.reveal)

	for i := 0; i < 3; i++ {
		next, _ = m.Update(revealTickMsg{turnID: turn.ID})
		m = next.(chatModel)
	}

	assert.Nil(t, m.reveal)
	assert.Equal(t, client.StateIdle, m.ctrl.State())
	transcript := m.ctrl.Transcript()
	assert.Equal(t, "abc", transcript[len(transcript)-1].Text)
}

func TestModeSwitchDropsLateResponse(t *testing.T) {
	m := newTestModel(t)

	m, _ = submit(t, m, "references about Salah")
	stale := m.turn

	m, _ = submit(t, m, "/mode research")
	require.Equal(t, "research", m.ctrl.Mode().Name)
	assert.Nil(t, m.turn)

	next, _ := m.Update(responseMsg{turn: stale, answer: "late"})
	m = next.(chatModel)

	transcript := m.ctrl.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, m.ctrl.Mode().Greeting, transcript[0].Text)
}

func TestFailedResponseShowsNotice(t *testing.T) {
	m := newTestModel(t)

	m, _ = submit(t, m, "hello")
	next, _ := m.Update(responseMsg{turn: m.turn, err: errors.New("boom")})
	m = next.(chatModel)

	assert.Equal(t, client.StateIdle, m.ctrl.State())
	require.NotEmpty(t, m.notices)
	assert.Equal(t, client.NoticeError, m.notices[len(m.notices)-1].Level)
}

func TestCommands(t *testing.T) {
	m := newTestModel(t)

	m, _ = submit(t, m, "/history")
	require.NotEmpty(t, m.notices)
	assert.Equal(t, "Please log in to view chat history", m.notices[len(m.notices)-1].Text)

	m, _ = submit(t, m, "/login admin@marefasource.ai admin123")
	user, ok := m.ctrl.User()
	require.True(t, ok)
	assert.True(t, user.IsAdmin())

	m, _ = submit(t, m, "/history")
	assert.Contains(t, m.panel, "Ahmed")

	m, _ = submit(t, m, "/bogus")
	assert.Contains(t, m.panel, "unknown command")

	_, cmd := submit(t, m, "/quit")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
