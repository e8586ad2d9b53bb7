package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/marefa.ai/internal/client"
)

const helpText = `Commands:
  /mode <name>                         switch mode (clears the conversation)
  /modes                               list modes
  /login <email> <password>            sign in
  /signup <name> <email> <pw> <pw>     create an account
  /logout                              sign out
  /history                             show chat history
  /theme                               toggle light and dark colours
  /help                                show this help
  /quit                                exit`

// responseMsg carries the responder result for one turn.
type responseMsg struct {
	turn   *client.Turn
	answer string
	err    error
}

type revealTickMsg struct {
	turnID uint64
}

type chatModel struct {
	ctrl        *client.Controller
	responder   client.Responder
	typingDelay time.Duration
	logger      *zap.Logger

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	styles   styles
	dark     bool

	width  int
	height int
	ready  bool

	turn    *client.Turn
	cancel  context.CancelFunc
	reveal  *client.Reveal
	notices []client.Notice
	panel   string
}

func newModel(ctrl *client.Controller, responder client.Responder, typingDelay time.Duration, logger *zap.Logger) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask a question, or /help"
	ti.Focus()
	ti.CharLimit = 0
	ti.Width = 80

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := chatModel{
		ctrl:        ctrl,
		responder:   responder,
		typingDelay: typingDelay,
		logger:      logger,
		input:       ti,
		spinner:     sp,
		dark:        true,
		styles:      newStyles(true),
	}
	m.spinner.Style = m.styles.Mode
	return m
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := msg.Height - 6
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.input.Width = msg.Width - 4
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.abandon()
			return m, tea.Quit
		case tea.KeyEnter:
			value := m.input.Value()
			if strings.HasPrefix(strings.TrimSpace(value), "/") {
				m.input.Reset()
				cmd := m.runCommand(strings.TrimSpace(value))
				m.refresh()
				return m, cmd
			}

			turn, ok := m.ctrl.Submit(value)
			if !ok {
				m.refresh()
				return m, nil
			}
			m.input.Reset()
			m.panel = ""
			m.notices = nil
			m.turn = turn
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(turn))
		}

	case responseMsg:
		if !m.ctrl.IsActive(msg.turn) {
			m.logger.Debug("dropping stale response", zap.Uint64("turn", msg.turn.ID))
			return m, nil
		}
		m.cancel = nil
		if msg.err != nil {
			m.logger.Warn("response failed", zap.Uint64("turn", msg.turn.ID), zap.Error(msg.err))
			m.ctrl.Fail(msg.turn, msg.err)
			m.turn = nil
			m.refresh()
			return m, nil
		}
		m.reveal = client.NewReveal(msg.answer, m.typingDelay)
		if m.reveal.Done() {
			m.finish()
			return m, nil
		}
		m.refresh()
		return m, m.tick(msg.turn.ID)

	case revealTickMsg:
		if m.turn == nil || m.reveal == nil || msg.turnID != m.turn.ID {
			return m, nil
		}
		if !m.ctrl.IsActive(m.turn) {
			m.reveal.Cancel()
			m.turn, m.reveal = nil, nil
			return m, nil
		}
		if !m.reveal.Step() {
			m.finish()
			return m, nil
		}
		m.refresh()
		return m, m.tick(msg.turnID)

	case spinner.TickMsg:
		if m.ctrl.State() != client.StateAwaitingResponse || m.reveal != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// ask runs the responder off the UI loop.
func (m *chatModel) ask(turn *client.Turn) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	responder := m.responder

	return func() tea.Msg {
		defer cancel()
		answer, err := responder.Respond(ctx, turn.Mode, turn.Question)
		return responseMsg{turn: turn, answer: answer, err: err}
	}
}

func (m *chatModel) tick(turnID uint64) tea.Cmd {
	return tea.Tick(m.reveal.Delay(), func(time.Time) tea.Msg {
		return revealTickMsg{turnID: turnID}
	})
}

func (m *chatModel) finish() {
	m.ctrl.Complete(m.turn, m.reveal.Full())
	m.turn, m.reveal = nil, nil
	m.refresh()
}

// abandon stops any in-flight request and reveal.
func (m *chatModel) abandon() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.reveal != nil {
		m.reveal.Cancel()
	}
	m.turn, m.reveal = nil, nil
}

func (m *chatModel) runCommand(line string) tea.Cmd {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit":
		m.abandon()
		return tea.Quit

	case "/help":
		m.panel = helpText

	case "/modes":
		var b strings.Builder
		current := m.ctrl.Mode().Name
		for _, mode := range m.ctrl.Catalog().Modes {
			marker := "  "
			if mode.Name == current {
				marker = "* "
			}
			fmt.Fprintf(&b, "%s%-10s %s\n", marker, mode.Name, mode.Title)
		}
		m.panel = strings.TrimRight(b.String(), "\n")

	case "/mode":
		if len(args) != 1 {
			m.panel = "usage: /mode <name>"
			return nil
		}
		m.abandon()
		if err := m.ctrl.SelectMode(args[0]); err != nil {
			return nil
		}
		if remote, ok := m.responder.(*client.RemoteResponder); ok {
			remote.Forget(args[0])
		}
		m.panel = ""

	case "/login":
		if len(args) != 2 {
			m.panel = "usage: /login <email> <password>"
			return nil
		}
		_ = m.ctrl.Login(args[0], args[1])

	case "/signup":
		if len(args) < 4 {
			m.panel = "usage: /signup <name> <email> <password> <confirm>"
			return nil
		}
		n := len(args)
		_ = m.ctrl.Signup(strings.Join(args[:n-3], " "), args[n-3], args[n-2], args[n-1])

	case "/logout":
		m.ctrl.Logout()

	case "/history":
		groups, err := m.ctrl.HistoryView()
		if err != nil {
			return nil
		}
		m.panel = renderHistory(groups)

	case "/theme":
		m.dark = !m.dark
		m.styles = newStyles(m.dark)
		m.spinner.Style = m.styles.Mode

	default:
		m.panel = "unknown command " + name + ", try /help"
	}
	return nil
}

func renderHistory(groups []client.HistoryGroup) string {
	if len(groups) == 0 {
		return "No chat history yet."
	}

	var b strings.Builder
	for _, group := range groups {
		fmt.Fprintf(&b, "%s <%s>\n", group.User.Name, group.User.Email)
		for _, entry := range group.Entries {
			fmt.Fprintf(&b, "  [%s] %s (%s)\n", entry.Timestamp.Format("2006-01-02 15:04"), entry.Question, entry.Mode)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// refresh rebuilds the viewport content and collects new notices.
func (m *chatModel) refresh() {
	m.notices = append(m.notices, m.ctrl.Notices()...)
	if len(m.notices) > 3 {
		m.notices = m.notices[len(m.notices)-3:]
	}
	if !m.ready {
		return
	}

	var b strings.Builder
	for _, entry := range m.ctrl.Transcript() {
		b.WriteString(m.renderEntry(entry.Role, entry.Text))
		b.WriteString("\n\n")
	}

	switch {
	case m.reveal != nil:
		b.WriteString(m.renderEntry("assistant", m.reveal.Text()))
	case m.ctrl.State() == client.StateAwaitingResponse:
		b.WriteString(m.spinner.View() + m.styles.Muted.Render(" thinking..."))
	}

	if m.panel != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Panel.Render(m.panel))
	}

	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(b.String()))
	m.viewport.GotoBottom()
}

func (m chatModel) renderEntry(role, text string) string {
	if role == "user" {
		return m.styles.Label.Render("You") + "\n" + m.styles.User.Render(text)
	}
	return m.styles.Label.Render("MarefaSource AI") + "\n" + m.styles.Assistant.Render(text)
}

func (m chatModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.styles.Header.Render(m.ctrl.Greeting()) + "  " + m.styles.Mode.Render(m.ctrl.Mode().Title)

	var notices []string
	for _, n := range m.notices {
		switch n.Level {
		case client.NoticeError:
			notices = append(notices, m.styles.Error.Render(n.Text))
		case client.NoticeSuccess:
			notices = append(notices, m.styles.Success.Render(n.Text))
		default:
			notices = append(notices, m.styles.Info.Render(n.Text))
		}
	}
	status := strings.Join(notices, m.styles.Muted.Render(" | "))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		status,
		m.input.View(),
	)
}
