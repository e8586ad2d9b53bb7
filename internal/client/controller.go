package client

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/wuwenbin0122/marefa.ai/internal/models"
)

// State of the turn controller.
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
)

func (s State) String() string {
	if s == StateAwaitingResponse {
		return "awaiting-response"
	}
	return "idle"
}

// Notice levels.
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
	NoticeInfo    = "info"
)

// Notice is a transient message for the user.
type Notice struct {
	Level string
	Text  string
}

// Entry is one line of the visible transcript.
type Entry struct {
	Role string
	Text string
	Time time.Time
}

// Turn is a submitted question awaiting its answer.
type Turn struct {
	ID          uint64
	Mode        string
	Question    string
	SubmittedAt time.Time
}

// Controller is the client-side turn state machine. At most one turn is
// active; a mode switch abandons it.
type Controller struct {
	mu sync.Mutex

	catalog   *Catalog
	directory *Directory
	history   *History
	now       func() time.Time

	mode       string
	state      State
	active     *Turn
	nextTurn   uint64
	transcript []Entry
	notices    []Notice
}

func NewController(catalog *Catalog, directory *Directory, history *History) *Controller {
	if directory == nil {
		directory = NewDirectory()
	}
	if history == nil {
		history = NewHistory()
	}
	return &Controller{
		catalog:   catalog,
		directory: directory,
		history:   history,
		now:       time.Now,
		mode:      catalog.Default,
	}
}

func (c *Controller) Submit(text string) (*Turn, bool) {
	question := strings.TrimSpace(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if question == "" || c.state == StateAwaitingResponse {
		return nil, false
	}
	if utf8.RuneCountInString(text) > models.MaxUserMessageLength {
		c.notices = append(c.notices, Notice{
			Level: NoticeError,
			Text:  fmt.Sprintf("Message too long. Maximum %d characters allowed.", models.MaxUserMessageLength),
		})
		return nil, false
	}

	c.nextTurn++
	turn := &Turn{ID: c.nextTurn, Mode: c.mode, Question: question, SubmittedAt: c.now()}
	c.active = turn
	c.state = StateAwaitingResponse
	c.transcript = append(c.transcript, Entry{Role: "user", Text: question, Time: turn.SubmittedAt})
	return turn, true
}

// Complete records a fully rendered answer. It reports false for a turn that
// is no longer active.
func (c *Controller) Complete(turn *Turn, answer string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isActiveLocked(turn) {
		return false
	}

	now := c.now()
	c.transcript = append(c.transcript, Entry{Role: "assistant", Text: answer, Time: now})
	if user, ok := c.directory.Current(); ok {
		c.history.Add(user.ID, HistoryEntry{
			Mode:      turn.Mode,
			Question:  turn.Question,
			Answer:    answer,
			Timestamp: now,
		})
	}

	c.active = nil
	c.state = StateIdle
	return true
}

func (c *Controller) Fail(turn *Turn, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isActiveLocked(turn) {
		return false
	}

	text := "Failed to get a response"
	if err != nil {
		text += ": " + strings.TrimPrefix(err.Error(), "client: ")
	}
	c.notices = append(c.notices, Notice{Level: NoticeError, Text: text})
	c.active = nil
	c.state = StateIdle
	return true
}

// SelectMode clears the transcript and shows the mode greeting.
func (c *Controller) SelectMode(name string) error {
	mode, ok := c.catalog.Lookup(name)
	if !ok {
		c.notify(NoticeError, "Unknown mode "+name)
		return ErrUnknownMode
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode = mode.Name
	c.active = nil
	c.state = StateIdle
	c.transcript = []Entry{{Role: "assistant", Text: mode.Greeting, Time: c.now()}}
	c.notices = append(c.notices, Notice{Level: NoticeSuccess, Text: "Switched to " + mode.Title})
	return nil
}

func (c *Controller) Login(email, password string) error {
	user, err := c.directory.Login(email, password)
	if err != nil {
		c.notify(NoticeError, noticeText(err))
		return err
	}
	c.notify(NoticeSuccess, "Welcome back, "+user.Name+"!")
	return nil
}

func (c *Controller) Signup(name, email, password, confirm string) error {
	user, err := c.directory.Signup(name, email, password, confirm)
	if err != nil {
		c.notify(NoticeError, noticeText(err))
		return err
	}
	c.notify(NoticeSuccess, "Welcome to MarefaSource AI, "+user.Name+"!")
	return nil
}

func (c *Controller) Logout() {
	c.directory.Logout()
	c.notify(NoticeSuccess, "Logged out successfully")
}

// HistoryView returns the history visible to the signed-in user.
func (c *Controller) HistoryView() ([]HistoryGroup, error) {
	var viewer *User
	if user, ok := c.directory.Current(); ok {
		viewer = &user
	}

	groups, err := c.history.View(viewer, c.directory)
	if err != nil {
		c.notify(NoticeError, noticeText(err))
		return nil, err
	}
	return groups, nil
}

// Greeting is the header line for the signed-in user or a guest.
func (c *Controller) Greeting() string {
	if user, ok := c.directory.Current(); ok {
		return "Assalamu Alaikum " + user.Name + ","
	}
	return "Assalamu Alaikum Guest,"
}

func (c *Controller) IsActive(turn *Turn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isActiveLocked(turn)
}

func (c *Controller) isActiveLocked(turn *Turn) bool {
	return turn != nil && c.active != nil && c.active.ID == turn.ID
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	name := c.mode
	c.mu.Unlock()
	m, _ := c.catalog.Lookup(name)
	return m
}

func (c *Controller) Catalog() *Catalog {
	return c.catalog
}

func (c *Controller) User() (User, bool) {
	return c.directory.Current()
}

func (c *Controller) Transcript() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.transcript...)
}

// Notices drains pending notices.
func (c *Controller) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notices
	c.notices = nil
	return out
}

func (c *Controller) notify(level, text string) {
	c.mu.Lock()
	c.notices = append(c.notices, Notice{Level: level, Text: text})
	c.mu.Unlock()
}

func noticeText(err error) string {
	switch {
	case errors.Is(err, ErrMissingFields):
		return "Please fill in all fields"
	case errors.Is(err, ErrPasswordMismatch):
		return "Passwords do not match"
	case errors.Is(err, ErrPasswordTooShort):
		return "Password must be at least 6 characters"
	case errors.Is(err, ErrUserExists):
		return "User already exists with this email"
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrLoginRequired):
		return "Please log in to view chat history"
	default:
		return err.Error()
	}
}
