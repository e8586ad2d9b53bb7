package client

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrLoginRequired = errors.New("client: please log in to view chat history")

// HistoryEntry is one completed question and answer.
type HistoryEntry struct {
	ID        string
	Mode      string
	Question  string
	Answer    string
	Timestamp time.Time
}

// HistoryGroup is the entries of one user, as shown in the history view.
type HistoryGroup struct {
	User    User
	Entries []HistoryEntry
}

// History files entries per user id.
type History struct {
	mu     sync.RWMutex
	byUser map[string][]HistoryEntry
}

func NewHistory() *History {
	return &History{byUser: make(map[string][]HistoryEntry)}
}

// DemoHistory seeds entries for the demo accounts of dir.
func DemoHistory(dir *Directory) *History {
	h := NewHistory()
	for _, u := range dir.Users() {
		switch u.Email {
		case "admin@marefasource.ai":
			h.Add(u.ID, HistoryEntry{Mode: "ahkam", Question: "Is trading cryptocurrency halal?", Answer: "Cryptocurrency trading has different scholarly opinions...", Timestamp: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)})
			h.Add(u.ID, HistoryEntry{Mode: "research", Question: "References about Salah timing", Answer: "According to Sahih Bukhari...", Timestamp: time.Date(2024, time.January, 14, 0, 0, 0, 0, time.UTC)})
		case "ahmed@example.com":
			h.Add(u.ID, HistoryEntry{Mode: "scholar", Question: "Explain the concept of Tawheed", Answer: "Tawheed is the fundamental concept...", Timestamp: time.Date(2024, time.January, 13, 0, 0, 0, 0, time.UTC)})
		}
	}
	return h
}

func (h *History) Add(userID string, entry HistoryEntry) HistoryEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	h.mu.Lock()
	h.byUser[userID] = append(h.byUser[userID], entry)
	h.mu.Unlock()
	return entry
}

func (h *History) For(userID string) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]HistoryEntry(nil), h.byUser[userID]...)
}

// View returns what viewer may see: every non-empty user group for admins,
// only their own entries otherwise.
func (h *History) View(viewer *User, dir *Directory) ([]HistoryGroup, error) {
	if viewer == nil {
		return nil, ErrLoginRequired
	}

	if !viewer.IsAdmin() {
		return []HistoryGroup{{User: *viewer, Entries: h.For(viewer.ID)}}, nil
	}

	var groups []HistoryGroup
	for _, u := range dir.Users() {
		entries := h.For(u.ID)
		if len(entries) == 0 {
			continue
		}
		groups = append(groups, HistoryGroup{User: u, Entries: entries})
	}
	return groups, nil
}
