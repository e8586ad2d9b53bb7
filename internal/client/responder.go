package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Responder produces the assistant answer for one question in a mode.
type Responder interface {
	Respond(ctx context.Context, mode, question string) (string, error)
}

// LocalResponder answers from the canned catalog after a short think delay.
type LocalResponder struct {
	catalog *Catalog

	mu   sync.Mutex
	rng  *rand.Rand
	wait func(*rand.Rand) time.Duration
}

type LocalOption func(*LocalResponder)

// WithRand fixes the random source used for delays and response choice.
func WithRand(rng *rand.Rand) LocalOption {
	return func(l *LocalResponder) {
		if rng != nil {
			l.rng = rng
		}
	}
}

// WithThinkTime replaces the simulated think delay. Zero disables it.
func WithThinkTime(d time.Duration) LocalOption {
	return func(l *LocalResponder) {
		l.wait = func(*rand.Rand) time.Duration { return d }
	}
}

func NewLocalResponder(catalog *Catalog, opts ...LocalOption) *LocalResponder {
	l := &LocalResponder{
		catalog: catalog,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		wait: func(r *rand.Rand) time.Duration {
			return time.Second + time.Duration(r.Int63n(int64(1500*time.Millisecond)))
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LocalResponder) Respond(ctx context.Context, mode, question string) (string, error) {
	l.mu.Lock()
	delay := l.wait(l.rng)
	l.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	return l.Answer(mode, question), nil
}

// Answer picks the canned reply for question without any delay.
func (l *LocalResponder) Answer(mode, question string) string {
	m, ok := l.catalog.Lookup(mode)
	responses := m.Responses
	if !ok || len(responses) == 0 {
		responses = []string{l.catalog.FallbackResponse}
	}

	input := strings.ToLower(question)
	switch {
	case containsAny(input, l.catalog.Keywords.Greeting):
		return l.catalog.GreetingReply
	case containsAny(input, l.catalog.Keywords.Prayer):
		if m.PrayerResponse != "" {
			return m.PrayerResponse
		}
		return responses[0]
	case containsAny(input, l.catalog.Keywords.Ruling):
		if m.RulingResponse != "" {
			return m.RulingResponse
		}
		return responses[min(1, len(responses)-1)]
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return responses[l.rng.Intn(len(responses))]
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}

var ErrRemote = errors.New("client: server request failed")

// RemoteResponder sends turns to the chat server, keeping one server-side
// conversation per mode.
type RemoteResponder struct {
	baseURL       string
	usePerplexity bool
	client        *http.Client

	mu            sync.Mutex
	conversations map[string]string
}

func NewRemoteResponder(baseURL string, usePerplexity bool, timeout time.Duration) *RemoteResponder {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &RemoteResponder{
		baseURL:       strings.TrimRight(baseURL, "/"),
		usePerplexity: usePerplexity,
		client:        &http.Client{Timeout: timeout},
		conversations: make(map[string]string),
	}
}

func (r *RemoteResponder) Respond(ctx context.Context, mode, question string) (string, error) {
	id, err := r.conversation(ctx, mode)
	if err != nil {
		return "", err
	}

	var reply struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	status, err := r.postJSON(ctx, "/api/conversations/"+id+"/messages", map[string]any{
		"message":       question,
		"usePerplexity": r.usePerplexity,
	}, &reply)
	if err != nil {
		if status == http.StatusNotFound {
			r.Forget(mode)
		}
		return "", err
	}

	return reply.Message.Content, nil
}

// Forget drops the server conversation bound to mode so the next turn starts
// a fresh one.
func (r *RemoteResponder) Forget(mode string) {
	r.mu.Lock()
	delete(r.conversations, mode)
	r.mu.Unlock()
}

func (r *RemoteResponder) conversation(ctx context.Context, mode string) (string, error) {
	r.mu.Lock()
	id, ok := r.conversations[mode]
	r.mu.Unlock()
	if ok {
		return id, nil
	}

	var created struct {
		ConversationID string `json:"conversationId"`
	}
	if _, err := r.postJSON(ctx, "/api/conversations", map[string]any{}, &created); err != nil {
		return "", err
	}
	if created.ConversationID == "" {
		return "", fmt.Errorf("%w: empty conversation id", ErrRemote)
	}

	r.mu.Lock()
	r.conversations[mode] = created.ConversationID
	r.mu.Unlock()
	return created.ConversationID, nil
}

func (r *RemoteResponder) postJSON(ctx context.Context, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %v", ErrRemote, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return resp.StatusCode, fmt.Errorf("%w: %s", ErrRemote, apiErr.Error)
		}
		return resp.StatusCode, fmt.Errorf("%w: %s", ErrRemote, http.StatusText(resp.StatusCode))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode response: %v", ErrRemote, err)
	}
	return resp.StatusCode, nil
}
