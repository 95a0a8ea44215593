// Package mock provides a scripted model backend for testing and offline runs.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/GoCodeAlone/nexus/provider"
)

// DefaultResponse is an approving review with no findings.
const DefaultResponse = `{"summary":"No issues found.","findings":[],"confidence":1,"approve":true}`

// Reply is one scripted backend answer.
type Reply struct {
	Content string
	Err     error
	Delay   time.Duration
	Usage   provider.Usage
}

// MockProvider implements provider.Provider for testing. It cycles through
// scripted replies, optionally per model, and records every request.
type MockProvider struct {
	mu      sync.Mutex
	replies []Reply
	idx     int
	byModel map[string]*script
	calls   []provider.Request
}

type script struct {
	replies []Reply
	idx     int
}

func (s *script) next() Reply {
	r := s.replies[s.idx%len(s.replies)]
	s.idx++
	return r
}

// New creates a MockProvider that cycles through the given response texts.
func New(responses ...string) *MockProvider {
	replies := make([]Reply, 0, len(responses))
	for _, r := range responses {
		replies = append(replies, Reply{Content: r})
	}
	return NewScripted(replies...)
}

// NewScripted creates a MockProvider that cycles through replies.
func NewScripted(replies ...Reply) *MockProvider {
	return &MockProvider{
		replies: replies,
		byModel: make(map[string]*script),
	}
}

// On scripts the replies for requests naming model, overriding the default
// script for that model.
func (m *MockProvider) On(model string, replies ...Reply) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byModel[model] = &script{replies: replies}
	return m
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return "mock" }

// Chat returns the next scripted reply after its delay.
func (m *MockProvider) Chat(ctx context.Context, req provider.Request) (*provider.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	var reply Reply
	if s, ok := m.byModel[req.Model]; ok && len(s.replies) > 0 {
		reply = s.next()
	} else if len(m.replies) > 0 {
		reply = m.replies[m.idx%len(m.replies)]
		m.idx++
	} else {
		reply = Reply{Content: DefaultResponse}
	}
	m.mu.Unlock()

	if reply.Delay > 0 {
		timer := time.NewTimer(reply.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	usage := reply.Usage
	if usage == (provider.Usage{}) {
		usage = provider.Usage{InputTokens: len(req.System) + len(lastContent(req)), OutputTokens: len(reply.Content)}
	}
	return &provider.Response{Content: reply.Content, Usage: usage}, nil
}

// Calls returns a copy of every request received so far.
func (m *MockProvider) Calls() []provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

func lastContent(req provider.Request) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}
