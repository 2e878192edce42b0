package model

import (
	"context"
	"sync"
)

// MockClient is a scripted model client for tests. Each call consumes the
// next queued reply in order; it records every prompt it receives.
type MockClient struct {
	mu      sync.Mutex
	replies []mockReply
	Prompts []string
}

type mockReply struct {
	env *Envelope
	err error
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// QueueEnvelope queues a successful envelope reply.
func (m *MockClient) QueueEnvelope(env *Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, mockReply{env: env})
}

// QueueText queues an envelope with a single normally-completed candidate.
func (m *MockClient) QueueText(text string) {
	m.QueueEnvelope(&Envelope{
		Candidates: []Candidate{{FinishReason: FinishStop, Text: text}},
	})
}

// QueueError queues a call failure.
func (m *MockClient) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, mockReply{err: err})
}

// Call implements Client.
func (m *MockClient) Call(_ context.Context, prompt string) (*Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)

	if len(m.replies) == 0 {
		return nil, NewError(ErrorTypeUnknown, "mock client has no queued replies")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply.env, reply.err
}

// CallCount returns the number of calls made so far.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}
