package device

import (
	"context"
	"sync"
	"time"
)

// MockSession implements Session for testing. Queued payloads are served
// FIFO; an exhausted queue reads as "nothing new". Dispatched commands
// and poll parameters are recorded for assertions.
type MockSession struct {
	mu       sync.Mutex
	payloads []Payload
	pollErr  error
	cmdErr   error
	commands []Command
	polls    []PollRequest
}

// PollRequest records the parameters of one RequestPayload call.
type PollRequest struct {
	Category      string
	AuxIntervalV1 time.Duration
	AuxIntervalV2 time.Duration
	RichQuery     bool
}

// NewMockSession creates an empty mock session.
func NewMockSession() *MockSession {
	return &MockSession{}
}

// QueuePayload appends a payload served by a later RequestPayload call.
// Queue nil to simulate an explicit empty poll result.
func (m *MockSession) QueuePayload(p Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, p)
}

// FailPollWith makes every subsequent RequestPayload return err.
func (m *MockSession) FailPollWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollErr = err
}

// FailCommandWith makes every subsequent SendCommand return err.
func (m *MockSession) FailCommandWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmdErr = err
}

// RequestPayload serves the next queued payload.
func (m *MockSession) RequestPayload(_ context.Context, category string, auxV1, auxV2 time.Duration, richQuery bool) (Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.polls = append(m.polls, PollRequest{
		Category:      category,
		AuxIntervalV1: auxV1,
		AuxIntervalV2: auxV2,
		RichQuery:     richQuery,
	})

	if m.pollErr != nil {
		return nil, m.pollErr
	}
	if len(m.payloads) == 0 {
		return nil, nil
	}
	next := m.payloads[0]
	m.payloads = m.payloads[1:]
	return next, nil
}

// SendCommand records the command.
func (m *MockSession) SendCommand(_ context.Context, cmd Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmdErr != nil {
		return m.cmdErr
	}
	m.commands = append(m.commands, cmd)
	return nil
}

// Commands returns a copy of the dispatched commands.
func (m *MockSession) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.commands))
	copy(out, m.commands)
	return out
}

// Polls returns a copy of the recorded poll requests.
func (m *MockSession) Polls() []PollRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PollRequest, len(m.polls))
	copy(out, m.polls)
	return out
}
