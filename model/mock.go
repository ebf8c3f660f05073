package model

import (
	"context"
	"fmt"
	"sync"
)

// MockModel is a lightweight in-memory Model useful for tests. Responses can
// be scripted as an ordered queue (tool-call rounds included) or registered
// per input prompt; a generic echo response is produced when neither
// matches.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	scripted  []Response
	responses map[string]string
	calls     []Request
	failures  int
	err       error
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock", SupportsTools: true},
		responses: make(map[string]string),
	}
}

// Enqueue appends scripted responses consumed in order by Generate.
func (m *MockModel) Enqueue(resps ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, resps...)
}

// AddResponse registers a deterministic canned completion for an input
// prompt (matched against the last user message text).
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailNext makes the next n Generate calls return err before any scripted
// response is consumed. Used to exercise retry paths.
func (m *MockModel) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.err = err
}

// Calls returns the requests Generate received, in order.
func (m *MockModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	if m.failures > 0 {
		m.failures--
		return nil, m.err
	}

	if len(m.scripted) > 0 {
		resp := m.scripted[0]
		m.scripted = m.scripted[1:]
		if resp.FinishReason == "" {
			if resp.HasToolCalls() {
				resp.FinishReason = FinishToolCalls
			} else {
				resp.FinishReason = FinishStop
			}
		}
		return &resp, nil
	}

	var lastUser string
	for i := len(req.History) - 1; i >= 0; i-- {
		if req.History[i].Role == "user" {
			lastUser = req.History[i].Text
			break
		}
	}
	text := m.responses[lastUser]
	if text == "" {
		text = fmt.Sprintf("Mock response to: %s", lastUser)
	}
	return &Response{Text: text, FinishReason: FinishStop}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
