package tool

import (
	"context"
	"encoding/json"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// Provider resolves tool calls. The in-process Registry is the default
// implementation; a remote provider would hold a transport connection.
type Provider interface {
	Definitions() []openai.Tool
	Execute(ctx context.Context, name string, input json.RawMessage) Result
}

// Manager owns the lazily-connected provider handle. It replaces the
// process-global singleton of the original design: the handle is created on
// first Acquire, reused afterwards, and Invalidate drops it so the next
// Acquire reconnects. The mutex prevents duplicate concurrent connection
// attempts.
type Manager struct {
	mu      sync.Mutex
	connect func() (Provider, error)
	current Provider
}

// NewManager creates a manager that connects with the given function.
func NewManager(connect func() (Provider, error)) *Manager {
	return &Manager{connect: connect}
}

// Acquire returns the live provider, connecting on first use.
func (m *Manager) Acquire() (Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return m.current, nil
	}
	p, err := m.connect()
	if err != nil {
		return nil, err
	}
	m.current = p
	return p, nil
}

// Invalidate drops the current handle so the next Acquire reconnects.
// Callers use it after connection-class failures only; tool-level failures
// (bad input, unknown tool) leave the handle alone.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}
