package apptest

import (
	"context"
	"sync"

	"medichat/internal/ai"
)

// ScriptedEngine is a completion client whose next reply or failure is set by
// the test.
type ScriptedEngine struct {
	Reply string
	Err   error

	mu         sync.Mutex
	calls      int
	lastPrompt []ai.ChatMessage
}

func (e *ScriptedEngine) Complete(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.lastPrompt = messages
	return e.Reply, e.Err
}

func (e *ScriptedEngine) StreamComplete(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	e.mu.Lock()
	reply, err := e.Reply, e.Err
	e.calls++
	e.lastPrompt = messages
	e.mu.Unlock()

	if err != nil {
		return "", err
	}
	if chunkErr := onChunk(reply); chunkErr != nil {
		return "", chunkErr
	}
	return reply, nil
}

func (e *ScriptedEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *ScriptedEngine) LastPrompt() []ai.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPrompt
}
