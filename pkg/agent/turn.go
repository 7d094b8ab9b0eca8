package agent

import (
	"sync"

	"github.com/harun/conduit/pkg/llm"
)

// Turn holds the state of one turn. History and Trace only grow.
type Turn struct {
	ID            string
	ModelOverride string

	mu          sync.RWMutex
	history     []llm.Message
	trace       []StepRecord
	finalAnswer string
	answered    bool
	truncated   bool
	rounds      int
}

// NewTurn starts a turn whose history opens with the user input
func NewTurn(id, input, modelOverride string) *Turn {
	return &Turn{
		ID:            id,
		ModelOverride: modelOverride,
		history:       []llm.Message{{Role: llm.RoleUser, Content: input}},
	}
}

// Append adds messages to the history
func (t *Turn) Append(msgs ...llm.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, msgs...)
}

// Messages returns a copy of the history
func (t *Turn) Messages() []llm.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]llm.Message, len(t.history))
	copy(out, t.history)
	return out
}

// LastAssistant returns the content of the most recent assistant message
func (t *Turn) LastAssistant() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.history) - 1; i >= 0; i-- {
		if t.history[i].Role == llm.RoleAssistant {
			return t.history[i].Content, true
		}
	}
	return "", false
}

// Record appends a step and returns its 1-based number
func (t *Turn) Record(step StepRecord) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trace = append(t.trace, step)
	return len(t.trace)
}

// Trace returns a copy of the step trace
func (t *Turn) Trace() []StepRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]StepRecord, len(t.trace))
	copy(out, t.trace)
	return out
}

// Finish sets the final answer. Only the first call has any effect.
func (t *Turn) Finish(answer string, truncated bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.answered {
		return
	}
	t.finalAnswer = answer
	t.truncated = truncated
	t.answered = true
}

// FinalAnswer returns the answer and whether one was set
func (t *Turn) FinalAnswer() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.finalAnswer, t.answered
}

func (t *Turn) nextRound() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rounds++
	return t.rounds
}

// Rounds is the number of tool execution rounds so far
func (t *Turn) Rounds() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rounds
}

// Result snapshots the turn
func (t *Turn) Result() *TurnResult {
	answer, _ := t.FinalAnswer()
	t.mu.RLock()
	truncated := t.truncated
	t.mu.RUnlock()
	return &TurnResult{
		TurnID:      t.ID,
		FinalAnswer: answer,
		Steps:       t.Trace(),
		Truncated:   truncated,
		Rounds:      t.Rounds(),
	}
}
