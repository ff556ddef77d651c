package llmquery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mock is a scripted Querier. Each call pops the next Reply; when the script is exhausted, Fallback is used (or an error if nil). Delay is honored before replying,
// and ends early with ctx.Err() if ctx is done first.
type Mock struct {
	Delay    time.Duration
	Fallback func(ctx context.Context, prompt string, opts Options) (string, error)

	mu      sync.Mutex
	replies []Reply
	prompts []string
}

// Reply is one scripted answer.
type Reply struct {
	Text  string
	Err   error
	Delay time.Duration // overrides Mock.Delay if non-zero
}

var _ Querier = (*Mock)(nil)

// NewMock returns a Mock that answers with replies in order.
func NewMock(replies ...Reply) *Mock {
	return &Mock{replies: replies}
}

// NewMockText returns a Mock that always answers text.
func NewMockText(text string) *Mock {
	return &Mock{Fallback: func(context.Context, string, Options) (string, error) { return text, nil }}
}

// NewMockKeywords returns a Mock that replies with the value for any key contained (case-insensitively) in the prompt.
func NewMockKeywords(responses map[string]string) *Mock {
	return &Mock{Fallback: func(_ context.Context, prompt string, _ Options) (string, error) {
		lower := strings.ToLower(prompt)
		for k, resp := range responses {
			if strings.Contains(lower, strings.ToLower(k)) {
				return resp, nil
			}
		}
		return "", fmt.Errorf("no mock response for prompt")
	}}
}

// Push appends replies to the script.
func (m *Mock) Push(replies ...Reply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
}

// Prompts returns the prompts received so far.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *Mock) Query(ctx context.Context, prompt string, opts Options) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	var reply *Reply
	if len(m.replies) > 0 {
		r := m.replies[0]
		m.replies = m.replies[1:]
		reply = &r
	}
	delay := m.Delay
	fallback := m.Fallback
	m.mu.Unlock()

	if reply != nil && reply.Delay > 0 {
		delay = reply.Delay
	}
	if delay > 0 {
		if err := sleepCtx(ctx, delay); err != nil {
			return "", err
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	if reply != nil {
		return reply.Text, reply.Err
	}
	if fallback != nil {
		return fallback(ctx, prompt, opts)
	}
	return "", fmt.Errorf("mock: no reply scripted")
}
