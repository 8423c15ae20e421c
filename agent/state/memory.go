package state

import (
	"context"
	"sync"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

// MemoryBackend keeps thread logs in process for the lifetime of the
// service; it is never reset implicitly.
type MemoryBackend struct {
	mu      sync.RWMutex
	threads map[string][]contractx.Message
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{threads: make(map[string][]contractx.Message)}
}

func (b *MemoryBackend) Load(ctx context.Context, threadID string) ([]contractx.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return contractx.CloneMessages(b.threads[threadID]), nil
}

func (b *MemoryBackend) Append(ctx context.Context, threadID string, msgs []contractx.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threads[threadID] = append(b.threads[threadID], contractx.CloneMessages(msgs)...)
	return nil
}
