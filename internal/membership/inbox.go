package membership

import (
	"context"
	"sync"
)

// Inboxes is an in-memory Sink that keeps every delivered message per
// member, oldest first.
type Inboxes struct {
	mu       sync.RWMutex
	messages map[string][]string
}

func NewInboxes() *Inboxes {
	return &Inboxes{messages: make(map[string][]string)}
}

func (in *Inboxes) Deliver(ctx context.Context, m Member, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	in.messages[m.ID] = append(in.messages[m.ID], message)
	return nil
}

func (in *Inboxes) Messages(memberID string) []string {
	in.mu.RLock()
	defer in.mu.RUnlock()

	out := make([]string, len(in.messages[memberID]))
	copy(out, in.messages[memberID])
	return out
}
