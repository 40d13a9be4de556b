package mailbox

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// MemoryGateway is an in-process mailbox used in development and tests.
type MemoryGateway struct {
	mu      sync.Mutex
	folders map[Folder][]Message
	outbox  []SentMessage
	seq     int
	failing error
}

// SentMessage is an outbound request accepted by the memory gateway.
type SentMessage struct {
	ID string
	OutboundRequest
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{folders: make(map[Folder][]Message)}
}

// Deliver places messages into folder.
func (g *MemoryGateway) Deliver(folder Folder, msgs ...Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.folders[folder] = append(g.folders[folder], msgs...)
	sort.SliceStable(g.folders[folder], func(i, j int) bool {
		return g.folders[folder][i].ReceivedAt.Before(g.folders[folder][j].ReceivedAt)
	})
}

// FailOutbound makes CreateOutbound return err until reset with nil.
func (g *MemoryGateway) FailOutbound(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failing = err
}

// Outbox returns every message created so far.
func (g *MemoryGateway) Outbox() []SentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SentMessage(nil), g.outbox...)
}

func (g *MemoryGateway) FetchNew(ctx context.Context, folder Folder, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	msgs := g.folders[folder]
	n := len(msgs)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]Message, 0, n)
	for i := len(msgs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (g *MemoryGateway) CreateOutbound(ctx context.Context, req OutboundRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing != nil {
		return "", g.failing
	}
	g.seq++
	id := "mem-" + strconv.Itoa(g.seq)
	g.outbox = append(g.outbox, SentMessage{ID: id, OutboundRequest: req})
	return id, nil
}
