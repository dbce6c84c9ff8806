package copilot

import "sync"

// Pool keeps one conversation per claim for long-lived callers such as the
// MCP server.
type Pool struct {
	backend   Backend
	firstName string
	opts      []Option

	mu    sync.Mutex
	convs map[string]*Conversation
}

// NewPool returns an empty pool whose conversations greet firstName.
func NewPool(backend Backend, firstName string, opts ...Option) *Pool {
	return &Pool{backend: backend, firstName: firstName, opts: opts, convs: make(map[string]*Conversation)}
}

// For returns the conversation bound to claimID, creating it on first use.
func (p *Pool) For(claimID string) *Conversation {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.convs[claimID]
	if !ok {
		c = New(p.backend, p.firstName, p.opts...)
		c.Select(claimID)
		p.convs[claimID] = c
	}
	return c
}

// Len is the number of open conversations.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.convs)
}
