package chain

import (
	"fmt"
	"sync"
)

// Pool hands out RPC clients by least cumulative use, spreading load
// across the configured endpoints.
type Pool struct {
	mu      sync.Mutex
	clients []*Client
	uses    map[string]int64
}

func NewPool(endpoints []string) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no rpc endpoints configured")
	}

	clients := make([]*Client, 0, len(endpoints))
	uses := make(map[string]int64, len(endpoints))
	for _, ep := range endpoints {
		clients = append(clients, NewClient(ep))
		uses[ep] = 0
	}
	return &Pool{clients: clients, uses: uses}, nil
}

// Acquire returns the least-used client and counts the use.
func (p *Pool) Acquire() *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *Client
	for _, c := range p.clients {
		if best == nil || p.uses[c.Endpoint()] < p.uses[best.Endpoint()] {
			best = c
		}
	}
	p.uses[best.Endpoint()]++
	return best
}

// Uses reports the cumulative acquisition count per endpoint.
func (p *Pool) Uses() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]int64, len(p.uses))
	for ep, n := range p.uses {
		out[ep] = n
	}
	return out
}
