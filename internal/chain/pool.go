package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ligun0805/bridge-runner/internal/networks"
)

// Pool dials one Client per network on first use and shares it between
// accounts. Safe for concurrent use.
type Pool struct {
	registry *networks.Registry
	opts     Options

	mu      sync.Mutex
	clients map[string]*Client
}

func NewPool(reg *networks.Registry, opts Options) *Pool {
	return &Pool{registry: reg, opts: opts, clients: map[string]*Client{}}
}

// Put registers an already built client, replacing any dialed one.
func (p *Pool) Put(c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[c.Network.Slug] = c
}

// Get returns the client for slug, dialing it if needed.
func (p *Pool) Get(ctx context.Context, slug string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[slug]; ok {
		return c, nil
	}
	if p.registry == nil {
		return nil, fmt.Errorf("unknown network %q", slug)
	}
	n, ok := p.registry.Network(slug)
	if !ok {
		return nil, fmt.Errorf("unknown network %q", slug)
	}
	c, err := Dial(ctx, n, p.opts)
	if err != nil {
		return nil, err
	}
	p.clients[slug] = c
	return c, nil
}

// CheckAll dials every slug and verifies its chain id, returning the slugs that failed.
func (p *Pool) CheckAll(ctx context.Context, slugs []string) map[string]error {
	bad := map[string]error{}
	for _, slug := range slugs {
		c, err := p.Get(ctx, slug)
		if err == nil {
			err = c.CheckHealth(ctx)
		}
		if err != nil {
			bad[slug] = err
		}
	}
	return bad
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for slug, c := range p.clients {
		c.Close()
		delete(p.clients, slug)
	}
}
