package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Pool hands out a random outbound proxy per request. A nil or empty Pool
// means direct connections.
type Pool struct {
	mu      sync.Mutex
	rng     *rand.Rand
	proxies []*url.URL
}

// Load reads one proxy per line. A missing file yields an empty pool.
func Load(path string) (*Pool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Pool{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads proxies from r; lines without a scheme get "http://".
// Blank lines and '#' comments are skipped.
func Parse(r io.Reader) (*Pool, error) {
	p := &Pool{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "://") {
			line = "http://" + line
		}
		u, err := url.Parse(line)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("proxies line %d: bad proxy %q", n, line)
		}
		p.proxies = append(p.proxies, u)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.proxies)
}

// Pick returns a random proxy or nil when the pool is empty.
func (p *Pool) Pick() *url.URL {
	if p.Len() == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return p.proxies[p.rng.Intn(len(p.proxies))]
}

// ProxyFunc matches http.Transport.Proxy.
func (p *Pool) ProxyFunc(*http.Request) (*url.URL, error) {
	return p.Pick(), nil
}

// Transport returns a transport that picks a proxy for every request.
func (p *Pool) Transport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = p.ProxyFunc
	return t
}

// HTTPClient returns a client over Transport, or nil when the pool is empty.
func (p *Pool) HTTPClient(timeout time.Duration) *http.Client {
	if p.Len() == 0 {
		return nil
	}
	return &http.Client{Transport: p.Transport(), Timeout: timeout}
}
