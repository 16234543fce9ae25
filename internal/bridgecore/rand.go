package bridgecore

import (
	"math/rand"
	"sync"
	"time"
)

// randSource is a mutex-guarded rand.Rand shared by concurrent account tasks.
type randSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newRandSource(seed int64) *randSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &randSource{r: rand.New(rand.NewSource(seed))}
}

// Intn returns a value in [0, n); n <= 0 yields 0.
func (s *randSource) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Intn(n)
}

// IntBetween is inclusive on both ends.
func (s *randSource) IntBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.Intn(hi-lo+1)
}

// Uniform returns a float in [lo, hi].
func (s *randSource) Uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.r.Float64()*(hi-lo)
}

func (s *randSource) Between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + time.Duration(s.r.Int63n(int64(hi-lo)+1))
}

func (s *randSource) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r.Shuffle(n, swap)
}
