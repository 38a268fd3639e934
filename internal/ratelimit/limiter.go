package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

type bucket struct {
	tokens   float64
	lastTime time.Time
	rps      float64
	burst    int
}

func (b *bucket) allow(now time.Time) bool {
	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * b.rps
	if b.tokens > float64(b.burst) {
		b.tokens = float64(b.burst)
	}
	b.lastTime = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Limiter is a token bucket request limiter with one bucket per project and
// one per API key. A zero rate disables that tier.
type Limiter struct {
	mu sync.Mutex

	projectBuckets map[string]*bucket
	keyBuckets     map[string]*bucket

	projectRPS   float64
	projectBurst int
	keyRPS       float64
	keyBurst     int

	rejected atomic.Int64
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewLimiter(projectRPS float64, projectBurst int, keyRPS float64, keyBurst int) *Limiter {
	if projectBurst <= 0 {
		projectBurst = 1
	}
	if keyBurst <= 0 {
		keyBurst = 1
	}
	l := &Limiter{
		projectBuckets: make(map[string]*bucket),
		keyBuckets:     make(map[string]*bucket),
		projectRPS:     projectRPS,
		projectBurst:   projectBurst,
		keyRPS:         keyRPS,
		keyBurst:       keyBurst,
		stopCh:         make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow reports whether one more request from projectID, made with the API
// key identified by keyID, fits within both tiers.
func (l *Limiter) Allow(projectID, keyID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if l.projectRPS > 0 {
		pb, ok := l.projectBuckets[projectID]
		if !ok {
			pb = &bucket{tokens: float64(l.projectBurst), lastTime: now, rps: l.projectRPS, burst: l.projectBurst}
			l.projectBuckets[projectID] = pb
		}
		if !pb.allow(now) {
			l.rejected.Add(1)
			return false
		}
	}

	if l.keyRPS > 0 && keyID != "" {
		kb, ok := l.keyBuckets[keyID]
		if !ok {
			kb = &bucket{tokens: float64(l.keyBurst), lastTime: now, rps: l.keyRPS, burst: l.keyBurst}
			l.keyBuckets[keyID] = kb
		}
		if !kb.allow(now) {
			l.rejected.Add(1)
			return false
		}
	}

	return true
}

// Stats is a point-in-time snapshot of limiter state.
type Stats struct {
	ActiveProjects int     `json:"active_projects"`
	ActiveKeys     int     `json:"active_keys"`
	Rejected       int64   `json:"rejected"`
	ProjectRPS     float64 `json:"project_rps"`
	ProjectBurst   int     `json:"project_burst"`
	KeyRPS         float64 `json:"key_rps"`
	KeyBurst       int     `json:"key_burst"`
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	projects := len(l.projectBuckets)
	keys := len(l.keyBuckets)
	l.mu.Unlock()

	return Stats{
		ActiveProjects: projects,
		ActiveKeys:     keys,
		Rejected:       l.rejected.Load(),
		ProjectRPS:     l.projectRPS,
		ProjectBurst:   l.projectBurst,
		KeyRPS:         l.keyRPS,
		KeyBurst:       l.keyBurst,
	}
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for id, b := range l.projectBuckets {
				if now.Sub(b.lastTime) > 5*time.Minute {
					delete(l.projectBuckets, id)
				}
			}
			for key, b := range l.keyBuckets {
				if now.Sub(b.lastTime) > 5*time.Minute {
					delete(l.keyBuckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
