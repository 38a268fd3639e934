package ratelimit

import (
	"context"
	"io"
	"sync"
	"time"
)

// BandwidthLimiter throttles download throughput per project.
type BandwidthLimiter struct {
	mu                 sync.Mutex
	buckets            map[string]*bwBucket
	defaultBytesPerSec int64
}

type bwBucket struct {
	bytesPerSec int64
	tokens      float64
	lastTime    time.Time
}

// NewBandwidthLimiter creates a limiter with a default bytes/sec per project.
// Zero disables throttling for projects without an explicit limit.
func NewBandwidthLimiter(defaultBytesPerSec int64) *BandwidthLimiter {
	return &BandwidthLimiter{
		buckets:            make(map[string]*bwBucket),
		defaultBytesPerSec: defaultBytesPerSec,
	}
}

// SetProjectLimit sets a per-project limit in bytes/sec. 0 means use default.
func (bl *BandwidthLimiter) SetProjectLimit(project string, bytesPerSec int64) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	if bytesPerSec <= 0 {
		delete(bl.buckets, project)
		return
	}
	bl.buckets[project] = &bwBucket{
		bytesPerSec: bytesPerSec,
		tokens:      float64(bytesPerSec),
		lastTime:    time.Now(),
	}
}

func (bl *BandwidthLimiter) getBucket(project string) *bwBucket {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	b, ok := bl.buckets[project]
	if !ok {
		if bl.defaultBytesPerSec <= 0 {
			return nil
		}
		b = &bwBucket{
			bytesPerSec: bl.defaultBytesPerSec,
			tokens:      float64(bl.defaultBytesPerSec),
			lastTime:    time.Now(),
		}
		bl.buckets[project] = b
	}
	return b
}

// ThrottledReader wraps r so reads are paced to the project's limit.
// Waiting stops early when ctx is done.
func (bl *BandwidthLimiter) ThrottledReader(ctx context.Context, project string, r io.Reader) io.Reader {
	if bl.getBucket(project) == nil {
		return r
	}
	return &throttledReader{
		ctx:     ctx,
		reader:  r,
		bw:      bl,
		project: project,
	}
}

func (bl *BandwidthLimiter) waitForTokens(ctx context.Context, project string, n int) error {
	b := bl.getBucket(project)
	if b == nil {
		return nil
	}
	need := float64(n)
	for {
		bl.mu.Lock()
		now := time.Now()
		b.tokens += now.Sub(b.lastTime).Seconds() * float64(b.bytesPerSec)
		if b.tokens > float64(b.bytesPerSec) {
			b.tokens = float64(b.bytesPerSec)
		}
		b.lastTime = now

		// Reads larger than one second of budget drain the bucket in slices.
		take := need
		if take > float64(b.bytesPerSec) {
			take = float64(b.bytesPerSec)
		}
		if b.tokens >= take {
			b.tokens -= take
			need -= take
			if need <= 0 {
				bl.mu.Unlock()
				return nil
			}
		}
		bl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

type throttledReader struct {
	ctx     context.Context
	reader  io.Reader
	bw      *BandwidthLimiter
	project string
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	n, err := tr.reader.Read(p)
	if n > 0 {
		if werr := tr.bw.waitForTokens(tr.ctx, tr.project, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
