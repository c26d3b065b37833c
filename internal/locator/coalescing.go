package locator

import (
	"context"
	"sync"
	"time"
)

// inFlightProbe is one probe sequence that concurrent callers share.
type inFlightProbe struct {
	done   chan struct{}
	result Resolution
}

// probeCoalescer collapses concurrent resolutions of the same key into one probe sequence,
// so a burst of serve requests does not hit the geolocation endpoints once each.
type probeCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightProbe
	timeout  time.Duration
}

func newProbeCoalescer(timeout time.Duration) *probeCoalescer {
	return &probeCoalescer{
		inFlight: make(map[string]*inFlightProbe),
		timeout:  timeout,
	}
}

// Do returns the result of fn for key, running fn at most once across concurrent callers.
// shared is true when the caller joined a probe started by someone else. Waiting is bounded
// by ctx and the coalescer timeout; fn itself keeps running for the remaining waiters.
func (pc *probeCoalescer) Do(ctx context.Context, key string, fn func() Resolution) (res Resolution, shared bool, err error) {
	pc.mu.Lock()
	p, exists := pc.inFlight[key]
	if !exists {
		p = &inFlightProbe{done: make(chan struct{})}
		pc.inFlight[key] = p
		go func() {
			p.result = fn()
			pc.mu.Lock()
			delete(pc.inFlight, key)
			pc.mu.Unlock()
			close(p.done)
		}()
	}
	pc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	select {
	case <-p.done:
		return p.result, exists, nil
	case <-waitCtx.Done():
		return Resolution{}, exists, waitCtx.Err()
	}
}
