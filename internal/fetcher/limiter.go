package fetcher

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DomainLimiter caps concurrent fetches per host and paces successive
// requests to the same host. Hosts are compared case-insensitively with
// any leading "www." stripped, so www.example.com and example.com share
// a budget.
type DomainLimiter struct {
	mu          sync.Mutex
	semaphores  map[string]chan struct{}
	pacers      map[string]*rate.Limiter
	concurrency int
	interval    time.Duration
}

func NewDomainLimiter(concurrency int, interval time.Duration) *DomainLimiter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &DomainLimiter{
		semaphores:  make(map[string]chan struct{}),
		pacers:      make(map[string]*rate.Limiter),
		concurrency: concurrency,
		interval:    interval,
	}
}

// DomainKey reduces a URL to the key its host budget is tracked under.
func DomainKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// Acquire blocks until the host has a free slot and its pacing interval
// has elapsed. The returned release function must be called exactly once.
func (l *DomainLimiter) Acquire(ctx context.Context, rawURL string) (func(), error) {
	key := DomainKey(rawURL)

	l.mu.Lock()
	sem, ok := l.semaphores[key]
	if !ok {
		sem = make(chan struct{}, l.concurrency)
		l.semaphores[key] = sem
	}
	pacer, ok := l.pacers[key]
	if !ok {
		if l.interval > 0 {
			pacer = rate.NewLimiter(rate.Every(l.interval), 1)
		} else {
			pacer = rate.NewLimiter(rate.Inf, 1)
		}
		l.pacers[key] = pacer
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := pacer.Wait(ctx); err != nil {
		<-sem
		return nil, err
	}

	return func() { <-sem }, nil
}
