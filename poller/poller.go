package poller

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// Source is one GTFS-RT endpoint polled on its own cadence.
type Source struct {
	ID       string
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	Retries  int
	Priority int
}

// Result is one completed poll cycle: either a payload or the failure that
// exhausted all retries. Exactly one of Payload and Err is set.
type Result struct {
	SourceID  string
	Priority  int
	Payload   []byte
	Err       error
	FetchedAt time.Time
}

// Poller drives the per-source fetch loops.
type Poller struct {
	sources []Source
	client  *http.Client
	out     chan Result

	backoffBase time.Duration
}

// New creates a poller for the given sources. Results are buffered so a slow
// consumer briefly falling behind does not stall the fetch loops.
func New(sources []Source) *Poller {
	return &Poller{
		sources:     sources,
		client:      &http.Client{},
		out:         make(chan Result, len(sources)*2+4),
		backoffBase: 500 * time.Millisecond,
	}
}

// Results returns the channel poll outcomes are emitted on. It is closed
// once Run returns.
func (p *Poller) Results() <-chan Result { return p.out }

// Run polls every source until ctx is cancelled, then closes the result
// channel. Each source fetches immediately on start and then on its ticker.
func (p *Poller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, src := range p.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			p.pollSource(ctx, src)
		}(src)
	}
	wg.Wait()
	close(p.out)
}

func (p *Poller) pollSource(ctx context.Context, src Source) {
	p.pollOnce(ctx, src)

	ticker := time.NewTicker(src.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx, src)
		}
	}
}

// pollOnce runs one cycle: fetch with retries, emit exactly one Result.
func (p *Poller) pollOnce(ctx context.Context, src Source) {
	var lastErr error
	for attempt := 0; attempt <= src.Retries; attempt++ {
		if attempt > 0 {
			if !sleepCtx(ctx, p.backoff(attempt)) {
				return
			}
		}
		payload, err := p.fetch(ctx, src)
		if err == nil {
			p.emit(ctx, Result{SourceID: src.ID, Priority: src.Priority, Payload: payload, FetchedAt: time.Now()})
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			return
		}
		log.Printf("poll %s attempt %d/%d failed: %v", src.ID, attempt+1, src.Retries+1, err)
	}
	p.emit(ctx, Result{SourceID: src.ID, Priority: src.Priority, Err: lastErr, FetchedAt: time.Now()})
}

func (p *Poller) fetch(ctx context.Context, src Source) ([]byte, error) {
	reqCtx := ctx
	if src.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, src.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", src.ID, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, src.URL)
	}
	return io.ReadAll(resp.Body)
}

// backoff doubles per attempt: base, 2*base, 4*base, capped at 30s.
func (p *Poller) backoff(attempt int) time.Duration {
	d := p.backoffBase << (attempt - 1)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func (p *Poller) emit(ctx context.Context, r Result) {
	select {
	case p.out <- r:
	case <-ctx.Done():
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
