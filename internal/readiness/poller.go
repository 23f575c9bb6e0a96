package readiness

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// State is the poller's lifecycle state. Pending is the only non-terminal
// state; a poller reaches exactly one terminal state and stays there.
type State int

const (
	Pending State = iota
	Ready
	TimedOut
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Prober issues one readiness probe against the check URL. A nil error
// means the service answered successfully.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// HTTPProber probes with a plain GET; any 2xx response counts as ready.
type HTTPProber struct {
	Client *http.Client
}

func NewHTTPProber() *HTTPProber {
	return &HTTPProber{Client: &http.Client{Timeout: 5 * time.Second}}
}

func (p *HTTPProber) Probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe returned %d", resp.StatusCode)
	}
	return nil
}

// Clock abstracts the timer so tests can drive the poller's suspension
// points without sleeping.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Options configures a Poller. CheckURL is probed; AccessURL is what the
// ready callback receives.
type Options struct {
	CheckURL  string
	AccessURL string

	// InitialDelay is waited before the first probe so the viewer inside
	// the container has a chance to finish booting.
	InitialDelay time.Duration
	// Interval separates retries after a failed probe.
	Interval time.Duration
	// Budget is the maximum number of probes before giving up.
	Budget int

	// OnReady fires at most once, with AccessURL, on the transition to Ready.
	OnReady func(accessURL string)
	// OnTimeout fires at most once when the budget is exhausted.
	OnTimeout func(err error)

	Prober Prober
	Clock  Clock
}

// Poller watches one session's readiness endpoint until it answers, the
// probe budget runs out, or the context is cancelled.
type Poller struct {
	opts Options

	mu    sync.Mutex
	state State
}

func New(opts Options) *Poller {
	if opts.Prober == nil {
		opts.Prober = NewHTTPProber()
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 5 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Budget <= 0 {
		opts.Budget = 30
	}
	return &Poller{opts: opts}
}

// State returns the poller's current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// transition moves Pending to the given terminal state. It reports false
// when a terminal state was already reached, which is what keeps the
// callbacks at-most-once.
func (p *Poller) transition(s State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Pending {
		return false
	}
	p.state = s
	return true
}

// Run drives the poll loop to a terminal state and returns it. Cancelling
// ctx stops the loop at the next suspension point, or suppresses the
// callback of a probe already in flight. Run invokes at most one callback,
// exactly on the transition that decided the outcome.
func (p *Poller) Run(ctx context.Context) State {
	wait := p.opts.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= p.opts.Budget; attempt++ {
		select {
		case <-ctx.Done():
			p.transition(Cancelled)
			return p.State()
		case <-p.opts.Clock.After(wait):
		}

		err := p.opts.Prober.Probe(ctx, p.opts.CheckURL)
		if ctx.Err() != nil {
			// Cancelled while the probe was in flight. The result, success
			// or not, must not surface.
			p.transition(Cancelled)
			return p.State()
		}
		if err == nil {
			if p.transition(Ready) && p.opts.OnReady != nil {
				p.opts.OnReady(p.opts.AccessURL)
			}
			return p.State()
		}
		lastErr = err
		wait = p.opts.Interval
	}

	if p.transition(TimedOut) && p.opts.OnTimeout != nil {
		p.opts.OnTimeout(fmt.Errorf("service not ready after %d probes: %w", p.opts.Budget, lastErr))
	}
	return p.State()
}
