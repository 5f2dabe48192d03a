package netmon

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dmeireles/writeback/internal/logging"
)

const (
	// DefaultProbeInterval is how often the prober checks the backend.
	DefaultProbeInterval = 30 * time.Second
	// DefaultProbeTimeout bounds a single probe request.
	DefaultProbeTimeout = 5 * time.Second
)

// ProberConfig tunes a Prober. Zero values select the defaults above.
type ProberConfig struct {
	URL      string // health endpoint to probe, required
	Interval time.Duration
	Timeout  time.Duration
	Client   *http.Client // overrides the default probe client
	Logger   *zerolog.Logger
}

// Prober is a Monitor that decides reachability by probing a backend health
// endpoint on a fixed interval. It probes with HEAD and falls back to GET
// when the endpoint rejects HEAD.
type Prober struct {
	state    *Manual
	client   *http.Client
	url      string
	interval time.Duration
	logger   zerolog.Logger

	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewProber creates a Prober for cfg.URL. The prober starts offline and
// flips online on its first successful probe.
func NewProber(cfg ProberConfig) *Prober {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := logging.Component("netmon")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Prober{
		state:    NewManual(),
		client:   client,
		url:      cfg.URL,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Online reports the last probe verdict.
func (p *Prober) Online() bool {
	return p.state.Online()
}

// Subscribe registers fn for reachability transitions.
func (p *Prober) Subscribe(fn func(online bool)) (cancel func()) {
	return p.state.Subscribe(fn)
}

// Start launches the probe loop. The first probe fires immediately so boot
// does not wait a full interval for the verdict.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.Info().Str("url", p.url).Dur("interval", p.interval).Msg("connectivity prober started")
}

// Stop halts the probe loop and waits for it to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	p.logger.Info().Msg("connectivity prober stopped")
}

func (p *Prober) loop(ctx context.Context) {
	defer p.wg.Done()

	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

// probe issues one health check and records the verdict. Any response below
// 500 counts as reachable; the backend answered, even if it dislikes the
// method or path.
func (p *Prober) probe(ctx context.Context) {
	status, err := p.request(ctx, http.MethodHead)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = p.request(ctx, http.MethodGet)
	}

	online := err == nil && status < 500
	was := p.state.Online()
	if online != was {
		p.logger.Info().Bool("online", online).Int("status", status).Msg("connectivity changed")
	}
	p.state.SetOnline(online)
}

func (p *Prober) request(ctx context.Context, method string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return resp.StatusCode, nil
}
