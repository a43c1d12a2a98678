package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peopledesk/peopledesk/internal/client/auth"
	"github.com/peopledesk/peopledesk/internal/client/transport"
)

const DefaultInterval = 30 * time.Second

// Options configures a Monitor.
type Options struct {
	Transport *transport.Client
	Creds     *auth.Store
	StatusURL string
	Interval  time.Duration
	Logger    *zap.SugaredLogger

	// OnExpired is invoked when the monitor itself detects an
	// invalidated session: warn the user and navigate to login.
	OnExpired func()
}

// Monitor polls the session-status endpoint while armed and forces a
// logout when the backend rejects the credential. Non-401 failures
// are treated as transient and only logged.
type Monitor struct {
	transport *transport.Client
	creds     *auth.Store
	statusURL string
	interval  time.Duration
	log       *zap.SugaredLogger
	onExpired func()

	mu      sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

func New(opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Monitor{
		transport: opts.Transport,
		creds:     opts.Creds,
		statusURL: opts.StatusURL,
		interval:  interval,
		log:       log,
		onExpired: opts.OnExpired,
	}
}

// Start arms the monitor. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.done = make(chan struct{})
	m.wg.Add(1)
	go m.run(m.done)
}

func (m *Monitor) run(done chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.CheckNow(context.Background())
		}
	}
}

// Stop disarms the monitor and waits for any in-flight check to
// finish: once Stop returns, no further tick fires. Safe to call
// repeatedly or when never started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// CheckNow performs a single validation round trip. The transport's
// global 401 policy is bypassed: this caller decides the handling.
func (m *Monitor) CheckNow(ctx context.Context) {
	_, err := m.transport.Call(ctx, http.MethodGet, m.statusURL, transport.WithoutSessionGuard())
	if err == nil {
		return
	}

	var apiErr *transport.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		// Another path may have logged out already; don't do it twice.
		if m.creds.Token() == "" {
			return
		}
		m.log.Warnw("session no longer valid, logging out")
		m.creds.Clear()
		if m.onExpired != nil {
			m.onExpired()
		}
		return
	}

	// Transient or non-authoritative failure: never log the user out
	// over it.
	m.log.Debugw("session check failed", "err", err)
}
