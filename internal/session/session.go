// internal/session/session.go
// Description: Session owns exactly one browser process and one page, wires
// the CDP event stream to the active adapter set, and guarantees that
// teardown happens exactly once no matter how many triggers race (adapter
// completion, orchestrator ceiling, caller cancellation).

package session

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/quotescope/quotescope/internal/adapter"
	"github.com/quotescope/quotescope/internal/records"
)

// State is the session lifecycle phase. Transitions only move forward.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Config carries the browser and network knobs for one session.
type Config struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DisableCache      bool          `mapstructure:"disable_cache" yaml:"disable_cache"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	BodyFetchTimeout  time.Duration `mapstructure:"body_fetch_timeout" yaml:"body_fetch_timeout"`
	MaxBodyFetches    int64         `mapstructure:"max_body_fetches" yaml:"max_body_fetches"`
}

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultNavigationTimeout = 60 * time.Second
	defaultBodyFetchTimeout  = 15 * time.Second
	defaultMaxBodyFetches    = 8
	closeTimeout             = 10 * time.Second
)

func (c *Config) applyDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.BodyFetchTimeout <= 0 {
		c.BodyFetchTimeout = defaultBodyFetchTimeout
	}
	if c.MaxBodyFetches <= 0 {
		c.MaxBodyFetches = defaultMaxBodyFetches
	}
}

// Session drives one page through one browser and dispatches its traffic to
// the adapter set.
type Session struct {
	logger   *zap.Logger
	cfg      Config
	adapters []adapter.Adapter

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	// Per-request bookkeeping for body fetches and method lookup.
	lock     sync.RWMutex
	requests map[network.RequestID]*requestState
	pageURL  string
	meta     records.Metadata

	// Bounds concurrent GetResponseBody calls.
	fetchSem *semaphore.Weighted
	fetchWG  sync.WaitGroup

	// Lifecycle. closing flips exactly once; everything after is a no-op.
	mu      sync.Mutex
	state   State
	closing bool

	// Completion signal. Closed at most once by the first adapter to finish.
	done     chan struct{}
	doneOnce sync.Once
}

// requestState tracks one network request through its lifecycle so the body
// fetcher can wait for headers before asking for the payload.
type requestState struct {
	request       *network.Request
	response      *network.Response
	resourceType  network.ResourceType
	responseReady chan struct{}
	readyOnce     sync.Once
}

func (rs *requestState) markReady() {
	rs.readyOnce.Do(func() { close(rs.responseReady) })
}

// New creates an idle session for the given adapter set.
func New(cfg Config, adapters []adapter.Adapter, logger *zap.Logger) *Session {
	cfg.applyDefaults()
	s := &Session{
		logger:   logger.Named("session"),
		cfg:      cfg,
		adapters: adapters,
		requests: make(map[network.RequestID]*requestState),
		fetchSem: semaphore.NewWeighted(cfg.MaxBodyFetches),
		done:     make(chan struct{}),
	}
	for _, a := range adapters {
		a.OnComplete(s.signalDone)
	}
	return s
}

// Done is closed when any adapter signals completion.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) signalDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Open launches the browser (if needed), creates the page, installs the
// interception pipeline and navigates. A navigation failure is returned as a
// *NavigationError; the caller must still Close the session.
func (s *Session) Open(ctx context.Context, url string, meta records.Metadata) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("session already %s", s.state)
	}
	s.state = StateLaunching
	s.mu.Unlock()

	s.lock.Lock()
	s.pageURL = url
	s.meta = meta
	s.lock.Unlock()

	meta.PageURL = url
	for _, a := range s.adapters {
		a.SetMetadata(meta)
	}

	s.logger.Info("Launching browser",
		zap.String("url", url),
		zap.Bool("headless", s.cfg.Headless))

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, s.allocatorOptions()...)
	s.allocCtx = allocCtx
	s.allocCancel = allocCancel

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s.tabCtx = tabCtx
	s.tabCancel = tabCancel

	// The listener must be installed before any CDP command runs so no early
	// event is missed.
	s.listen()

	if err := s.enableDomains(); err != nil {
		s.mu.Lock()
		s.state = StateOpen // allow Close to run the full teardown
		s.mu.Unlock()
		return fmt.Errorf("failed to enable CDP domains: %w", err)
	}

	s.mu.Lock()
	s.state = StateOpen
	s.mu.Unlock()

	navCtx, cancel := context.WithTimeout(tabCtx, s.cfg.NavigationTimeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if s.cfg.PostLoadWait > 0 {
				select {
				case <-time.After(s.cfg.PostLoadWait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		}),
	)
	if err != nil {
		// A completion signal racing the navigation wait is not a failure;
		// the adapter found what it needed and tore the page down.
		select {
		case <-s.done:
			s.logger.Info("Navigation interrupted by completion signal", zap.String("url", url))
			return nil
		default:
		}
		if IsIgnorable(err) {
			s.logger.Info("Navigation ended early", zap.String("url", url), zap.Error(err))
			return nil
		}
		return &NavigationError{URL: url, Err: err}
	}

	s.logger.Info("Navigated", zap.String("url", url))
	return nil
}

// allocatorOptions assembles the launch flags. Later options override the
// stock defaults, which is how the automation banner gets suppressed.
func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", s.cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", s.cfg.Headless),
		chromedp.UserAgent(s.cfg.UserAgent),
	)

	for _, arg := range s.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	// Required when running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// Close tears the session down exactly once. With force set, adapter cleanup
// hooks are skipped and the browser is killed outright. Concurrent and
// repeated calls are no-ops; Close never returns an error that should stop
// the caller from exiting.
func (s *Session) Close(force bool) error {
	s.mu.Lock()
	if s.closing || s.state == StateClosed {
		s.mu.Unlock()
		s.logger.Debug("Close already in progress, ignoring")
		return nil
	}
	s.closing = true
	s.state = StateClosing
	s.mu.Unlock()

	s.logger.Info("Closing session", zap.Bool("force", force))

	if !force {
		s.gracefulShutdown()
	}

	// Cancel the tab first, then the allocator. Cancelling the allocator
	// terminates the browser process; this is the hard-kill fallback when a
	// graceful close hangs.
	if s.tabCancel != nil {
		s.tabCancel()
		select {
		case <-s.tabCtx.Done():
		case <-time.After(closeTimeout):
			s.logger.Warn("Timeout waiting for page to close, killing browser")
		}
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}

	// Give in-flight body fetches a moment to observe cancellation.
	s.waitForFetches(2 * time.Second)

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.logger.Info("Session closed")
	return nil
}

// gracefulShutdown stops in-page activity and runs adapter cleanup hooks.
// Every error here is expected to be ignorable; none of them abort the close.
func (s *Session) gracefulShutdown() {
	if s.tabCtx != nil {
		stopCtx, cancel := context.WithTimeout(s.tabCtx, 2*time.Second)
		if err := chromedp.Run(stopCtx, chromedp.Evaluate(`window.stop()`, nil)); err != nil {
			if IsIgnorable(err) {
				s.logger.Info("window.stop during close", zap.Error(err))
			} else {
				s.logger.Warn("Failed to stop page activity", zap.Error(err))
			}
		}
		cancel()
	}

	for _, a := range s.adapters {
		s.runCleanup(a)
	}
}

func (s *Session) runCleanup(a adapter.Adapter) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Adapter cleanup panicked",
				zap.String("adapter", a.Name()), zap.Any("panic", r))
		}
	}()
	a.Cleanup()
}

func (s *Session) waitForFetches(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.fetchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Debug("Timed out waiting for body fetches during close")
	}
}
