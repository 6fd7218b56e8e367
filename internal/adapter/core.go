// internal/adapter/core.go
// Description: Core is the shared per-session state machine adapters compose
// in: monotonic resultFound flag, accumulated results, candidate tracking,
// product-type bookkeeping and the cancellable grace-window timer. Completion
// side effects (save + session signal) run exactly once no matter how many
// triggers race.

package adapter

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/bus"
	"github.com/quotescope/quotescope/internal/records"
)

// DefaultGraceWindow is how long after page load an adapter keeps waiting for
// outstanding finance responses before finalizing with whatever it has.
const DefaultGraceWindow = 10 * time.Second

// Options tune Core's default lifecycle behaviour. They mirror the knobs the
// site integrations actually vary.
type Options struct {
	// BlockAfterFind aborts every further request (except the page itself)
	// once a result is in hand.
	BlockAfterFind bool
	// StopAfterFind makes ShallFinishLoading report true once a result is in
	// hand.
	StopAfterFind bool
	// GraceWindow overrides DefaultGraceWindow; zero means the default. A
	// negative value disables the window entirely (pure eager adapters).
	GraceWindow time.Duration
}

// Core carries the shared adapter state machine. It is not an Adapter itself;
// site adapters embed a *Core and supply classification and extraction on
// top.
type Core struct {
	name   string
	logger *zap.Logger
	events *bus.Bus
	opts   Options

	mu          sync.Mutex
	meta        records.Metadata
	resultFound bool
	results     []records.Record
	candidates  []string
	eligible    map[string]bool
	processed   map[string]bool
	graceTimer  *time.Timer
	onComplete  func()
	mainDocSeen bool
}

// NewCore wires a Core for one session.
func NewCore(name string, events *bus.Bus, logger *zap.Logger, opts Options) *Core {
	if opts.GraceWindow == 0 {
		opts.GraceWindow = DefaultGraceWindow
	}
	return &Core{
		name:      name,
		logger:    logger.Named(name),
		events:    events,
		opts:      opts,
		eligible:  make(map[string]bool),
		processed: make(map[string]bool),
	}
}

// Name implements Adapter.
func (c *Core) Name() string { return c.name }

// Logger exposes the adapter-scoped logger to embedding types.
func (c *Core) Logger() *zap.Logger { return c.logger }

// Events exposes the run's event bus to embedding types.
func (c *Core) Events() *bus.Bus { return c.events }

// SetMetadata implements Adapter.
func (c *Core) SetMetadata(meta records.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta = meta
}

// Metadata returns the result envelope.
func (c *Core) Metadata() records.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// PageURL is the navigation target for this session.
func (c *Core) PageURL() string { return c.Metadata().PageURL }

// OnComplete installs the session's completion signal. Invoked at most once.
func (c *Core) OnComplete(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = fn
}

// ResultFound reports whether the terminal decision has been made.
func (c *Core) ResultFound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultFound
}

// AddResult appends an extracted record, preserving arrival order.
func (c *Core) AddResult(r records.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

// Results returns a copy of the accumulated records.
func (c *Core) Results() []records.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]records.Record, len(c.results))
	copy(out, c.results)
	return out
}

// AddCandidate records a near-miss URL once. Returns true the first time the
// URL is seen.
func (c *Core) AddCandidate(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range c.candidates {
		if u == url {
			return false
		}
	}
	c.candidates = append(c.candidates, url)
	return true
}

// Candidates returns a copy of the near-miss URLs observed so far.
func (c *Core) Candidates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.candidates))
	copy(out, c.candidates)
	return out
}

// SetEligibleProducts records the finance products the calculator declared
// available. The set only grows; a second capabilities response cannot shrink
// it.
func (c *Core) SetEligibleProducts(types []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range types {
		c.eligible[t] = true
	}
}

// MarkProcessed notes that a product type has been extracted. Returns false
// when the type was already seen, so duplicate quote responses are skipped.
func (c *Core) MarkProcessed(productType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.processed[productType] {
		return false
	}
	c.processed[productType] = true
	return true
}

// AllProductsSeen reports whether every eligible product type has been
// processed. Vacuously false while the eligible set is still empty; an
// adapter that never learns its capabilities relies on the grace window.
func (c *Core) AllProductsSeen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allProductsSeenLocked()
}

func (c *Core) allProductsSeenLocked() bool {
	if len(c.eligible) == 0 {
		return false
	}
	for t := range c.eligible {
		if !c.processed[t] {
			return false
		}
	}
	return true
}

// Complete makes the terminal decision with the accumulated results. Safe to
// call from response handlers and timers concurrently; every call after the
// first is a logged no-op.
func (c *Core) Complete() {
	c.finish(nil)
}

// CompleteWith makes the terminal decision with an explicit payload (used for
// redirect placeholders where the payload is a plain string).
func (c *Core) CompleteWith(payload interface{}) {
	c.finish(payload)
}

// finish performs the exactly-once completion: check-and-set under the mutex,
// side effects outside it.
func (c *Core) finish(payload interface{}) {
	c.mu.Lock()
	if c.resultFound {
		c.mu.Unlock()
		c.logger.Info("Result already handled, ignoring duplicate completion",
			zap.String("url", c.meta.PageURL))
		return
	}
	c.resultFound = true
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	meta := c.meta
	signal := c.onComplete
	if payload == nil {
		if len(c.results) > 0 {
			results := make([]records.Record, len(c.results))
			copy(results, c.results)
			payload = results
		} else {
			payload = records.NewNotFound(c.candidates, "")
		}
	}
	c.mu.Unlock()

	c.events.Save(c.name, payload, meta)
	if signal != nil {
		signal()
	}
}

// FirstMainDocument returns true exactly once, for the first sighting of the
// navigation response. Adapters sniff the page body for their widget there.
func (c *Core) FirstMainDocument() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mainDocSeen {
		return false
	}
	c.mainDocSeen = true
	return true
}

// PageLoaded arms the grace window. When it expires before a terminal
// decision, the adapter finalizes with partial results, or a not-found
// placeholder when nothing was extracted.
func (c *Core) PageLoaded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resultFound || c.opts.GraceWindow < 0 || c.graceTimer != nil {
		return
	}
	c.graceTimer = time.AfterFunc(c.opts.GraceWindow, func() {
		c.logger.Info("Grace window elapsed, finalizing",
			zap.String("url", c.Metadata().PageURL))
		c.finish(nil)
	})
}

// ShallBlock implements the default blocking policy: once a result is found
// and BlockAfterFind is set, everything except the page itself is aborted.
func (c *Core) ShallBlock(req Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.resultFound || !c.opts.BlockAfterFind {
		return false
	}
	return req.URL != c.meta.PageURL
}

// NotifyBlocked implements Adapter as a no-op.
func (c *Core) NotifyBlocked(Request, string) {}

// ProcessRequest implements Adapter as a no-op.
func (c *Core) ProcessRequest(Request) {}

// ProcessResponse implements Adapter as a no-op.
func (c *Core) ProcessResponse(Response) {}

// ShallFinishLoading implements the default settled check.
func (c *Core) ShallFinishLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultFound && c.opts.StopAfterFind
}

// Cleanup cancels the grace timer so it cannot fire after teardown.
func (c *Core) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
}
