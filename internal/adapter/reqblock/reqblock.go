// internal/adapter/reqblock/reqblock.go
// Description: Adapter wrapping the compiled request-blocking policy. It only
// ever answers ShallBlock; it never produces results. Blocked-request logging
// is rate limited so a noisy page cannot flood the console.

package reqblock

import (
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quotescope/quotescope/internal/adapter"
	"github.com/quotescope/quotescope/internal/blocker"
)

// PluginName is the registry key for this adapter.
const PluginName = "request-blocker"

// Blocker enforces the session's block policy.
type Blocker struct {
	*adapter.Core
	policy *blocker.Policy
	logLim *rate.Limiter
}

// New builds the adapter for one session.
func New(deps adapter.Deps) adapter.Adapter {
	return &Blocker{
		Core: adapter.NewCore(PluginName, deps.Events, deps.Logger, adapter.Options{
			// The blocker never finds results; disable the grace window so it
			// cannot emit a spurious not-found placeholder.
			GraceWindow: -1,
		}),
		policy: deps.Blocker,
		// 10 log lines per second, small burst. Decisions are never limited.
		logLim: rate.NewLimiter(10, 20),
	}
}

// ShallBlock implements adapter.Adapter using the compiled policy.
func (b *Blocker) ShallBlock(req adapter.Request) bool {
	if b.policy == nil {
		return false
	}
	blocked, reason := b.policy.Evaluate(req.URL, req.ResourceType)
	if blocked && b.policy.LogBlocked() && b.logLim.Allow() {
		b.Logger().Info("Blocked request",
			zap.String("url", req.URL),
			zap.String("reason", reason))
	}
	return blocked
}

// NotifyBlocked counts blocks decided by other adapters so the end-of-run
// statistics stay complete.
func (b *Blocker) NotifyBlocked(req adapter.Request, blockedBy string) {
	if b.policy != nil && b.policy.LogBlocked() && b.logLim.Allow() {
		b.Logger().Debug("Request blocked by another adapter",
			zap.String("url", req.URL),
			zap.String("blocked_by", blockedBy))
	}
}

// Cleanup reports the final statistics.
func (b *Blocker) Cleanup() {
	if b.policy != nil {
		s := b.policy.Snapshot()
		b.Logger().Info("Request blocker statistics",
			zap.Int("total_requests", s.Total),
			zap.Int("blocked_requests", s.Blocked))
	}
	b.Core.Cleanup()
}
