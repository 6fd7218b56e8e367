// internal/adapter/codeweavers/codeweavers.go
// Description: Adapter for the Codeweavers finance calculator. The widget
// answers a single POST to JsonFinance/Calculate carrying the vehicle and
// every finance product at once, so this adapter completes eagerly on the
// first successful extraction.

package codeweavers

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/adapter"
	"github.com/quotescope/quotescope/internal/extract"
)

// PluginName is the registry key for this adapter.
const PluginName = "codeweavers"

var (
	financeRe = regexp.MustCompile(`(?i)https://services\.codeweavers\.net/public/(v\d+/)?JsonFinance/Calculate`)

	candidateRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)codeweavers\.net`),
		regexp.MustCompile(`(?i)codeweavers\.co\.uk`),
		regexp.MustCompile(`(?i)services\.codeweavers`),
		regexp.MustCompile(`(?i)api\.codeweavers`),
	}
)

// Calculator watches Codeweavers calculator traffic.
type Calculator struct {
	*adapter.Core
	parser extract.CodeweaversV3
}

// New builds the adapter for one session.
func New(deps adapter.Deps) adapter.Adapter {
	return &Calculator{
		Core: adapter.NewCore(PluginName, deps.Events, deps.Logger, adapter.Options{
			BlockAfterFind: true,
			StopAfterFind:  true,
			GraceWindow:    deps.GraceWindow,
		}),
	}
}

// isFinanceEndpoint is the exact classification driving extraction.
func (c *Calculator) isFinanceEndpoint(resp adapter.Response) bool {
	return resp.Method == "POST" && financeRe.MatchString(resp.URL)
}

// isCandidateEndpoint is the loose classification driving diagnostics.
func (c *Calculator) isCandidateEndpoint(resp adapter.Response) bool {
	for _, re := range candidateRes {
		if re.MatchString(resp.URL) {
			return true
		}
	}
	return false
}

// ProcessResponse implements adapter.Adapter.
func (c *Calculator) ProcessResponse(resp adapter.Response) {
	switch {
	case c.isFinanceEndpoint(resp):
		c.processCalculate(resp)
	case c.isCandidateEndpoint(resp):
		if c.AddCandidate(resp.URL) {
			c.Events().Info(c.Name(), "found potential candidate: "+resp.URL, c.Metadata())
		}
	case resp.MainDocument:
		adapter.ObserveMainDocument(c.Core, resp, c.parser.IsClient)
	}
}

func (c *Calculator) processCalculate(resp adapter.Response) {
	if c.ResultFound() {
		return
	}
	if !strings.Contains(strings.ToLower(resp.MimeType), "json") {
		return
	}

	results := c.parser.Process(resp.Body)
	if len(results) == 0 {
		c.Logger().Warn("Calculate response yielded no records",
			zap.String("url", resp.URL))
		return
	}

	for _, r := range results {
		c.AddResult(r)
	}
	c.Complete()
}
