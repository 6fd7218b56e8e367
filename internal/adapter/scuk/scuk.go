// internal/adapter/scuk/scuk.go
// Description: Adapter for the SCUK calculator. The widget initializes with a
// POST to /api/v1/init (vehicle details travel in the request body, the
// lender skin and eligible product set come back in the response) and then
// fires one POST per product to /api/v1/quote/{type}. Completion is eager
// once every eligible product has been extracted, with the grace window as a
// fallback for products that never arrive.

package scuk

import (
	"regexp"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/adapter"
	"github.com/quotescope/quotescope/internal/extract"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// PluginName is the registry key for this adapter.
const PluginName = "scuk"

var (
	quoteRe     = regexp.MustCompile(`(?i)/api/v1/quote/(\w+)`)
	candidateRe = regexp.MustCompile(`(?i)scukcalculator`)
)

// Calculator watches SCUK calculator traffic.
type Calculator struct {
	*adapter.Core

	mu            sync.Mutex
	initBody      string
	initProcessed bool
	parser        extract.ScukV1
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

func isInitURL(url string) bool {
	return strings.Contains(url, "/api/v1/init")
}

// ProcessRequest captures the init POST body during the request phase; the
// vehicle details only exist there. CORS preflights are skipped.
func (c *Calculator) ProcessRequest(req adapter.Request) {
	if !isInitURL(req.URL) || req.Method == "OPTIONS" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initBody == "" && req.PostData != "" {
		c.initBody = req.PostData
		c.Logger().Debug("Captured init request body", zap.String("url", req.URL))
	}
}

// ProcessResponse implements adapter.Adapter.
func (c *Calculator) ProcessResponse(resp adapter.Response) {
	switch {
	case isInitURL(resp.URL):
		if resp.Method == "OPTIONS" {
			return
		}
		c.processInit(resp)
	case c.isFinanceEndpoint(resp):
		c.processQuote(resp)
	case candidateRe.MatchString(resp.URL):
		if c.AddCandidate(resp.URL) {
			c.Events().Info(c.Name(), "found potential candidate: "+resp.URL, c.Metadata())
		}
	case resp.MainDocument:
		adapter.ObserveMainDocument(c.Core, resp, c.parser.IsClient)
	}
}

// isFinanceEndpoint matches the quote POSTs exactly.
func (c *Calculator) isFinanceEndpoint(resp adapter.Response) bool {
	return resp.Method == "POST" && quoteRe.MatchString(resp.URL)
}

// processInit extracts the vehicle and learns which products to expect.
func (c *Calculator) processInit(resp adapter.Response) {
	c.mu.Lock()
	if c.initProcessed {
		c.mu.Unlock()
		return
	}
	c.initProcessed = true
	initBody := c.initBody
	c.mu.Unlock()

	var envelope struct {
		Data jsoniter.RawMessage `json:"data"`
	}
	if err := jsonAPI.Unmarshal(resp.Body, &envelope); err != nil {
		c.Logger().Error("Failed to decode init response",
			zap.String("url", resp.URL), zap.Error(err))
		return
	}

	res := extract.ScukV1{}.Init([]byte(initBody), envelope.Data)
	if res.Vehicle != nil {
		c.AddResult(*res.Vehicle)
	}

	c.mu.Lock()
	c.parser.Lender = res.Lender
	c.mu.Unlock()

	c.SetEligibleProducts(res.EligibleProducts)
	c.Logger().Info("Init processed",
		zap.String("lender", res.Lender),
		zap.Strings("eligible_products", res.EligibleProducts))
}

// processQuote extracts one finance product and completes once every
// eligible product has been seen.
func (c *Calculator) processQuote(resp adapter.Response) {
	m := quoteRe.FindStringSubmatch(resp.URL)
	if m == nil {
		return
	}
	productType := strings.ToLower(m[1])

	c.mu.Lock()
	parser := c.parser
	c.mu.Unlock()

	quote := parser.Process(resp.Body)
	if quote == nil {
		c.Logger().Warn("Quote response yielded no record",
			zap.String("url", resp.URL), zap.String("product_type", productType))
		return
	}
	if !c.MarkProcessed(productType) {
		return
	}
	c.AddResult(*quote)

	if c.AllProductsSeen() {
		c.Complete()
	}
}
