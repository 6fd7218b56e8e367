// internal/session/dispatch.go
// Description: CDP event dispatch. Installs the target listener, enables the
// protocol domains, answers fetch interception with the adapter tie-break and
// streams completed response bodies to the adapter set.

package session

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/adapter"
)

// interceptTimeout bounds the continue/fail answer for a paused request. A
// slow answer stalls the page load, so this stays short.
const interceptTimeout = 2 * time.Second

// enableDomains switches on the protocol domains the dispatcher consumes.
// fetch.Enable with no patterns pauses every request at the Request stage.
func (s *Session) enableDomains() error {
	return chromedp.Run(s.tabCtx,
		network.Enable(),
		page.Enable(),
		fetch.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if s.cfg.DisableCache {
				return network.SetCacheDisabled(true).Do(ctx)
			}
			return nil
		}),
	)
}

// listen installs the target listener. It must run before any navigation so
// no early event is missed. Handlers that issue CDP commands run in their own
// goroutine; issuing a command from inside the listener deadlocks the
// event loop.
func (s *Session) listen() {
	chromedp.ListenTarget(s.tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go s.handlePaused(e)
		case *network.EventRequestWillBeSent:
			s.handleRequestWillBeSent(e)
		case *network.EventResponseReceived:
			s.handleResponseReceived(e)
		case *network.EventLoadingFinished:
			s.handleLoadingFinished(e)
		case *network.EventLoadingFailed:
			s.handleLoadingFailed(e)
		case *page.EventLoadEventFired:
			go s.handleLoadEvent()
		}
	})
}

// handlePaused answers one intercepted request. The first adapter (in
// registration order) that wants the request blocked wins; everyone else is
// notified for observation. Any protocol failure falls through to letting the
// request proceed, since a dropped answer would hang the page.
func (s *Session) handlePaused(e *fetch.EventRequestPaused) {
	req := adapter.Request{
		URL:          e.Request.URL,
		Method:       e.Request.Method,
		ResourceType: string(e.ResourceType),
		PostData:     postDataOf(e.Request),
	}

	blockedBy := ""
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if !closing {
		for _, a := range s.adapters {
			if s.shallBlock(a, req) {
				blockedBy = a.Name()
				break
			}
		}
	}

	ectx, cancel := s.executorContext(interceptTimeout)
	defer cancel()

	if blockedBy != "" {
		for _, a := range s.adapters {
			if a.Name() != blockedBy {
				s.notifyBlocked(a, req, blockedBy)
			}
		}
		err := fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ectx)
		if err != nil && !IsIgnorable(err) {
			s.logger.Debug("Failed to abort request",
				zap.String("url", req.URL), zap.Error(err))
		}
		return
	}

	if err := fetch.ContinueRequest(e.RequestID).Do(ectx); err != nil && !IsIgnorable(err) {
		s.logger.Debug("Failed to continue request",
			zap.String("url", req.URL), zap.Error(err))
	}

	if !closing {
		for _, a := range s.adapters {
			s.processRequest(a, req)
		}
	}
}

// handleRequestWillBeSent records the request for later body fetches and
// detects a main-document redirect, which never produces a normal response
// for the original URL.
func (s *Session) handleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	s.lock.Lock()
	s.requests[e.RequestID] = &requestState{
		request:       e.Request,
		resourceType:  e.Type,
		responseReady: make(chan struct{}),
	}
	pageURL := s.pageURL
	s.lock.Unlock()

	if e.RedirectResponse != nil && e.Type == network.ResourceTypeDocument &&
		sameURL(e.RedirectResponse.URL, pageURL) {
		resp := adapter.Response{
			URL:          e.RedirectResponse.URL,
			Method:       e.Request.Method,
			Status:       int(e.RedirectResponse.Status),
			MimeType:     e.RedirectResponse.MimeType,
			MainDocument: true,
		}
		go s.fanOutResponse(resp)
	}
}

func (s *Session) handleResponseReceived(e *network.EventResponseReceived) {
	s.lock.Lock()
	rs, ok := s.requests[e.RequestID]
	if ok {
		rs.response = e.Response
		rs.resourceType = e.Type
	}
	s.lock.Unlock()
}

// handleLoadingFinished is the earliest point GetResponseBody is allowed; the
// protocol rejects the call while the body is still streaming.
func (s *Session) handleLoadingFinished(e *network.EventLoadingFinished) {
	s.lock.RLock()
	rs, ok := s.requests[e.RequestID]
	s.lock.RUnlock()
	if !ok || rs.response == nil {
		return
	}
	rs.markReady()

	resp := s.toResponse(rs)
	if !isTextMime(rs.response.MimeType) {
		go s.fanOutResponse(resp)
		s.dropRequest(e.RequestID)
		return
	}

	s.fetchWG.Add(1)
	go s.fetchBody(e.RequestID, rs, resp)
}

func (s *Session) handleLoadingFailed(e *network.EventLoadingFailed) {
	s.lock.Lock()
	rs, ok := s.requests[e.RequestID]
	delete(s.requests, e.RequestID)
	s.lock.Unlock()
	if ok {
		rs.markReady()
	}
}

// handleLoadEvent fans out the load notification; adapters typically arm
// their grace window here. The settled poll is diagnostic only: completion is
// driven by the adapters' own signals, never by the load event.
func (s *Session) handleLoadEvent() {
	s.logger.Debug("Page load event fired")
	for _, a := range s.adapters {
		s.pageLoaded(a)
	}
	settled := true
	for _, a := range s.adapters {
		if !a.ShallFinishLoading() {
			settled = false
			break
		}
	}
	if settled {
		s.logger.Debug("All adapters report the page settled")
	}
}

// fetchBody pulls one response payload off the wire, bounded by the fetch
// semaphore, then hands the completed response to the adapters.
func (s *Session) fetchBody(id network.RequestID, rs *requestState, resp adapter.Response) {
	defer s.fetchWG.Done()
	defer s.dropRequest(id)

	ctx, cancel := context.WithTimeout(s.tabCtx, s.cfg.BodyFetchTimeout)
	defer cancel()

	if err := s.fetchSem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.fetchSem.Release(1)

	select {
	case <-rs.responseReady:
	case <-ctx.Done():
		return
	}

	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		if !IsIgnorable(err) {
			s.logger.Debug("Failed to fetch response body",
				zap.String("url", resp.URL), zap.Error(err))
		}
		return
	}

	resp.Body = body
	s.fanOutResponse(resp)
}

func (s *Session) toResponse(rs *requestState) adapter.Response {
	s.lock.RLock()
	pageURL := s.pageURL
	s.lock.RUnlock()

	method := ""
	if rs.request != nil {
		method = rs.request.Method
	}
	return adapter.Response{
		URL:      rs.response.URL,
		Method:   method,
		Status:   int(rs.response.Status),
		MimeType: rs.response.MimeType,
		MainDocument: rs.resourceType == network.ResourceTypeDocument &&
			sameURL(rs.response.URL, pageURL),
	}
}

func (s *Session) fanOutResponse(resp adapter.Response) {
	for _, a := range s.adapters {
		s.processResponse(a, resp)
	}
}

func (s *Session) dropRequest(id network.RequestID) {
	s.lock.Lock()
	delete(s.requests, id)
	s.lock.Unlock()
}

// executorContext builds a context that can execute raw CDP commands against
// the page target outside a chromedp.Run.
func (s *Session) executorContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(s.tabCtx, timeout)
	c := chromedp.FromContext(s.tabCtx)
	return cdp.WithExecutor(ctx, c.Target), cancel
}

// Panic isolation: one misbehaving adapter must not take down the dispatch
// loop or starve its peers.

func (s *Session) shallBlock(a adapter.Adapter, req adapter.Request) (blocked bool) {
	defer s.recoverAdapter(a, "ShallBlock")
	return a.ShallBlock(req)
}

func (s *Session) notifyBlocked(a adapter.Adapter, req adapter.Request, by string) {
	defer s.recoverAdapter(a, "NotifyBlocked")
	a.NotifyBlocked(req, by)
}

func (s *Session) processRequest(a adapter.Adapter, req adapter.Request) {
	defer s.recoverAdapter(a, "ProcessRequest")
	a.ProcessRequest(req)
}

func (s *Session) processResponse(a adapter.Adapter, resp adapter.Response) {
	defer s.recoverAdapter(a, "ProcessResponse")
	a.ProcessResponse(resp)
}

func (s *Session) pageLoaded(a adapter.Adapter) {
	defer s.recoverAdapter(a, "PageLoaded")
	a.PageLoaded()
}

func (s *Session) recoverAdapter(a adapter.Adapter, op string) {
	if r := recover(); r != nil {
		s.logger.Error("Adapter panicked",
			zap.String("adapter", a.Name()),
			zap.String("op", op),
			zap.Any("panic", r))
	}
}

// postDataOf reassembles the request body from its post data entries.
func postDataOf(req *network.Request) string {
	if req == nil || !req.HasPostData || len(req.PostDataEntries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, entry := range req.PostDataEntries {
		if entry == nil || entry.Bytes == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			continue
		}
		b.Write(decoded)
	}
	return b.String()
}

// sameURL compares two URLs ignoring a trailing slash, which the browser adds
// to bare origins during navigation.
func sameURL(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

// isTextMime reports whether a MIME type denotes a textual body worth
// streaming to the adapters.
func isTextMime(mimeType string) bool {
	mime := strings.ToLower(mimeType)
	return strings.HasPrefix(mime, "text/") ||
		strings.Contains(mime, "json") ||
		strings.Contains(mime, "javascript") ||
		strings.Contains(mime, "xml") ||
		strings.Contains(mime, "x-www-form-urlencoded")
}
