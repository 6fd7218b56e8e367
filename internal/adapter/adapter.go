// internal/adapter/adapter.go
// Description: The flat adapter contract every site integration implements.
// There is no inheritance chain; shared lifecycle behaviour lives in Core and
// is composed in, so the dispatcher's behaviour per adapter is statically
// known.

package adapter

import (
	"github.com/quotescope/quotescope/internal/records"
)

// Request is the engine-neutral view of an outgoing request handed to
// adapters during interception. PostData is only populated for requests that
// carry a body.
type Request struct {
	URL          string
	Method       string
	ResourceType string
	PostData     string
}

// Response is the engine-neutral view of a completed response. Body is the
// decoded payload; it may be nil when the body could not be fetched before
// teardown.
type Response struct {
	URL      string
	Method   string
	Status   int
	MimeType string
	Body     []byte

	// MainDocument marks the navigation response for the page itself.
	MainDocument bool
}

// Adapter is the capability set the session dispatches to. All methods are
// invoked from the session's event dispatch; implementations must not block
// in ShallBlock (a hung predicate stalls the page load) and must never let a
// parse failure escape ProcessResponse.
type Adapter interface {
	// Name identifies the adapter in logs and saved results.
	Name() string

	// SetMetadata installs the result envelope before the page opens.
	SetMetadata(meta records.Metadata)

	// OnComplete installs the session's completion signal, fired at most once
	// when this adapter makes its terminal decision.
	OnComplete(fn func())

	// ShallBlock decides whether an outgoing request is aborted. The first
	// adapter (in registration order) returning true wins.
	ShallBlock(req Request) bool

	// NotifyBlocked tells the adapter another adapter blocked a request, for
	// observation only.
	NotifyBlocked(req Request, blockedBy string)

	// ProcessRequest observes an outgoing request that was not blocked.
	ProcessRequest(req Request)

	// ProcessResponse classifies and possibly extracts from a response.
	ProcessResponse(resp Response)

	// PageLoaded fires on the page load event; adapters typically arm their
	// grace window here.
	PageLoaded()

	// ShallFinishLoading reports whether this adapter considers the page
	// settled.
	ShallFinishLoading() bool

	// Cleanup releases adapter resources during graceful close. Skipped on a
	// forced teardown.
	Cleanup()
}
