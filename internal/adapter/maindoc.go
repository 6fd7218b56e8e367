// internal/adapter/maindoc.go

package adapter

import (
	"fmt"
)

// ObserveMainDocument handles the navigation response on behalf of finance
// adapters: a redirected page becomes a placeholder result immediately (the
// listing moved or sold, no calculator will ever fire), and the first sight
// of the page body is sniffed for the adapter's widget as a diagnostic.
func ObserveMainDocument(c *Core, resp Response, isClient func(string) bool) {
	if !resp.MainDocument || !c.FirstMainDocument() {
		return
	}

	if resp.Status >= 300 && resp.Status < 400 {
		msg := fmt.Sprintf("Redirected !!! main document answered %d", resp.Status)
		c.Events().Error(c.Name(), msg, c.Metadata())
		c.CompleteWith(msg)
		return
	}

	if isClient != nil && len(resp.Body) > 0 && isClient(string(resp.Body)) {
		c.Events().Info(c.Name(), "calculator client detected on page", c.Metadata())
	}
}
