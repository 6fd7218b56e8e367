// internal/adapter/maindoc_test.go
package adapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotescope/quotescope/internal/bus"
	"github.com/quotescope/quotescope/internal/records"
)

func TestObserveMainDocument_RedirectBecomesPlaceholder(t *testing.T) {
	t.Parallel()
	f := newCoreFixture(t)
	c := newTestCore(f, Options{})

	var errorMsgs []string
	f.events.On(bus.TopicError, func(ev bus.Event) {
		msg, _ := ev.Payload.(string)
		errorMsgs = append(errorMsgs, msg)
	})

	ObserveMainDocument(c, Response{
		URL:          f.meta.PageURL,
		Status:       301,
		MainDocument: true,
	}, nil)

	require.Len(t, errorMsgs, 1)
	assert.Contains(t, errorMsgs[0], "301")

	saves := f.savedEvents()
	require.Len(t, saves, 1)
	payload, ok := saves[0].Payload.(string)
	require.True(t, ok, "redirect placeholder payload is the message string")
	assert.Contains(t, payload, "Redirected")
	assert.True(t, records.IsPlaceholder(payload))
	assert.True(t, c.ResultFound())
}

func TestObserveMainDocument_SniffsClientOnce(t *testing.T) {
	t.Parallel()
	f := newCoreFixture(t)
	c := newTestCore(f, Options{})

	infos := 0
	f.events.On(bus.TopicInfo, func(bus.Event) { infos++ })

	isClient := func(content string) bool { return strings.Contains(content, "widget-marker") }
	resp := Response{
		URL:          f.meta.PageURL,
		Status:       200,
		Body:         []byte(`<html>widget-marker</html>`),
		MainDocument: true,
	}

	ObserveMainDocument(c, resp, isClient)
	ObserveMainDocument(c, resp, isClient)

	assert.Equal(t, 1, infos, "only the first main document sighting is sniffed")
	assert.False(t, c.ResultFound(), "a healthy page is not a terminal decision")
}

func TestObserveMainDocument_IgnoresSubresources(t *testing.T) {
	t.Parallel()
	f := newCoreFixture(t)
	c := newTestCore(f, Options{})

	ObserveMainDocument(c, Response{URL: "https://cdn.example.com/app.js", Status: 301}, nil)

	assert.Empty(t, f.savedEvents())
	assert.True(t, c.FirstMainDocument(), "subresources must not consume the first-sighting guard")
}
