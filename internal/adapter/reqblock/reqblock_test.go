// internal/adapter/reqblock/reqblock_test.go
package reqblock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/adapter"
	"github.com/quotescope/quotescope/internal/blocker"
	"github.com/quotescope/quotescope/internal/bus"
)

func newBlocker(cfg blocker.Config) *Blocker {
	a := New(adapter.Deps{
		Logger:  zap.NewNop(),
		Events:  bus.New(zap.NewNop()),
		Blocker: blocker.Compile(cfg),
	})
	return a.(*Blocker)
}

func TestBlocker_ShallBlockFollowsPolicy(t *testing.T) {
	t.Parallel()
	b := newBlocker(blocker.Config{
		Enabled:      true,
		BlockDomains: []string{"doubleclick.net"},
		BlockTypes:   []string{"Image"},
	})

	assert.True(t, b.ShallBlock(adapter.Request{URL: "https://ads.doubleclick.net/p", ResourceType: "Script"}))
	assert.True(t, b.ShallBlock(adapter.Request{URL: "https://cdn.example.com/x.png", ResourceType: "Image"}))
	assert.False(t, b.ShallBlock(adapter.Request{URL: "https://dealer.example/page", ResourceType: "Document"}))
}

func TestBlocker_NilPolicyAllowsEverything(t *testing.T) {
	t.Parallel()
	a := New(adapter.Deps{Logger: zap.NewNop(), Events: bus.New(zap.NewNop())})
	assert.False(t, a.ShallBlock(adapter.Request{URL: "https://ads.doubleclick.net/p"}))
}

func TestBlocker_NeverProducesResults(t *testing.T) {
	t.Parallel()
	events := bus.New(zap.NewNop())
	saves := 0
	events.On(bus.TopicSave, func(bus.Event) { saves++ })

	a := New(adapter.Deps{Logger: zap.NewNop(), Events: events})
	a.PageLoaded()
	a.Cleanup()

	assert.Zero(t, saves, "the blocker must never emit placeholders")
	assert.False(t, a.ShallFinishLoading())
}
