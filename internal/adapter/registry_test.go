// internal/adapter/registry_test.go
package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/bus"
)

func registryDeps() Deps {
	return Deps{
		Logger: zap.NewNop(),
		Events: bus.New(zap.NewNop()),
	}
}

// stubAdapter completes Core into a full Adapter for registry tests.
type stubAdapter struct{ *Core }

func (stubAdapter) ProcessResponse(Response) {}

func stubFactory(name string) Factory {
	return func(deps Deps) Adapter {
		return &stubAdapter{NewCore(name, deps.Events, deps.Logger, Options{})}
	}
}

func TestRegistry_BuildPreservesRequestedOrder(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register("alpha", stubFactory("alpha"))
	r.Register("beta", stubFactory("beta"))
	r.Register("gamma", stubFactory("gamma"))

	adapters, err := r.Build([]string{"gamma", "alpha"}, registryDeps())
	require.NoError(t, err)
	require.Len(t, adapters, 2)
	assert.Equal(t, "gamma", adapters[0].Name())
	assert.Equal(t, "alpha", adapters[1].Name())
}

func TestRegistry_BuildUnknownName(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register("alpha", stubFactory("alpha"))

	_, err := r.Build([]string{"alpha", "missing"}, registryDeps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	assert.Contains(t, err.Error(), "alpha", "the error should list what is registered")
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register("zeta", stubFactory("zeta"))
	r.Register("alpha", stubFactory("alpha"))

	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
}

func TestRegistry_BuildFreshInstances(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register("alpha", stubFactory("alpha"))

	a1, err := r.Build([]string{"alpha"}, registryDeps())
	require.NoError(t, err)
	a2, err := r.Build([]string{"alpha"}, registryDeps())
	require.NoError(t, err)

	assert.NotSame(t, a1[0], a2[0], "each Build must produce a fresh instance")
}
