// internal/blocker/blocker_test.go
package blocker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Disabled(t *testing.T) {
	t.Parallel()
	p := Compile(Config{
		Enabled:      false,
		BlockDomains: []string{"doubleclick.net"},
	})

	blocked, _ := p.Evaluate("https://ad.doubleclick.net/pixel", "Image")
	assert.False(t, blocked, "a disabled policy never blocks")
}

func TestPolicy_Evaluate(t *testing.T) {
	t.Parallel()
	p := Compile(Config{
		Enabled:       true,
		BlockDomains:  []string{"doubleclick.net", "hotjar.com"},
		BlockTypes:    []string{"Image", "Font"},
		BlockPatterns: []string{`/tracking/`},
	})

	t.Run("blocks configured resource types", func(t *testing.T) {
		blocked, reason := p.Evaluate("https://cdn.example.com/logo.png", "Image")
		assert.True(t, blocked)
		assert.Contains(t, reason, "resource type")
	})

	t.Run("resource type match is case insensitive", func(t *testing.T) {
		blocked, _ := p.Evaluate("https://cdn.example.com/face.woff2", "font")
		assert.True(t, blocked)
	})

	t.Run("blocks exact domain", func(t *testing.T) {
		blocked, reason := p.Evaluate("https://doubleclick.net/pixel", "Script")
		assert.True(t, blocked)
		assert.Contains(t, reason, "domain")
	})

	t.Run("blocks subdomains", func(t *testing.T) {
		blocked, _ := p.Evaluate("https://static.hotjar.com/c.js", "Script")
		assert.True(t, blocked)
	})

	t.Run("does not block suffix lookalikes", func(t *testing.T) {
		blocked, _ := p.Evaluate("https://nothotjar.com/c.js", "Script")
		assert.False(t, blocked)
	})

	t.Run("blocks url patterns", func(t *testing.T) {
		blocked, reason := p.Evaluate("https://site.example/tracking/beacon", "XHR")
		assert.True(t, blocked)
		assert.Contains(t, reason, "pattern")
	})

	t.Run("allows everything else", func(t *testing.T) {
		blocked, reason := p.Evaluate("https://services.codeweavers.net/public/v3/JsonFinance/Calculate", "XHR")
		assert.False(t, blocked)
		assert.Empty(t, reason)
	})
}

func TestPolicy_ExcludesWinOverEveryBlockRule(t *testing.T) {
	t.Parallel()
	p := Compile(Config{
		Enabled:         true,
		BlockDomains:    []string{"calculator.example"},
		BlockTypes:      []string{"XHR"},
		BlockPatterns:   []string{`.*`},
		ExcludePatterns: []string{`/api/v1/quote/`},
	})

	blocked, _ := p.Evaluate("https://calculator.example/api/v1/quote/pcp", "XHR")
	assert.False(t, blocked, "exclude patterns take precedence over every block rule")

	blocked, _ = p.Evaluate("https://calculator.example/banner.js", "XHR")
	assert.True(t, blocked, "non-excluded requests still follow block rules")
}

func TestCompile_InvalidPatternFallsBackToLiteral(t *testing.T) {
	t.Parallel()
	// "[invalid" is not valid regexp syntax; it must still match literally.
	p := Compile(Config{
		Enabled:       true,
		BlockPatterns: []string{`[invalid`},
	})

	blocked, _ := p.Evaluate("https://site.example/path/[invalid/x", "XHR")
	assert.True(t, blocked, "invalid regexp source should degrade to a literal match")

	blocked, _ = p.Evaluate("https://site.example/path/valid/x", "XHR")
	assert.False(t, blocked)
}

func TestPolicy_Snapshot(t *testing.T) {
	t.Parallel()
	p := Compile(Config{
		Enabled:      true,
		BlockDomains: []string{"doubleclick.net"},
		BlockTypes:   []string{"Image"},
	})

	p.Evaluate("https://doubleclick.net/pixel", "Script")
	p.Evaluate("https://cdn.example.com/a.png", "Image")
	p.Evaluate("https://ok.example.com/app.js", "Script")

	s := p.Snapshot()
	require.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Blocked)
	assert.Equal(t, 1, s.BlocksByDomain["doubleclick.net"])
	assert.Equal(t, 1, s.BlocksByType["Image"])

	// The snapshot is a copy; mutating it must not affect the policy.
	s.BlocksByDomain["doubleclick.net"] = 99
	assert.Equal(t, 1, p.Snapshot().BlocksByDomain["doubleclick.net"])
}
