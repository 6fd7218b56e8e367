// internal/blocker/blocker.go
// Description: Compiled request-blocking policy. Loaded once per session from
// configuration and immutable afterwards; evaluated for every outgoing
// request. Exclude patterns always win over block rules.

package blocker

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// Config is the raw policy as it appears in config.yaml. Pattern entries are
// regular expression sources; an entry that fails to compile is retried as an
// escaped literal rather than dropped.
type Config struct {
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled"`
	BlockDomains    []string `mapstructure:"block_domains" yaml:"block_domains"`
	BlockTypes      []string `mapstructure:"block_types" yaml:"block_types"`
	BlockPatterns   []string `mapstructure:"block_patterns" yaml:"block_patterns"`
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
	LogBlocked      bool     `mapstructure:"log_blocked" yaml:"log_blocked"`
}

// Policy is the compiled, immutable form of Config.
type Policy struct {
	enabled      bool
	logBlocked   bool
	blockDomains []string
	blockTypes   map[string]bool
	blockRes     []*regexp.Regexp
	excludeRes   []*regexp.Regexp

	mu    sync.Mutex
	stats Stats
}

// Stats counts policy decisions for end-of-run reporting.
type Stats struct {
	Total          int
	Blocked        int
	BlocksByDomain map[string]int
	BlocksByType   map[string]int
}

// Compile builds a Policy from its configuration.
func Compile(cfg Config) *Policy {
	p := &Policy{
		enabled:      cfg.Enabled,
		logBlocked:   cfg.LogBlocked,
		blockDomains: append([]string(nil), cfg.BlockDomains...),
		blockTypes:   make(map[string]bool, len(cfg.BlockTypes)),
		stats: Stats{
			BlocksByDomain: make(map[string]int),
			BlocksByType:   make(map[string]int),
		},
	}
	for _, t := range cfg.BlockTypes {
		p.blockTypes[strings.ToLower(t)] = true
	}
	p.blockRes = compilePatterns(cfg.BlockPatterns)
	p.excludeRes = compilePatterns(cfg.ExcludePatterns)
	return p
}

// compilePatterns compiles each source case-insensitively, falling back to a
// literal match when the source is not valid regexp syntax.
func compilePatterns(sources []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(sources))
	for _, src := range sources {
		re, err := regexp.Compile("(?i)" + src)
		if err != nil {
			re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(src))
		}
		res = append(res, re)
	}
	return res
}

// LogBlocked reports whether blocked requests should be logged.
func (p *Policy) LogBlocked() bool { return p.logBlocked }

// Evaluate decides whether a request should be blocked. The returned reason
// is empty when the request is allowed.
func (p *Policy) Evaluate(rawURL, resourceType string) (blocked bool, reason string) {
	if !p.enabled {
		return false, ""
	}

	p.mu.Lock()
	p.stats.Total++
	p.mu.Unlock()

	// Exclusions take precedence over every block rule.
	for _, re := range p.excludeRes {
		if re.MatchString(rawURL) {
			return false, ""
		}
	}

	if p.blockTypes[strings.ToLower(resourceType)] {
		p.recordBlock("", resourceType)
		return true, "resource type: " + resourceType
	}

	if u, err := url.Parse(rawURL); err == nil {
		host := u.Hostname()
		for _, d := range p.blockDomains {
			if host == d || strings.HasSuffix(host, "."+d) {
				p.recordBlock(host, "")
				return true, "domain: " + host
			}
		}
	}

	for _, re := range p.blockRes {
		if re.MatchString(rawURL) {
			p.recordBlock("", "")
			return true, "pattern: " + re.String()
		}
	}

	return false, ""
}

func (p *Policy) recordBlock(domain, resourceType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Blocked++
	if domain != "" {
		p.stats.BlocksByDomain[domain]++
	}
	if resourceType != "" {
		p.stats.BlocksByType[resourceType]++
	}
}

// Snapshot returns a copy of the accumulated statistics.
func (p *Policy) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Total:          p.stats.Total,
		Blocked:        p.stats.Blocked,
		BlocksByDomain: make(map[string]int, len(p.stats.BlocksByDomain)),
		BlocksByType:   make(map[string]int, len(p.stats.BlocksByType)),
	}
	for k, v := range p.stats.BlocksByDomain {
		s.BlocksByDomain[k] = v
	}
	for k, v := range p.stats.BlocksByType {
		s.BlocksByType[k] = v
	}
	return s
}
