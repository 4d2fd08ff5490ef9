// Package urlfilter decides which URLs are candidates for classification.
// Both the tab monitor and the coordinator apply it independently: the
// monitor as a fast path, the coordinator because it is also reachable
// from other trigger paths.
package urlfilter

import "net/url"

// Filter screens out URLs that must never be classified or blurred.
// Exemption matches on host:port alone, so a configured origin covers
// both its http and https forms.
type Filter struct {
	exempt map[string]struct{} // host[:port]
}

// New builds a filter from exempt origin strings. Malformed entries are
// ignored.
func New(exemptOrigins []string) *Filter {
	f := &Filter{exempt: make(map[string]struct{}, len(exemptOrigins))}
	for _, o := range exemptOrigins {
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		f.exempt[u.Host] = struct{}{}
	}
	return f
}

// ShouldProcess reports whether the URL is a classification candidate.
// Empty URLs, unparseable URLs, non-web schemes (chrome://, about:,
// extension pages), the blank page, and exempt origins all fail open:
// they terminate the pipeline with no enforcement at all.
func (f *Filter) ShouldProcess(raw string) bool {
	if raw == "" || raw == "about:blank" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" {
		return false
	}
	_, exempt := f.exempt[u.Host]
	return !exempt
}
