package state

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gatorguard/coordinator/internal/gateway"
	"github.com/gatorguard/coordinator/internal/types"
)

// RecordAndClassify is the enforcement pipeline: filter, record, classify,
// then instruct whichever tab is active when the verdict lands. It is
// fire-and-forget; the tab monitor expects no response.
func (c *Coordinator) RecordAndClassify(ctx context.Context, url, title string) {
	// Filtered URLs terminate with no side effects at all: no cache
	// write, no enforcement instruction. This path fails open.
	if !c.filter.ShouldProcess(url) {
		c.metrics.Classifications.WithLabelValues("filtered").Inc()
		return
	}

	if title == "" {
		title = url
	}

	c.mu.Lock()
	c.recordLinkLocked(url, title)
	c.persistLocked()
	mode := c.snap.CurrentMode
	c.mu.Unlock()

	allowed, err := c.gw.Classify(ctx, gateway.ClassifyRequest{
		URL:       url,
		Title:     title,
		Timestamp: time.Now().UTC(),
		Mode:      mode,
	})
	if err != nil {
		// Classification failure fails closed: an unreachable
		// classifier must not silently grant access.
		c.metrics.GatewayFailures.WithLabelValues("classify").Inc()
		c.log.Warn("classification failed, treating as disallowed",
			zap.String("url", url), zap.Error(err))
		allowed = false
	}

	// Enforcement targets whichever tab is active now, not the tab that
	// produced the event. Rapid tab switches make the two differ.
	tab, ok := c.tabs.ActiveTab()
	if !ok {
		return
	}

	if allowed {
		c.metrics.Classifications.WithLabelValues("allowed").Inc()
		c.push.Unblur(tab)
		return
	}

	c.metrics.Classifications.WithLabelValues("blocked").Inc()
	c.push.Blur(tab, mode)
	c.push.Notify(types.Notification{
		Title:   mode.Title() + " Focus Mode",
		Message: "This website isn't ideal for " + string(mode) + " mode. Consider switching to something more productive.",
	})
}

// recordLinkLocked applies move-to-front insertion: any prior entry with
// the same URL is evicted before the new record is prepended, then the
// list is truncated to the bound. Callers hold mu.
func (c *Coordinator) recordLinkLocked(url, title string) {
	links := make([]types.LinkRecord, 0, len(c.snap.RecentLinks)+1)
	links = append(links, types.LinkRecord{URL: url, Title: title})
	for _, l := range c.snap.RecentLinks {
		if l.URL != url {
			links = append(links, l)
		}
	}
	if len(links) > types.MaxRecentLinks {
		links = links[:types.MaxRecentLinks]
	}
	c.snap.RecentLinks = links
}

// reclassifyActiveTab re-runs enforcement for the active tab after a mode
// change.
func (c *Coordinator) reclassifyActiveTab(ctx context.Context) {
	tab, ok := c.tabs.ActiveTab()
	if !ok {
		return
	}
	c.RecordAndClassify(ctx, tab.URL, tab.Title)
}
