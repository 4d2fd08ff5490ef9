// Package tabs turns raw tab lifecycle events into a deduplicated,
// debounced stream of classification candidates.
package tabs

import (
	"context"
	"sync"
	"time"

	"github.com/gatorguard/coordinator/internal/logging"
	"github.com/gatorguard/coordinator/internal/metrics"
	"github.com/gatorguard/coordinator/internal/types"
	"github.com/gatorguard/coordinator/internal/urlfilter"
)

// Sink consumes candidate tab visits. The monitor expects no response.
type Sink interface {
	RecordAndClassify(ctx context.Context, url, title string)
}

// Monitor tracks tab state from browser bridge events. Activations
// forward immediately; navigation completions wait out a settle delay so
// redirect chains finish before the final URL is classified.
type Monitor struct {
	sink    Sink
	filter  *urlfilter.Filter
	settle  time.Duration
	log     *logging.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	activeID int
	known    map[int]types.TabRef
	pending  map[int]*time.Timer
	closed   bool
}

// New creates a monitor forwarding candidates to sink.
func New(sink Sink, filter *urlfilter.Filter, settle time.Duration, log *logging.Logger, m *metrics.Metrics) *Monitor {
	return &Monitor{
		sink:     sink,
		filter:   filter,
		settle:   settle,
		log:      log,
		metrics:  m,
		activeID: -1,
		known:    make(map[int]types.TabRef),
		pending:  make(map[int]*time.Timer),
	}
}

// OnActivated handles a tab gaining focus: record it as active and
// forward right away.
func (m *Monitor) OnActivated(tab types.TabRef) {
	m.metrics.TabEvents.WithLabelValues("activated").Inc()

	m.mu.Lock()
	m.known[tab.ID] = tab
	m.activeID = tab.ID
	m.mu.Unlock()

	m.forward(tab)
}

// OnUpdated handles a navigation event within a tab. Only the "complete"
// status schedules classification, after the settle delay; a newer update
// for the same tab resets the timer.
func (m *Monitor) OnUpdated(tab types.TabRef, status string) {
	m.metrics.TabEvents.WithLabelValues("updated").Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[tab.ID] = tab

	if status != "complete" || m.closed {
		return
	}

	if timer, ok := m.pending[tab.ID]; ok {
		timer.Stop()
	}
	id := tab.ID
	m.pending[id] = time.AfterFunc(m.settle, func() {
		m.mu.Lock()
		delete(m.pending, id)
		latest, ok := m.known[id]
		// Stop cannot cancel a timer that already fired, so a callback
		// racing Close re-checks before forwarding.
		ok = ok && !m.closed
		m.mu.Unlock()
		if ok {
			m.forward(latest)
		}
	})
}

// ActiveTab returns the last known state of the focused tab.
func (m *Monitor) ActiveTab() (types.TabRef, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tab, ok := m.known[m.activeID]
	return tab, ok
}

// Close stops pending debounce timers.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, timer := range m.pending {
		timer.Stop()
		delete(m.pending, id)
	}
}

// forward hands a candidate to the sink. The filter runs here as a fast
// path; the coordinator applies it again since it has other callers.
func (m *Monitor) forward(tab types.TabRef) {
	if !m.filter.ShouldProcess(tab.URL) {
		return
	}
	go m.sink.RecordAndClassify(context.Background(), tab.URL, tab.Title)
}
