package util

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// PerfEnabled turns timers on; it is set by the --perf flag
var PerfEnabled bool

// PerfMetric aggregates every measurement recorded under one name
type PerfMetric struct {
	Name      string
	Count     int64
	TotalTime time.Duration
	Last      time.Duration
}

// Avg is the mean duration per measurement
func (m PerfMetric) Avg() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalTime / time.Duration(m.Count)
}

// PerfTracker collects timings for the whole run
type PerfTracker struct {
	mu      sync.Mutex
	metrics map[string]*PerfMetric
	started time.Time
}

var (
	globalPerf     *PerfTracker
	globalPerfOnce sync.Once
)

// GetPerfTracker returns the global performance tracker
func GetPerfTracker() *PerfTracker {
	globalPerfOnce.Do(func() {
		globalPerf = &PerfTracker{metrics: make(map[string]*PerfMetric), started: time.Now()}
	})
	return globalPerf
}

// Timer represents an active timing operation
type Timer struct {
	name    string
	start   time.Time
	tracker *PerfTracker
}

// StartTimer starts a timer for name. It returns nil when profiling is
// off; a nil Timer is safe to stop.
func StartTimer(name string) *Timer {
	if !PerfEnabled {
		return nil
	}
	return &Timer{name: name, start: time.Now(), tracker: GetPerfTracker()}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop() time.Duration {
	if t == nil {
		return 0
	}
	d := time.Since(t.start)
	t.tracker.Record(t.name, d)
	return d
}

// StopAndLog stops the timer and logs the duration at debug level
func (t *Timer) StopAndLog() time.Duration {
	if t == nil {
		return 0
	}
	d := t.Stop()
	Debugf("[PERF] %s took %v", t.name, d)
	return d
}

// Record adds one measurement under name
func (pt *PerfTracker) Record(name string, d time.Duration) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	m, ok := pt.metrics[name]
	if !ok {
		m = &PerfMetric{Name: name}
		pt.metrics[name] = m
	}
	m.Count++
	m.TotalTime += d
	m.Last = d
}

// Metrics returns copies of the metrics, slowest total first
func (pt *PerfTracker) Metrics() []PerfMetric {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	out := make([]PerfMetric, 0, len(pt.metrics))
	for _, m := range pt.metrics {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTime != out[j].TotalTime {
			return out[i].TotalTime > out[j].TotalTime
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Reset drops every metric
func (pt *PerfTracker) Reset() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.metrics = make(map[string]*PerfMetric)
	pt.started = time.Now()
}

var (
	perfTitleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	perfMetricStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#95E1D3"))
	perfSlowStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	perfFastStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#7BED9F"))
	perfValueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFE66D"))
	perfSeparatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#636E72"))
)

// WriteReport prints the timing table to w. Nothing is written when no
// metric was recorded.
func (pt *PerfTracker) WriteReport(w io.Writer) {
	metrics := pt.Metrics()
	if len(metrics) == 0 {
		return
	}

	var b strings.Builder
	b.WriteString(perfTitleStyle.Render("⚡ Performance"))
	fmt.Fprintf(&b, " %s\n", perfSeparatorStyle.Render("(uptime "+time.Since(pt.started).Round(time.Millisecond).String()+")"))
	fmt.Fprintf(&b, "  %-32s %8s %6s %10s\n", "operation", "total", "count", "avg")
	for _, m := range metrics {
		name := m.Name
		if len(name) > 32 {
			name = name[:29] + "..."
		}
		total := m.TotalTime.Round(time.Millisecond).String()
		switch {
		case m.TotalTime > 5*time.Second:
			total = perfSlowStyle.Render(total)
		case m.TotalTime < 500*time.Millisecond:
			total = perfFastStyle.Render(total)
		default:
			total = perfValueStyle.Render(total)
		}
		fmt.Fprintf(&b, "  %-32s %8s %6d %10s\n", perfMetricStyle.Render(name), total, m.Count,
			m.Avg().Round(time.Millisecond))
	}
	_, _ = io.WriteString(w, b.String())
}
