// Package metrics is an in-process collector of counters, gauges and
// histograms for wallet operations. A nil *Collector records nothing.
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Type is the kind of a metric.
type Type string

const (
	Counter   Type = "counter"
	Gauge     Type = "gauge"
	Histogram Type = "histogram"
)

// histogramWindow is the number of samples kept per histogram.
const histogramWindow = 1000

// Metric is the latest observation of one (name, labels) series.
type Metric struct {
	Name      string            `json:"name"`
	Type      Type              `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// HistogramSummary aggregates the kept samples of a histogram.
type HistogramSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
}

// Summary is a point-in-time view of every series.
type Summary struct {
	Counters   map[string]int64            `json:"counters"`
	Gauges     map[string]float64          `json:"gauges"`
	Histograms map[string]HistogramSummary `json:"histograms"`
}

// Collector is safe for concurrent use.
type Collector struct {
	mu         sync.RWMutex
	metrics    map[string]*Metric
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// New returns an empty collector.
func New() *Collector {
	c := &Collector{}
	c.Reset()
	return c
}

// Inc increments a counter.
func (c *Collector) Inc(name string, labels map[string]string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := Key(name, labels)
	c.counters[key]++
	c.update(key, name, Counter, float64(c.counters[key]), labels)
}

// Set sets a gauge.
func (c *Collector) Set(name string, value float64, labels map[string]string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := Key(name, labels)
	c.gauges[key] = value
	c.update(key, name, Gauge, value, labels)
}

// Observe records a histogram sample.
func (c *Collector) Observe(name string, value float64, labels map[string]string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := Key(name, labels)
	h := append(c.histograms[key], value)
	if len(h) > histogramWindow {
		h = h[len(h)-histogramWindow:]
	}
	c.histograms[key] = h
	c.update(key, name, Histogram, value, labels)
}

// Get returns the latest observation of a series, or nil.
func (c *Collector) Get(name string, labels map[string]string) *Metric {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.metrics[Key(name, labels)]; ok {
		cp := *m
		return &cp
	}
	return nil
}

// All returns the latest observation of every series, sorted by key.
func (c *Collector) All() []Metric {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.metrics))
	for k := range c.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Metric, 0, len(keys))
	for _, k := range keys {
		out = append(out, *c.metrics[k])
	}
	return out
}

// Summary aggregates every series.
func (c *Collector) Summary() Summary {
	s := Summary{
		Counters:   make(map[string]int64),
		Gauges:     make(map[string]float64),
		Histograms: make(map[string]HistogramSummary),
	}
	if c == nil {
		return s
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.counters {
		s.Counters[k] = v
	}
	for k, v := range c.gauges {
		s.Gauges[k] = v
	}
	for k, values := range c.histograms {
		if len(values) == 0 {
			continue
		}
		h := HistogramSummary{Count: len(values), Min: values[0], Max: values[0]}
		for _, v := range values {
			if v < h.Min {
				h.Min = v
			}
			if v > h.Max {
				h.Max = v
			}
			h.Sum += v
		}
		h.Avg = h.Sum / float64(h.Count)
		s.Histograms[k] = h
	}
	return s
}

// Reset drops every series.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = make(map[string]*Metric)
	c.counters = make(map[string]int64)
	c.gauges = make(map[string]float64)
	c.histograms = make(map[string][]float64)
}

// Key identifies a series: the name followed by its labels sorted by label
// name.
func Key(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(name)
	for _, k := range names {
		b.WriteString("_")
		b.WriteString(k)
		b.WriteString("_")
		b.WriteString(labels[k])
	}
	return b.String()
}

func (c *Collector) update(key, name string, typ Type, value float64, labels map[string]string) {
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	c.metrics[key] = &Metric{Name: name, Type: typ, Value: value, Labels: copied, Timestamp: time.Now()}
}

// Wallet metric names.
const (
	SyncSteps           = "sync_steps"
	SyncDuration        = "sync_duration_seconds"
	DecodeFailures      = "decode_failures"
	ConnectionFailures  = "connection_failures"
	Inconsistencies     = "inconsistencies"
	PostsAccepted       = "posts_accepted"
	PostsRejected       = "posts_rejected"
	ProofGenerationTime = "proof_generation_seconds"
	Checkpoint          = "checkpoint_receiver_index"
)

func network(n string) map[string]string { return map[string]string{"network": n} }

// RecordSyncStep counts one applied step and tracks the checkpoint.
func (c *Collector) RecordSyncStep(net string, receiverIndex uint64) {
	c.Inc(SyncSteps, network(net))
	c.Set(Checkpoint, float64(receiverIndex), network(net))
}

// RecordSync records the duration of a complete sync call.
func (c *Collector) RecordSync(net string, d time.Duration) {
	c.Observe(SyncDuration, d.Seconds(), network(net))
}

// RecordProofGeneration records the time spent signing.
func (c *Collector) RecordProofGeneration(net string, d time.Duration) {
	c.Observe(ProofGenerationTime, d.Seconds(), network(net))
}

// RecordPost counts a ledger verdict.
func (c *Collector) RecordPost(net string, accepted bool) {
	if accepted {
		c.Inc(PostsAccepted, network(net))
	} else {
		c.Inc(PostsRejected, network(net))
	}
}

// RecordFailure counts a failed step by error class.
func (c *Collector) RecordFailure(net, name string) {
	c.Inc(name, network(net))
}
