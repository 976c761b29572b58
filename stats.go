package switchboard

import (
	"sync"
	"time"

	"github.com/northbridge-ai/switchboard/pkg/types"
)

// Stats tracks routing outcomes since the engine was constructed.
type Stats struct {
	Turns         int64            `json:"turns"`
	Selections    int64            `json:"selections"`
	NoSelections  int64            `json:"no_selections"`
	Failures      int64            `json:"failures"`
	AvgConfidence float64          `json:"avg_confidence"`
	AvgLatency    time.Duration    `json:"avg_latency"`
	ByBasis       map[string]int64 `json:"by_basis"`
	ByAgent       map[string]int64 `json:"by_agent"`
}

type statsCollector struct {
	mu              sync.Mutex
	stats           Stats
	totalConfidence float64
	totalLatency    time.Duration
}

func newStatsCollector() *statsCollector {
	return &statsCollector{
		stats: Stats{
			ByBasis: make(map[string]int64),
			ByAgent: make(map[string]int64),
		},
	}
}

func (c *statsCollector) recordSelection(agentID string, basis types.Basis, confidence float64, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Turns++
	c.stats.Selections++
	c.stats.ByBasis[basis.String()]++
	c.stats.ByAgent[agentID]++

	c.totalConfidence += confidence
	c.stats.AvgConfidence = c.totalConfidence / float64(c.stats.Selections)
	c.addLatency(d)
}

func (c *statsCollector) recordNoSelection(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Turns++
	c.stats.NoSelections++
	c.stats.ByBasis[types.BasisNone.String()]++
	c.addLatency(d)
}

func (c *statsCollector) recordFailure(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Turns++
	c.stats.Failures++
	c.addLatency(d)
}

// addLatency expects c.mu to be held.
func (c *statsCollector) addLatency(d time.Duration) {
	c.totalLatency += d
	c.stats.AvgLatency = c.totalLatency / time.Duration(c.stats.Turns)
}

// snapshot returns a copy so callers can read without racing the pipeline.
func (c *statsCollector) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	out.ByBasis = make(map[string]int64, len(c.stats.ByBasis))
	for k, v := range c.stats.ByBasis {
		out.ByBasis[k] = v
	}
	out.ByAgent = make(map[string]int64, len(c.stats.ByAgent))
	for k, v := range c.stats.ByAgent {
		out.ByAgent[k] = v
	}
	return out
}
