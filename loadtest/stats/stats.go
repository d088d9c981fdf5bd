// Package stats provides a goroutine-safe collector that aggregates what a
// moderation load test sent and what the platform gateway was asked to do in
// response, and prints a summary report with percentile distributions.
package stats

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates load test results. All methods are goroutine-safe.
type Collector struct {
	mu              sync.Mutex
	sent            map[string]int // by message kind
	actions         map[string]int // by platform action
	detectLatencies []time.Duration
	errors          int
	startTime       time.Time
	scraper         *Scraper
}

// NewCollector creates a new Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		sent:      make(map[string]int),
		actions:   make(map[string]int),
		startTime: time.Now(),
	}
}

// SetScraper attaches a Prometheus metrics scraper to this collector. When set,
// Report() will also print server-side metrics collected by the scraper.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddSent records one published message of the given kind.
func (c *Collector) AddSent(kind string) {
	c.mu.Lock()
	c.sent[kind]++
	c.mu.Unlock()
}

// AddAction records one platform request received by the gateway.
func (c *Collector) AddAction(action string) {
	c.mu.Lock()
	c.actions[action]++
	c.mu.Unlock()
}

// AddDetectLatency records the time from publishing a violating message to
// the moderator asking for its deletion.
func (c *Collector) AddDetectLatency(d time.Duration) {
	c.mu.Lock()
	c.detectLatencies = append(c.detectLatencies, d)
	c.mu.Unlock()
}

// AddError increments the error counter.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// SentCount returns the number of published messages of all kinds.
func (c *Collector) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.sent {
		n += v
	}
	return n
}

// ActionCount returns the number of requests received for action.
func (c *Collector) ActionCount(action string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actions[action]
}

// ErrorCount returns the current number of recorded errors.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Report prints a formatted summary of the collected metrics to stdout.
func (c *Collector) Report() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime)

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:     %s\n", elapsed.Round(time.Second))
	fmt.Printf("Errors:       %d\n", c.errors)

	fmt.Println("\n--- Sent ---")
	printCounts(c.sent)

	fmt.Println("\n--- Platform Actions ---")
	printCounts(c.actions)

	if len(c.detectLatencies) > 0 {
		fmt.Println("\n--- Detection Latency (publish -> delete request) ---")
		printPercentiles(c.detectLatencies)
	}

	if c.scraper != nil {
		c.scraper.Report()
	}

	fmt.Println()
}

func printCounts(m map[string]int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-12s %d\n", k, m[k])
	}
}

// Percentiles summarises a latency sample.
type Percentiles struct {
	Avg, P50, P95, P99, Max time.Duration
	N                       int
}

// ComputePercentiles sorts durations in place and returns its summary. It
// returns the zero value for an empty sample.
func ComputePercentiles(durations []time.Duration) Percentiles {
	n := len(durations)
	if n == 0 {
		return Percentiles{}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return Percentiles{
		Avg: sum / time.Duration(n),
		P50: durations[n/2],
		P95: durations[int(math.Ceil(float64(n)*0.95))-1],
		P99: durations[int(math.Ceil(float64(n)*0.99))-1],
		Max: durations[n-1],
		N:   n,
	}
}

func printPercentiles(durations []time.Duration) {
	p := ComputePercentiles(durations)
	fmt.Printf("  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
		p.Avg.Round(time.Microsecond),
		p.P50.Round(time.Microsecond),
		p.P95.Round(time.Microsecond),
		p.P99.Round(time.Microsecond),
		p.Max.Round(time.Microsecond),
		p.N,
	)
}
