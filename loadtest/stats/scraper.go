package stats

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/encoding/protodelim"
)

// metricPrefix selects the moderator's own families from the exposition.
const metricPrefix = "whisper_moderation_"

// decisionHistogram is the per-message processing time histogram.
const decisionHistogram = metricPrefix + "decision_seconds"

// acceptProtobuf asks promhttp for length-delimited MetricFamily messages.
const acceptProtobuf = `application/vnd.google.protobuf;proto=io.prometheus.client.MetricFamily;encoding=delimited`

// bucket is one cumulative histogram bucket.
type bucket struct {
	upper float64
	count float64
}

// sample is one scrape of the moderator.
type sample struct {
	at time.Time

	// series holds counter and gauge values keyed by name{label=value,...}.
	series map[string]float64

	decisionSum     float64
	decisionCount   float64
	decisionBuckets []bucket
}

// Scraper samples the moderator's Prometheus endpoint while a load test runs
// and reports how the server-side series moved between the first and last
// sample.
type Scraper struct {
	url    string
	every  time.Duration
	client *http.Client

	mu      sync.Mutex
	samples []sample

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScraper creates a Scraper for metricsURL sampling at the given interval.
func NewScraper(metricsURL string, every time.Duration) *Scraper {
	return &Scraper{
		url:    metricsURL,
		every:  every,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Start samples once immediately and then on every tick until ctx is done or
// Stop is called. A final sample is taken on the way out.
func (s *Scraper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.take(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.every)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.take(ctx)
			case <-ctx.Done():
				s.take(context.Background())
				return
			}
		}
	}()
}

// Stop ends sampling and waits for the final sample.
func (s *Scraper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

// take keeps a successful scrape. Failures are dropped: the moderator may
// still be starting.
func (s *Scraper) take(ctx context.Context) {
	smp, err := s.scrape(ctx)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.samples = append(s.samples, smp)
	s.mu.Unlock()
}

func (s *Scraper) scrape(ctx context.Context) (sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return sample{}, err
	}
	req.Header.Set("Accept", acceptProtobuf)

	resp, err := s.client.Do(req)
	if err != nil {
		return sample{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return sample{}, fmt.Errorf("scrape %s: status %d", s.url, resp.StatusCode)
	}
	return decodeSample(resp.Body, time.Now())
}

// decodeSample reads length-delimited metric families and keeps the
// moderator's series.
func decodeSample(r io.Reader, at time.Time) (sample, error) {
	smp := sample{at: at, series: make(map[string]float64)}
	br := bufio.NewReader(r)

	for {
		var mf dto.MetricFamily
		err := protodelim.UnmarshalFrom(br, &mf)
		if errors.Is(err, io.EOF) {
			return smp, nil
		}
		if err != nil {
			return sample{}, fmt.Errorf("decode metric family: %w", err)
		}

		name := mf.GetName()
		if !strings.HasPrefix(name, metricPrefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				smp.series[seriesKey(name, m.GetLabel())] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				smp.series[seriesKey(name, m.GetLabel())] = m.GetGauge().GetValue()
			case name == decisionHistogram && m.GetHistogram() != nil:
				h := m.GetHistogram()
				smp.decisionSum = h.GetSampleSum()
				smp.decisionCount = float64(h.GetSampleCount())
				smp.decisionBuckets = smp.decisionBuckets[:0]
				for _, b := range h.GetBucket() {
					smp.decisionBuckets = append(smp.decisionBuckets, bucket{
						upper: b.GetUpperBound(),
						count: float64(b.GetCumulativeCount()),
					})
				}
			}
		}
	}
}

// seriesKey renders a series as name{a="x",b="y"} with labels sorted by
// name, or just name when it has none.
func seriesKey(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

// bucketQuantile estimates quantile q of the total observations that arrived
// between two cumulative bucket snapshots, interpolating linearly inside the
// bucket the rank lands in. A rank beyond the last finite bucket yields that
// bucket's bound. It returns NaN when nothing was observed.
func bucketQuantile(q, total float64, before, after []bucket) float64 {
	if total <= 0 || len(after) == 0 {
		return math.NaN()
	}
	prev := make(map[float64]float64, len(before))
	for _, b := range before {
		prev[b.upper] = b.count
	}

	delta := make([]bucket, 0, len(after))
	for _, b := range after {
		delta = append(delta, bucket{upper: b.upper, count: b.count - prev[b.upper]})
	}
	sort.Slice(delta, func(i, j int) bool { return delta[i].upper < delta[j].upper })

	rank := q * total
	lower, below := 0.0, 0.0
	for _, b := range delta {
		if b.count >= rank {
			if b.count == below {
				return b.upper
			}
			return lower + (b.upper-lower)*(rank-below)/(b.count-below)
		}
		lower, below = b.upper, b.count
	}
	return delta[len(delta)-1].upper
}

// Report prints how every moderator series changed over the run, followed by
// the average and estimated p95 decision time.
func (s *Scraper) Report() {
	s.mu.Lock()
	samples := append([]sample(nil), s.samples...)
	s.mu.Unlock()

	if len(samples) == 0 {
		fmt.Println("\n--- Moderator Metrics: no samples ---")
		return
	}
	first, last := samples[0], samples[len(samples)-1]

	fmt.Printf("\n--- Moderator Metrics (%d samples over %s) ---\n",
		len(samples), last.at.Sub(first.at).Round(time.Second))

	keys := make([]string, 0, len(last.series))
	for k := range last.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		end := last.series[k]
		fmt.Printf("  %-70s %10.0f (%+.0f)\n", strings.TrimPrefix(k, metricPrefix), end, end-first.series[k])
	}

	n := last.decisionCount - first.decisionCount
	if n <= 0 {
		fmt.Println("  decision time: no observations")
		return
	}
	avg := (last.decisionSum - first.decisionSum) / n
	p95 := bucketQuantile(0.95, n, first.decisionBuckets, last.decisionBuckets)
	fmt.Printf("  decision time: avg %s  p95 <= %s  (n=%.0f)\n",
		seconds(avg), seconds(p95), n)
}

func seconds(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return time.Duration(v * float64(time.Second)).Round(time.Microsecond).String()
}
