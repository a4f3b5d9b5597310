// Package exporter serves enclosure metrics in the Prometheus exposition
// format.
package exporter

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sigreer/jbod/internal/metrics"
	"github.com/sigreer/jbod/internal/registry"
)

// DefaultScrapeTimeout bounds one discovery run triggered by a scrape.
const DefaultScrapeTimeout = 20 * time.Second

// DiscoverFunc runs one full discovery.
type DiscoverFunc func(ctx context.Context) registry.Outcomes

// Collector runs a fresh discovery on every scrape and reports the projected
// facts as constant metrics. Nothing is cached between scrapes.
type Collector struct {
	discover DiscoverFunc
	timeout  time.Duration

	descs          map[string]*prometheus.Desc
	scrapeDuration *prometheus.Desc

	log *zap.Logger
}

// NewCollector returns a collector calling discover with the given timeout.
func NewCollector(discover DiscoverFunc, timeout time.Duration) *Collector {
	if timeout <= 0 {
		timeout = DefaultScrapeTimeout
	}
	c := &Collector{
		discover: discover,
		timeout:  timeout,
		descs:    make(map[string]*prometheus.Desc),
		scrapeDuration: prometheus.NewDesc("jbod_scrape_duration_seconds",
			"Time spent discovering enclosures for this scrape.", nil, nil),
		log: zap.L(),
	}
	for _, d := range metrics.Descs() {
		c.descs[d.Name] = prometheus.NewDesc(d.Name, d.Help, d.Labels, nil)
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
	ch <- c.scrapeDuration
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	outcomes := c.discover(ctx)
	for _, f := range metrics.ProjectAll(outcomes) {
		desc, ok := c.descs[f.Name]
		if !ok {
			c.log.Error("no descriptor for metric", zap.String("metric", f.Name))
			continue
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, f.Value, f.Labels...)
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeDuration, prometheus.GaugeValue, time.Since(start).Seconds())
}
