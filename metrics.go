package memstream

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports the counters of a Stats as Prometheus metrics.
//
//	registry.MustRegister(memstream.NewCollector(stats, "memcache"))
type Collector struct {
	stats *Stats

	responses  *prometheus.Desc
	values     *prometheus.Desc
	valueBytes *prometheus.Desc
	errors     *prometheus.Desc
	ends       *prometheus.Desc
	closes     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for stats. Metric names are prefixed with
// namespace when it is not empty.
func NewCollector(stats *Stats, namespace string) *Collector {
	name := func(n string) string {
		return prometheus.BuildFQName(namespace, "parser", n)
	}

	return &Collector{
		stats: stats,
		responses: prometheus.NewDesc(
			name("responses_total"),
			"Total responses parsed, by kind",
			[]string{"kind"}, nil,
		),
		values: prometheus.NewDesc(
			name("values_total"),
			"Total VALUE responses parsed",
			nil, nil,
		),
		valueBytes: prometheus.NewDesc(
			name("value_bytes_total"),
			"Total payload bytes of VALUE responses",
			nil, nil,
		),
		errors: prometheus.NewDesc(
			name("errors_total"),
			"Total errors reported by parsers, by type",
			[]string{"type"}, // protocol, decode, fatal
			nil,
		),
		ends: prometheus.NewDesc(
			name("ends_total"),
			"Total response streams that reached their end",
			nil, nil,
		),
		closes: prometheus.NewDesc(
			name("closes_total"),
			"Total closed parsers",
			[]string{"had_error"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.responses
	ch <- c.values
	ch <- c.valueBytes
	ch <- c.errors
	ch <- c.ends
	ch <- c.closes
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Snapshot()

	for kind, n := range s.Responses {
		ch <- prometheus.MustNewConstMetric(c.responses, prometheus.CounterValue, float64(n), kind.String())
	}

	ch <- prometheus.MustNewConstMetric(c.values, prometheus.CounterValue, float64(s.Values))
	ch <- prometheus.MustNewConstMetric(c.valueBytes, prometheus.CounterValue, float64(s.ValueBytes))

	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.ProtocolErrors), "protocol")
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.DecodeErrors), "decode")
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.FatalErrors), "fatal")

	ch <- prometheus.MustNewConstMetric(c.ends, prometheus.CounterValue, float64(s.Ends))

	// The counters are loaded one by one
	clean := s.Closes - min(s.ClosesWithError, s.Closes)
	ch <- prometheus.MustNewConstMetric(c.closes, prometheus.CounterValue, float64(clean), strconv.FormatBool(false))
	ch <- prometheus.MustNewConstMetric(c.closes, prometheus.CounterValue, float64(s.ClosesWithError), strconv.FormatBool(true))
}
