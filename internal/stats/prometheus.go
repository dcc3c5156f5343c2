package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes an Aggregator's Snapshot through the Prometheus
// client_golang collector interface, the exposition surface nabbar-golib
// and aistore both wire their own counters through.
type Collector struct {
	agg *Aggregator

	cmdDesc  *prometheus.Desc
	hitDesc  *prometheus.Desc
	connDesc *prometheus.Desc
	bytesDesc *prometheus.Desc
}

// NewCollector wraps agg for registration with a prometheus.Registry.
func NewCollector(agg *Aggregator) *Collector {
	return &Collector{
		agg: agg,
		cmdDesc: prometheus.NewDesc(
			"memkv_commands_total", "Total commands processed by verb.",
			[]string{"verb"}, nil,
		),
		hitDesc: prometheus.NewDesc(
			"memkv_get_results_total", "get lookups by outcome.",
			[]string{"outcome"}, nil,
		),
		connDesc: prometheus.NewDesc(
			"memkv_connections", "Current and total connection counts.",
			[]string{"state"}, nil,
		),
		bytesDesc: prometheus.NewDesc(
			"memkv_bytes_total", "Bytes transferred or stored by direction.",
			[]string{"direction"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cmdDesc
	ch <- c.hitDesc
	ch <- c.connDesc
	ch <- c.bytesDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.agg.Snapshot()

	emit := func(desc *prometheus.Desc, v uint64, label string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), label)
	}

	emit(c.cmdDesc, snap.CmdGet, "get")
	emit(c.cmdDesc, snap.CmdSet, "set")
	emit(c.cmdDesc, snap.CmdDelete, "delete")
	emit(c.cmdDesc, snap.CmdIncr, "incr")
	emit(c.cmdDesc, snap.CmdDecr, "decr")
	emit(c.cmdDesc, snap.CmdFlush, "flush_all")
	emit(c.cmdDesc, snap.CmdTouch, "touch")

	emit(c.hitDesc, snap.GetHits, "hit")
	emit(c.hitDesc, snap.GetMisses, "miss")

	ch <- prometheus.MustNewConstMetric(c.connDesc, prometheus.GaugeValue, float64(snap.CurrConnections), "current")
	ch <- prometheus.MustNewConstMetric(c.connDesc, prometheus.CounterValue, float64(snap.TotalConnections), "total")

	emit(c.bytesDesc, snap.BytesRead, "read")
	emit(c.bytesDesc, snap.BytesWritten, "written")
	ch <- prometheus.MustNewConstMetric(c.bytesDesc, prometheus.GaugeValue, float64(snap.BytesStored), "stored")
}
