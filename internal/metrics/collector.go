// Package metrics exposes controller snapshots in Prometheus format.
package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"fancontrol/internal/models"
)

const namespace = "fancontrol"

// SnapshotFunc returns the last committed controller state.
type SnapshotFunc func() models.ControllerState

var (
	tempDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "node", "temperature_celsius"),
		"Last temperature reported by each source.",
		[]string{"source"}, nil)
	tempAvailableDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "node", "temperature_available"),
		"1 if the source answered in the last cycle.",
		[]string{"source"}, nil)
	dutyDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "fan_duty_percent"),
		"Fan PWM duty cycle in percent.",
		nil, nil)
	aggregateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "aggregate_temperature_celsius"),
		"Aggregated cluster temperature.",
		[]string{"method"}, nil)
	contributingDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "contributing_sources"),
		"Sources that contributed to the last aggregate.",
		nil, nil)
	runningDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "running"),
		"1 while the control loop is running.",
		[]string{"mode"}, nil)
	degradedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "degraded"),
		"1 when the last cycle had no readings and held the previous duty.",
		nil, nil)
	peersDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "peers"),
		"Number of peers currently polled.",
		nil, nil)
	cyclesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "cycles_total"),
		"Control cycles completed.",
		nil, nil)
)

// Collector reads one snapshot per scrape, so every series of a scrape
// comes from the same cycle.
type Collector struct {
	snapshot SnapshotFunc
}

func NewCollector(snapshot SnapshotFunc) *Collector {
	return &Collector{snapshot: snapshot}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		tempDesc, tempAvailableDesc, dutyDesc, aggregateDesc, contributingDesc,
		runningDesc, degradedDesc, peersDesc, cyclesDesc,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.snapshot()

	sources := make([]string, 0, len(st.Temperatures))
	for s := range st.Temperatures {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		v := st.Temperatures[s]
		if v != nil {
			ch <- prometheus.MustNewConstMetric(tempDesc, prometheus.GaugeValue, *v, s)
		}
		ch <- prometheus.MustNewConstMetric(tempAvailableDesc, prometheus.GaugeValue, boolToFloat(v != nil), s)
	}

	if st.FanDutyPercent != nil {
		ch <- prometheus.MustNewConstMetric(dutyDesc, prometheus.GaugeValue, *st.FanDutyPercent)
	}
	if st.AggregateTempC != nil {
		ch <- prometheus.MustNewConstMetric(aggregateDesc, prometheus.GaugeValue, *st.AggregateTempC, st.AggregateMethod)
	}
	ch <- prometheus.MustNewConstMetric(contributingDesc, prometheus.GaugeValue, float64(st.ContributingCount))
	ch <- prometheus.MustNewConstMetric(runningDesc, prometheus.GaugeValue, boolToFloat(st.Running), st.Mode)
	ch <- prometheus.MustNewConstMetric(degradedDesc, prometheus.GaugeValue, boolToFloat(st.Degraded))
	ch <- prometheus.MustNewConstMetric(peersDesc, prometheus.GaugeValue, float64(len(st.Peers)))
	ch <- prometheus.MustNewConstMetric(cyclesDesc, prometheus.CounterValue, float64(st.Cycle))
}

// NewRegistry returns a registry holding only the controller collector.
func NewRegistry(snapshot SnapshotFunc) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(snapshot))
	return reg
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
