package metrics

import (
	"context"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"fancontrol/internal/sensor"
)

// ReadAllFunc reads every node sensor once.
type ReadAllFunc func(ctx context.Context) map[string]sensor.Reading

var (
	nodeTempDesc = prometheus.NewDesc(
		"node_temperature_celsius",
		"Temperature of a node sensor.",
		[]string{"sensor"}, nil)
	nodeAvailableDesc = prometheus.NewDesc(
		"node_temperature_sensor_available",
		"1 if the sensor could be read.",
		[]string{"sensor"}, nil)
)

// NodeCollector reads the local sensors on every scrape.
type NodeCollector struct {
	read ReadAllFunc
}

func NewNodeCollector(read ReadAllFunc) *NodeCollector {
	return &NodeCollector{read: read}
}

func (c *NodeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- nodeTempDesc
	ch <- nodeAvailableDesc
}

func (c *NodeCollector) Collect(ch chan<- prometheus.Metric) {
	readings := c.read(context.Background())
	names := make([]string, 0, len(readings))
	for n := range readings {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		r := readings[n]
		if r.Value != nil {
			ch <- prometheus.MustNewConstMetric(nodeTempDesc, prometheus.GaugeValue, *r.Value, n)
		}
		ch <- prometheus.MustNewConstMetric(nodeAvailableDesc, prometheus.GaugeValue, boolToFloat(r.Value != nil), n)
	}
}

// NewNodeRegistry returns a registry with the node sensor collector and any
// extra collectors, such as a HostCollector.
func NewNodeRegistry(read ReadAllFunc, extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewNodeCollector(read))
	reg.MustRegister(extra...)
	return reg
}
