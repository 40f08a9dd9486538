package metrics

import (
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"fancontrol/internal/logger"
)

const DefaultProcRoot = procfs.DefaultMountPoint

var (
	memTotalDesc = prometheus.NewDesc(
		"node_memory_total_bytes", "Total usable memory.", nil, nil)
	memAvailableDesc = prometheus.NewDesc(
		"node_memory_available_bytes", "Memory available for new work without swapping.", nil, nil)
	memFreeDesc = prometheus.NewDesc(
		"node_memory_free_bytes", "Unused memory.", nil, nil)
	swapTotalDesc = prometheus.NewDesc(
		"node_swap_total_bytes", "Total swap space.", nil, nil)
	swapFreeDesc = prometheus.NewDesc(
		"node_swap_free_bytes", "Unused swap space.", nil, nil)
	loadDesc = prometheus.NewDesc(
		"node_load_average", "System load average.", []string{"period"}, nil)
	uptimeDesc = prometheus.NewDesc(
		"node_uptime_seconds", "Seconds since boot.", nil, nil)
	fsSizeDesc = prometheus.NewDesc(
		"node_filesystem_size_bytes", "Filesystem size.", []string{"mountpoint"}, nil)
	fsAvailDesc = prometheus.NewDesc(
		"node_filesystem_avail_bytes", "Filesystem space available to unprivileged users.", []string{"mountpoint"}, nil)
	netRxBytesDesc = prometheus.NewDesc(
		"node_network_receive_bytes_total", "Bytes received.", []string{"device"}, nil)
	netTxBytesDesc = prometheus.NewDesc(
		"node_network_transmit_bytes_total", "Bytes transmitted.", []string{"device"}, nil)
	netRxErrsDesc = prometheus.NewDesc(
		"node_network_receive_errors_total", "Receive errors.", []string{"device"}, nil)
	netTxErrsDesc = prometheus.NewDesc(
		"node_network_transmit_errors_total", "Transmit errors.", []string{"device"}, nil)
)

// HostCollector exposes memory, load, uptime, disk and network figures of the
// node. A source that cannot be read is skipped for that scrape.
type HostCollector struct {
	fs     procfs.FS
	mounts []string
	now    func() time.Time
	log    *logger.Logger
}

// NewHostCollector reads from the proc filesystem mounted at procRoot and
// reports disk usage for each of mounts.
func NewHostCollector(procRoot string, mounts []string, log *logger.Logger) (*HostCollector, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HostCollector{fs: fs, mounts: mounts, now: time.Now, log: log}, nil
}

func (c *HostCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		memTotalDesc, memAvailableDesc, memFreeDesc, swapTotalDesc, swapFreeDesc,
		loadDesc, uptimeDesc, fsSizeDesc, fsAvailDesc,
		netRxBytesDesc, netTxBytesDesc, netRxErrsDesc, netTxErrsDesc,
	} {
		ch <- d
	}
}

func (c *HostCollector) Collect(ch chan<- prometheus.Metric) {
	c.collectMemory(ch)
	c.collectLoad(ch)
	c.collectUptime(ch)
	c.collectDisks(ch)
	c.collectNetwork(ch)
}

func (c *HostCollector) collectMemory(ch chan<- prometheus.Metric) {
	mi, err := c.fs.Meminfo()
	if err != nil {
		c.log.Debugw("host_meminfo_failed", "err", err)
		return
	}
	// meminfo reports kB
	kb := func(d *prometheus.Desc, v *uint64) {
		if v != nil {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(*v)*1024)
		}
	}
	kb(memTotalDesc, mi.MemTotal)
	kb(memAvailableDesc, mi.MemAvailable)
	kb(memFreeDesc, mi.MemFree)
	kb(swapTotalDesc, mi.SwapTotal)
	kb(swapFreeDesc, mi.SwapFree)
}

func (c *HostCollector) collectLoad(ch chan<- prometheus.Metric) {
	la, err := c.fs.LoadAvg()
	if err != nil {
		c.log.Debugw("host_loadavg_failed", "err", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(loadDesc, prometheus.GaugeValue, la.Load1, "1m")
	ch <- prometheus.MustNewConstMetric(loadDesc, prometheus.GaugeValue, la.Load5, "5m")
	ch <- prometheus.MustNewConstMetric(loadDesc, prometheus.GaugeValue, la.Load15, "15m")
}

func (c *HostCollector) collectUptime(ch chan<- prometheus.Metric) {
	st, err := c.fs.Stat()
	if err != nil {
		c.log.Debugw("host_stat_failed", "err", err)
		return
	}
	up := c.now().Sub(time.Unix(int64(st.BootTime), 0)).Seconds()
	if up < 0 {
		up = 0
	}
	ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.GaugeValue, up)
}

func (c *HostCollector) collectDisks(ch chan<- prometheus.Metric) {
	for _, m := range c.mounts {
		var st unix.Statfs_t
		if err := unix.Statfs(m, &st); err != nil {
			c.log.Debugw("host_statfs_failed", "mountpoint", m, "err", err)
			continue
		}
		bsize := float64(st.Bsize)
		ch <- prometheus.MustNewConstMetric(fsSizeDesc, prometheus.GaugeValue, float64(st.Blocks)*bsize, m)
		ch <- prometheus.MustNewConstMetric(fsAvailDesc, prometheus.GaugeValue, float64(st.Bavail)*bsize, m)
	}
}

func (c *HostCollector) collectNetwork(ch chan<- prometheus.Metric) {
	nd, err := c.fs.NetDev()
	if err != nil {
		c.log.Debugw("host_netdev_failed", "err", err)
		return
	}
	names := make([]string, 0, len(nd))
	for n := range nd {
		if n != "lo" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		l := nd[n]
		ch <- prometheus.MustNewConstMetric(netRxBytesDesc, prometheus.CounterValue, float64(l.RxBytes), n)
		ch <- prometheus.MustNewConstMetric(netTxBytesDesc, prometheus.CounterValue, float64(l.TxBytes), n)
		ch <- prometheus.MustNewConstMetric(netRxErrsDesc, prometheus.CounterValue, float64(l.RxErrors), n)
		ch <- prometheus.MustNewConstMetric(netTxErrsDesc, prometheus.CounterValue, float64(l.TxErrors), n)
	}
}
