package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fancontrol/internal/logger"
	"fancontrol/internal/metrics"
	"fancontrol/internal/sensor"
)

const errReadSensor = "failed to read temperature"

// Exporter serves the node's own sensors to peers and to Prometheus.
type Exporter struct {
	cpu   sensor.Reader
	hwmon sensor.Hwmon
	host  []prometheus.Collector
	log   *logger.Logger
}

func NewExporter(cpu sensor.Reader, hwmon sensor.Hwmon, log *logger.Logger) *Exporter {
	return &Exporter{cpu: cpu, hwmon: hwmon, log: log}
}

// WithHostStats adds host figures (memory, load, disks, network) to /metrics.
func (e *Exporter) WithHostStats(c *metrics.HostCollector) *Exporter {
	e.host = append(e.host, c)
	return e
}

func (e *Exporter) readAll(ctx context.Context) map[string]sensor.Reading {
	return sensor.ReadAll(ctx, e.cpu, e.hwmon)
}

// InitRoutes builds the exporter router.
func (e *Exporter) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	reg := metrics.NewNodeRegistry(e.readAll, e.host...)
	router.GET("/temp", e.getTemp)
	router.GET("/temps", e.getTemps)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": statusOK})
	})
	return router
}

func (e *Exporter) getTemp(c *gin.Context) {
	v, err := e.cpu.ReadLocal(c.Request.Context())
	if err != nil {
		if e.log != nil {
			e.log.Errorw("exporter_read_failed", "err", err)
		}
		c.String(http.StatusInternalServerError, errReadSensor+"\n")
		return
	}
	c.String(http.StatusOK, "%.3f\n", v)
}

// getTemps reports every sensor; unreadable ones are null.
func (e *Exporter) getTemps(c *gin.Context) {
	readings := e.readAll(c.Request.Context())
	out := make(gin.H, len(readings))
	for name, r := range readings {
		out[name] = r.Value
	}
	c.JSON(http.StatusOK, out)
}
