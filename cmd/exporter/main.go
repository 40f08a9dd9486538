// Command exporter serves this node's temperatures to the controller's peers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/oklog/run"
	"github.com/spf13/pflag"

	"fancontrol/internal/handlers"
	"fancontrol/internal/logger"
	"fancontrol/internal/metrics"
	"fancontrol/internal/peers"
	"fancontrol/internal/sensor"
	"fancontrol/internal/server"
)

func main() {
	fs := pflag.NewFlagSet("exporter", pflag.ContinueOnError)
	bind := fs.String("bind", "0.0.0.0", "listen address")
	port := fs.Int("port", peers.DefaultExporterPort, "listen port")
	level := fs.String("log-level", logger.InfoLevel, "debug, info, warn or error")
	hwmonRoot := fs.String("hwmon-root", sensor.DefaultHwmonRoot, "hwmon sysfs directory")
	procRoot := fs.String("proc-root", metrics.DefaultProcRoot, "proc filesystem for host figures")
	mounts := fs.StringSlice("disk", []string{"/"}, "mount points to report disk usage for")
	noHost := fs.Bool("no-host-stats", false, "serve temperatures only on /metrics")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if !logger.ValidLevel(*level) {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *level)
		os.Exit(2)
	}

	log := logger.Get(*level)
	defer func() { _ = log.Sync() }()

	gin.SetMode(gin.ReleaseMode)
	exp := handlers.NewExporter(sensor.NewProbe(), sensor.Hwmon{Root: *hwmonRoot}, log.Named("exporter"))
	if !*noHost {
		host, err := metrics.NewHostCollector(*procRoot, *mounts, log.Named("host"))
		if err != nil {
			log.Warnw("host_stats_disabled", "proc_root", *procRoot, "err", err)
		} else {
			exp.WithHostStats(host)
		}
	}
	srv := server.New(net.JoinHostPort(*bind, strconv.Itoa(*port)), exp.InitRoutes())

	var g run.Group
	g.Add(func() error {
		log.Infow("exporter_listening", "addr", srv.Addr())
		return srv.Run()
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	g.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))

	err := g.Run()
	var sig run.SignalError
	if err != nil && !errors.As(err, &sig) {
		log.Errorw("exporter_exited", "err", err)
		os.Exit(1)
	}
}
