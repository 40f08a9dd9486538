package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/pflag"

	_ "fancontrol/docs"
	"fancontrol/internal/actuator"
	"fancontrol/internal/config"
	"fancontrol/internal/handlers"
	"fancontrol/internal/logger"
	"fancontrol/internal/metrics"
	"fancontrol/internal/models"
	"fancontrol/internal/peers"
	"fancontrol/internal/repository"
	"fancontrol/internal/repository/db"
	"fancontrol/internal/sensor"
	"fancontrol/internal/server"
	"fancontrol/internal/service"
)

const discoveryTimeout = 10 * time.Second

func main() {
	fs := config.NewFlagSet("fancontrol")
	printToken := fs.String("print-token", "", "print a bearer token for this subject (needs server.auth_secret) and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.FromFlags(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.Get(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if *printToken != "" {
		if err := issueToken(cfg, *printToken); err != nil {
			log.Fatalw("token_issue_failed", "err", err)
		}
		return
	}

	if err := runController(cfg, log); err != nil {
		log.Errorw("controller_exited", "err", err)
		os.Exit(1)
	}
}

func issueToken(cfg *config.Config, subject string) error {
	if cfg.Server.AuthSecret == "" {
		return errors.New("server.auth_secret is not set")
	}
	tok, err := service.NewAuthService(cfg.Server.AuthSecret, 0).GenerateToken(subject)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func runController(cfg *config.Config, log *logger.Logger) error {
	if cfg.File != "" {
		log.Infow("config_loaded", "file", cfg.File)
	}

	database, err := db.InitDB(db.MemoryDSN)
	if err != nil {
		return fmt.Errorf("init journal db: %w", err)
	}
	defer closeDB(database, log)

	repos := repository.NewRepository(database)
	journal := service.NewEventLogService(repos.EventRepo, log.Named("journal"))

	act := openActuator(cfg, log)

	static, err := staticPeers(cfg)
	if err != nil {
		return err
	}
	provider := peerProvider(cfg, static, log)
	initial := initialPeers(provider, static, log)

	poller, err := peerPoller(cfg, log.Named("poller"))
	if err != nil {
		return err
	}

	ctrl := service.NewControllerService(service.ControllerConfig{
		Fan:            cfg.Fan,
		Aggregate:      cfg.Control.Aggregate,
		RemoteMethod:   cfg.Peers.Method,
		Interval:       cfg.Control.Interval,
		DiscoveryEvery: cfg.Control.DiscoveryEvery,
		ReadTimeout:    cfg.Peers.Timeout,
	}, service.ControllerDeps{
		Sensor:   localSensor(cfg, log),
		Poller:   poller,
		Provider: provider,
		Actuator: act,
		Journal:  journal,
		Log:      log.Named("controller"),
	}, initial)

	var auth *service.AuthService
	if cfg.Server.AuthSecret != "" {
		auth = service.NewAuthService(cfg.Server.AuthSecret, 0)
	}
	services := service.NewService(ctrl, journal, auth)

	log.Infow("controller_starting",
		"mode", cfg.Fan.Mode,
		"curve", cfg.Fan.Curve,
		"aggregate", cfg.Control.Aggregate,
		"interval", cfg.Control.Interval,
		"peers", initial.Len(),
		"remote_method", cfg.Peers.Method,
		"actuator", act.Name(),
	)

	var g run.Group
	{
		// the journal drains after the controller has recorded STOP
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return service.RunWithJournal(ctx, services.Controller, journal)
		}, func(error) {
			cancel()
		})
	}
	if cfg.Server.Port != 0 {
		api := handlers.NewHandler(services, log.Named("http")).
			WithMetrics(metrics.NewRegistry(ctrl.Snapshot))
		srv := server.New(cfg.Addr(), api.InitRoutes())
		g.Add(func() error {
			log.Infow("status_server_listening", "addr", srv.Addr())
			return srv.Run()
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warnw("status_server_shutdown_failed", "err", err)
			}
		})
	}
	g.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		log.Infow("controller_stopped", "signal", sig.Signal.String())
		return nil
	}
	return err
}

func closeDB(database *sql.DB, log *logger.Logger) {
	if err := database.Close(); err != nil {
		log.Warnw("journal_db_close_failed", "err", err)
	}
}

func localSensor(cfg *config.Config, log *logger.Logger) sensor.Reader {
	if cfg.Control.SimulateTemp != nil {
		log.Infow("simulating_local_temperature", "celsius", *cfg.Control.SimulateTemp)
		return sensor.Fixed(*cfg.Control.SimulateTemp)
	}
	return sensor.NewProbe()
}

// openActuator falls back to the no-op actuator when GPIO is unavailable so
// the node still reports and aggregates temperatures.
func openActuator(cfg *config.Config, log *logger.Logger) actuator.Actuator {
	if cfg.Control.DryRun {
		return actuator.NewNoOp(log.Named("actuator"))
	}
	pwm, err := actuator.OpenPWM(cfg.PWM.Pin, cfg.PWM.Freq, log.Named("actuator"))
	if err != nil {
		log.Warnw("pwm_unavailable_using_noop", "pin", cfg.PWM.Pin, "err", err)
		return actuator.NewNoOp(log.Named("actuator"))
	}
	return pwm
}

func staticPeers(cfg *config.Config) (peers.List, error) {
	if cfg.Peers.File == "" {
		return cfg.Peers.Static, nil
	}
	fromFile, err := peers.ReadFile(cfg.Peers.File)
	if err != nil {
		return peers.List{}, err
	}
	if fromFile.Contains(models.LocalSourceID) {
		return peers.List{}, fmt.Errorf("%w: %s lists the reserved peer %q", config.ErrInvalid, cfg.Peers.File, models.LocalSourceID)
	}
	return peers.NewList(append(cfg.Peers.Static.Addrs(), fromFile.Addrs()...)...), nil
}

func peerPoller(cfg *config.Config, log *logger.Logger) (service.PeerPoller, error) {
	if cfg.Peers.Method != peers.MethodSSH {
		return peers.NewPoller(peers.PollerConfig{
			Timeout:    cfg.Peers.Timeout,
			MaxWorkers: cfg.Peers.MaxWorkers,
			Port:       cfg.Peers.Port,
			Path:       cfg.Peers.Path,
		}, nil, log), nil
	}

	auth, err := peers.SSHAuthMethods(cfg.Peers.SSH.KeyFiles)
	if err != nil {
		return nil, fmt.Errorf("ssh auth: %w", err)
	}
	hostKeys, err := peers.SSHHostKeyCallback(cfg.Peers.SSH.KnownHosts, cfg.Peers.SSH.InsecureIgnoreHostKey)
	if err != nil {
		return nil, fmt.Errorf("ssh host keys: %w", err)
	}
	if cfg.Peers.SSH.InsecureIgnoreHostKey {
		log.Warnw("ssh_host_key_checking_disabled")
	}
	return peers.NewSSHPoller(peers.SSHConfig{
		Timeout:         cfg.Peers.Timeout,
		MaxWorkers:      cfg.Peers.MaxWorkers,
		User:            cfg.Peers.SSH.User,
		Port:            cfg.Peers.SSH.Port,
		Auth:            auth,
		HostKeyCallback: hostKeys,
	}, log), nil
}

func peerProvider(cfg *config.Config, static peers.List, log *logger.Logger) peers.Provider {
	if !cfg.Kubernetes.Enabled {
		return nil
	}
	if !peers.InCluster() {
		log.Warnw("k8s_discovery_disabled", "err", peers.ErrNotInCluster)
		return nil
	}
	client, err := peers.NewInClusterClient()
	if err != nil {
		log.Warnw("k8s_discovery_disabled", "err", err)
		return nil
	}
	return peers.NewKubernetesProvider(client, peers.KubernetesConfig{
		Namespace:     cfg.Kubernetes.Namespace,
		LabelSelector: cfg.Kubernetes.LabelSelector,
		Port:          cfg.Kubernetes.Port,
		Path:          cfg.Peers.Path,
	}, static, log.Named("discovery"))
}

func initialPeers(p peers.Provider, static peers.List, log *logger.Logger) peers.List {
	if p == nil {
		return static
	}
	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()
	list, err := p.Peers(ctx)
	if err != nil {
		log.Warnw("initial_discovery_failed", "err", err, "static_peers", static.Len())
		return static
	}
	return list
}
