package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashguard/hashguard/internal/api"
	"github.com/hashguard/hashguard/internal/config"
	"github.com/hashguard/hashguard/internal/detect"
	"github.com/hashguard/hashguard/internal/fleet"
	"github.com/hashguard/hashguard/internal/orchestrator"
	"github.com/hashguard/hashguard/internal/remote"
	"github.com/hashguard/hashguard/internal/rotate"
	"github.com/hashguard/hashguard/internal/secret"
	"github.com/hashguard/hashguard/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "detect":
		runDetect(os.Args[2:])
	case "rotate":
		runRotate(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `hashguard - pass-the-hash detection and credential rotation

Usage:
  hashguard detect -config config.yaml [-hosts FILE | -dc HOST] [-window DAYS] [-channel NAME] [-workers N]
  hashguard rotate -config config.yaml [-hosts FILE | -dc HOST] [-policy random|salted] [flags]
  hashguard serve  -config config.yaml`)
}

// runtime bundles everything a subcommand needs.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	orch    *orchestrator.Orchestrator
	history *store.Store
}

func (rt *runtime) close() {
	if rt.history != nil {
		rt.history.Close()
	}
}

func setup(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := initLogger(cfg.Logging)

	factory := &remote.Factory{
		Port: cfg.WinRM.Port,
		Creds: remote.Credentials{
			Username: cfg.WinRM.Username,
			Password: cfg.WinRM.Password,
			Domain:   cfg.WinRM.Domain,
			UseHTTPS: cfg.WinRM.UseHTTPS,
		},
		Timeout: cfg.WinRM.GetWinRMTimeout(),
	}

	prober := &fleet.Prober{
		WinRMPort:     cfg.WinRM.Port,
		SSHPort:       cfg.Probe.SSHPort,
		SNMPPort:      cfg.Probe.SNMPPort,
		SNMPCommunity: cfg.Probe.SNMPCommunity,
		Timeout:       cfg.Probe.GetProbeTimeout(),
		FastTimeout:   cfg.Probe.GetFastProbeTimeout(),
		WinRM:         factory,
		Logger:        logger,
	}

	querier := &detect.WinRMQuerier{
		Runner:    factory,
		SuccessID: cfg.Detect.SuccessEventID,
		FailureID: cfg.Detect.FailureEventID,
	}

	provider := &rotate.WinRMProvider{Runner: factory}

	var history *store.Store
	if cfg.Database.Enabled {
		history, err = store.Open(context.Background(), cfg.Database.GetDSN(), logger)
		if err != nil {
			return nil, fmt.Errorf("history store unavailable: %w", err)
		}
		logger.Info("history store connected", "host", cfg.Database.Host)
	}

	orch := orchestrator.New(cfg, logger, prober, factory, querier, provider, history)

	return &runtime{cfg: cfg, logger: logger, orch: orch, history: history}, nil
}

func runDetect(args []string) {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "configuration file")
	hostFile := fs.String("hosts", "", "host list file (one name per line)")
	controller := fs.String("dc", "", "domain controller to enumerate members from")
	window := fs.Int("window", 0, "lookback window in days")
	channel := fs.String("channel", "", "event log channel name")
	workers := fs.Int("workers", 0, "concurrent host operations")
	fs.Parse(args)

	rt, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashguard: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	rep, err := rt.orch.Detect(context.Background(), orchestrator.DetectOptions{
		Hosts: orchestrator.HostSelection{
			ListFile:   *hostFile,
			Controller: *controller,
		},
		WindowDays: *window,
		Channel:    *channel,
		Workers:    *workers,
	})
	if err != nil {
		rt.logger.Error("detection batch aborted", "error", err)
		os.Exit(1)
	}

	printDetectReport(rep)
}

func runRotate(args []string) {
	fs := flag.NewFlagSet("rotate", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "configuration file")
	hostFile := fs.String("hosts", "", "host list file (one name per line)")
	controller := fs.String("dc", "", "domain controller to enumerate members from")
	account := fs.String("account", "", "local account to rotate")
	workers := fs.Int("workers", 0, "concurrent host operations (1 = sequential)")
	minLen := fs.Int("min-length", 0, "minimum secret length (random policy)")
	maxLen := fs.Int("max-length", 0, "maximum secret length (random policy)")
	outputDir := fs.String("out", "", "output directory for artifacts")
	policy := fs.String("policy", "random", "generation policy: random or salted")
	base := fs.String("base", "", "base secret (salted policy)")
	direction := fs.String("direction", "prepend", "salt direction: prepend or append")
	fs.Parse(args)

	rt, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashguard: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	rep, err := rt.orch.Rotate(context.Background(), orchestrator.RotateOptions{
		Hosts: orchestrator.HostSelection{
			ListFile:   *hostFile,
			Controller: *controller,
		},
		Account:   *account,
		Workers:   *workers,
		MinLen:    *minLen,
		MaxLen:    *maxLen,
		OutputDir: *outputDir,
		Policy:    secret.Method(*policy),
		Base:      *base,
		Direction: secret.Direction(*direction),
	})
	if err != nil {
		rt.logger.Error("rotation batch aborted", "error", err)
		os.Exit(1)
	}

	printRotateReport(rep)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "configuration file")
	fs.Parse(args)

	rt, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashguard: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	authService, err := api.NewAuthService(
		rt.cfg.Auth.JWTSecret,
		rt.cfg.Auth.AdminUsername,
		rt.cfg.Auth.AdminPassword,
		rt.cfg.Auth.GetJWTExpiry(),
	)
	if err != nil {
		rt.logger.Error("auth service init failed", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(&api.Handlers{
		Auth:    authService,
		Orch:    rt.orch,
		History: rt.history,
		Logger:  rt.logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", rt.cfg.Server.Host, rt.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  rt.cfg.Server.GetReadTimeout(),
		WriteTimeout: rt.cfg.Server.GetWriteTimeout(),
	}

	go func() {
		rt.logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	rt.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.logger.Error("server forced to shutdown", "error", err)
	}
}

func printDetectReport(rep *orchestrator.DetectReport) {
	fmt.Printf("Detection batch %s: %d hosts (%d alive), %d matches\n",
		rep.BatchID, rep.TotalHosts, rep.AliveHosts, len(rep.Matches))

	for _, m := range rep.Matches {
		fmt.Printf("  %s  %-16s  %d  %s\n",
			m.Timestamp.Format(time.RFC3339), m.Host, m.EventID, m.Message)
	}

	if len(rep.Summary.FailureHosts) > 0 {
		fmt.Printf("Hosts with diagnostics (%d):\n", len(rep.Summary.FailureHosts))
		for _, h := range rep.Summary.FailureHosts {
			fmt.Printf("  %-16s  %s\n", h, rep.Summary.Reasons[h])
		}
	}
}

func printRotateReport(rep *orchestrator.RotateReport) {
	fmt.Printf("Rotation batch %s: %d hosts, %d rotated, %d failed\n",
		rep.BatchID, rep.TotalHosts, len(rep.Summary.SuccessHosts), len(rep.Summary.FailureHosts))
	fmt.Printf("  success artifact: %s\n", rep.SuccessPath)
	fmt.Printf("  failure artifact: %s\n", rep.FailurePath)

	if len(rep.UnavailableHosts) == 0 {
		fmt.Println("  all hosts were reachable")
	} else {
		fmt.Printf("  unreachable hosts (%d):\n", len(rep.UnavailableHosts))
		for _, h := range rep.UnavailableHosts {
			fmt.Printf("    %s\n", h)
		}
	}
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
