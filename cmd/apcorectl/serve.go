package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/apcore/apcore/internal/api"
	"github.com/apcore/apcore/internal/audit"
	"github.com/apcore/apcore/internal/configtree"
	"github.com/apcore/apcore/internal/freezer"
	"github.com/apcore/apcore/internal/identity"
	"github.com/apcore/apcore/internal/launcher"
	"github.com/apcore/apcore/internal/ledger"
	"github.com/apcore/apcore/internal/metrics"
	"github.com/apcore/apcore/internal/reslimit"
	"github.com/apcore/apcore/internal/sandbox"
	"github.com/apcore/apcore/internal/signals"
	"github.com/apcore/apcore/internal/smack"
	"github.com/apcore/apcore/internal/supervisor"
	"github.com/apcore/apcore/internal/tracing"
	"github.com/apcore/apcore/internal/watcher"
)

var (
	serveConfigPath    string
	serveAppsRoot      string
	serveSandboxRoot   string
	serveCgroup        string
	serveLedgerPath    string
	serveMetricsAddr   string
	serveAuditEnabled  bool
	serveTraceExpo     string
	serveTraceEndpoint string
	serveTraceEnabled  bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor daemon",
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&serveConfigPath, "config", "/etc/apcore/catalogue.yaml", "application catalogue config path")
	cmd.Flags().StringVar(&serveAppsRoot, "apps-root", "/opt/apcore/apps", "root directory applications install under")
	cmd.Flags().StringVar(&serveSandboxRoot, "sandbox-root", "/opt/apcore/sandboxes", "root directory sandboxes are assembled under")
	cmd.Flags().StringVar(&serveCgroup, "cgroup", "apcore", "cgroup v2 group name shared by reslimit and the freezer")
	cmd.Flags().StringVar(&serveLedgerPath, "ledger-path", ledger.DefaultPath, "reboot-fault ledger file path")
	cmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", ":9090", "Prometheus metrics listen address")
	cmd.Flags().BoolVar(&serveAuditEnabled, "audit", true, "enable structured audit logging")
	cmd.Flags().StringVar(&serveTraceExpo, "trace-exporter", "stdout", "trace exporter: otlp-grpc|stdout")
	cmd.Flags().StringVar(&serveTraceEndpoint, "trace-endpoint", "127.0.0.1:4317", "OTLP collector address for the otlp-grpc exporter")
	cmd.Flags().BoolVar(&serveTraceEnabled, "trace", false, "enable distributed tracing")
	return cmd
}

// newSupervisor constructs a Supervisor wired to real OS-backed
// collaborators and the catalogue at configPath. Shared between the
// serve and tui commands so both drive the same collaborator wiring
// instead of the CLI-only surface duplicating it.
func newSupervisor(configPath string, log *slog.Logger) (*supervisor.Supervisor, []string, error) {
	cfg, err := configtree.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	auditLog := audit.NewLogger(log, serveAuditEnabled)
	rebootLedger := ledger.New(serveLedgerPath, log)

	collab := &supervisor.Collaborators{
		Sandbox:        sandbox.New(serveSandboxRoot),
		ResourceLimits: reslimit.New(serveCgroup),
		Labels:         smack.New(),
		Freezer:        freezer.New(serveCgroup),
		Users:          identity.NewOSUserDB(),
		Launcher:       launcher.New(),
		Ledger:         rebootLedger,
		Audit:          auditLog,
		Logger:         log,
		AppsRoot:       serveAppsRoot,
	}

	sup := supervisor.New(cfg, collab, supervisor.ExecRebooter{})
	appPaths, err := catalogueEntries(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("enumerate catalogue: %w", err)
	}
	return sup, appPaths, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sup, appPaths, err := newSupervisor(serveConfigPath, log)
	if err != nil {
		return err
	}

	tracer, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     serveTraceEnabled,
		Exporter:    serveTraceExpo,
		Endpoint:    serveTraceEndpoint,
		SampleRatio: 1.0,
		Version:     version,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	if signals.RunningAsInit() {
		log.Info("running as PID 1, reaping orphans")
		go signals.NewReaper(time.Second, log).Run(ctx)
	}

	w, err := watcher.New(serveConfigPath, watcher.DefaultQuiet, log, sup.ReloadConfig)
	if err != nil {
		return fmt.Errorf("init config watcher: %w", err)
	}
	if err := w.Watch(ctx); err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	defer w.Close()

	metricsSrv := metrics.NewServer(serveMetricsAddr)
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	defer metricsSrv.Shutdown(context.Background())

	sampler := metrics.NewSampler(metrics.ProcLister(sup.ProcLister), 10*time.Second, log)
	go sampler.Run(ctx)

	apiSrv := api.NewServer(apiAddr, sup, log)
	go func() {
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("management API server stopped", "error", err)
		}
	}()
	defer apiSrv.Shutdown(context.Background())

	if err := sup.StartAll(appPaths); err != nil {
		log.Error("startup failed", "error", err)
	}

	log.Info("apcore supervisor started", "config", serveConfigPath, "apps", len(appPaths))

	runErr := sup.Run(ctx)

	log.Info("shutting down, stopping all applications")
	for _, app := range sup.Apps() {
		app.Stop()
	}
	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}

// catalogueEntries reads the top-level list of application config paths
// from the global config tree, under the "apps" key.
func catalogueEntries(cfg *configtree.Tree) ([]string, error) {
	txn, err := cfg.Read()
	if err != nil {
		return nil, err
	}
	defer txn.Release()

	node, err := txn.Node("apps")
	if err != nil {
		return nil, fmt.Errorf("config has no \"apps\" entry: %w", err)
	}
	var paths []string
	for _, child := range node.Children() {
		if p := child.String(); p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}
